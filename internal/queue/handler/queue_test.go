package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "clinicflow/pkg/errors"
	httputil "clinicflow/pkg/http"
	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Mock service for testing
type mockQueueService struct {
	registerFunc       func(ctx context.Context, req *model.RegisterRequest, actor string) (*model.QueueEntry, error)
	callNextFunc       func(ctx context.Context, date, actor string) (*model.QueueEntry, error)
	transitionFunc     func(op, id, actor string) (*model.QueueEntry, error)
	cancelFunc         func(ctx context.Context, id string, req *model.CancelRequest, actor string) (*model.QueueEntry, error)
	updatePriorityFunc func(ctx context.Context, id string, req *model.PriorityUpdate, actor string) (*model.QueueEntry, error)
	getFunc            func(ctx context.Context, id string) (*model.QueueEntry, error)
	listActiveFunc     func(ctx context.Context, date string) ([]*model.QueueEntry, error)
	statsFunc          func(ctx context.Context, date string) (*model.QueueStats, error)
}

func (m *mockQueueService) Register(ctx context.Context, req *model.RegisterRequest, actor string) (*model.QueueEntry, error) {
	return m.registerFunc(ctx, req, actor)
}

func (m *mockQueueService) CallNext(ctx context.Context, date, actor string) (*model.QueueEntry, error) {
	return m.callNextFunc(ctx, date, actor)
}

func (m *mockQueueService) Call(ctx context.Context, id, actor string) (*model.QueueEntry, error) {
	return m.transitionFunc("call", id, actor)
}

func (m *mockQueueService) StartConsultation(ctx context.Context, id, actor string) (*model.QueueEntry, error) {
	return m.transitionFunc("start", id, actor)
}

func (m *mockQueueService) Complete(ctx context.Context, id, actor string) (*model.QueueEntry, error) {
	return m.transitionFunc("complete", id, actor)
}

func (m *mockQueueService) Cancel(ctx context.Context, id string, req *model.CancelRequest, actor string) (*model.QueueEntry, error) {
	return m.cancelFunc(ctx, id, req, actor)
}

func (m *mockQueueService) UpdatePriority(ctx context.Context, id string, req *model.PriorityUpdate, actor string) (*model.QueueEntry, error) {
	return m.updatePriorityFunc(ctx, id, req, actor)
}

func (m *mockQueueService) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	return m.getFunc(ctx, id)
}

func (m *mockQueueService) ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error) {
	return m.listActiveFunc(ctx, date)
}

func (m *mockQueueService) Stats(ctx context.Context, date string) (*model.QueueStats, error) {
	return m.statsFunc(ctx, date)
}

func newTestRouter(svc *mockQueueService) *httprouter.Router {
	h := NewQueueHandler(svc, time.UTC, logger.Discard())
	h.now = func() time.Time { return time.Date(2025, 4, 30, 9, 0, 0, 0, time.UTC) }
	router := httprouter.New()
	h.RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	var gotActor string
	svc := &mockQueueService{
		registerFunc: func(ctx context.Context, req *model.RegisterRequest, actor string) (*model.QueueEntry, error) {
			gotActor = actor
			if req.PatientRef == "P-DUP" {
				return nil, apperrors.DuplicateActiveEntry(req.PatientRef, "2025-04-30", nil)
			}
			return &model.QueueEntry{ID: "e1", QueueNumber: "Q20250430-001", PatientRef: req.PatientRef, Status: model.StatusWaiting}, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "created", body: `{"patient_ref":"P-A"}`, wantCode: http.StatusCreated},
		{name: "duplicate", body: `{"patient_ref":"P-DUP"}`, wantCode: http.StatusConflict, wantErr: apperrors.CodeDuplicateActiveEntry},
		{name: "malformed body", body: `{"patient_ref":`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/v1/queue", tt.body, map[string]string{httputil.HeaderActorID: "reception-1"})
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				var resp httputil.ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("decode error response: %v", err)
				}
				if resp.Code != tt.wantErr {
					t.Errorf("code = %s, want %s", resp.Code, tt.wantErr)
				}
			}
		})
	}

	if gotActor != "reception-1" {
		t.Errorf("actor = %q, want reception-1", gotActor)
	}
}

func TestCallNext_DefaultsToToday(t *testing.T) {
	var gotDate, gotActor string
	svc := &mockQueueService{
		callNextFunc: func(ctx context.Context, date, actor string) (*model.QueueEntry, error) {
			gotDate, gotActor = date, actor
			return &model.QueueEntry{ID: "e1", Status: model.StatusCalled}, nil
		},
	}
	router := newTestRouter(svc)

	rec := do(router, http.MethodPost, "/api/v1/queue/call-next", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if gotDate != "2025-04-30" {
		t.Errorf("date = %q, want 2025-04-30", gotDate)
	}
	if gotActor != "system" {
		t.Errorf("actor = %q, want system", gotActor)
	}

	rec = do(router, http.MethodPost, "/api/v1/queue/call-next", `{"date":"2025-05-01"}`, nil)
	if rec.Code != http.StatusOK || gotDate != "2025-05-01" {
		t.Errorf("explicit date: status = %d, date = %q", rec.Code, gotDate)
	}
}

func TestCallNext_EmptyQueue(t *testing.T) {
	svc := &mockQueueService{
		callNextFunc: func(ctx context.Context, date, actor string) (*model.QueueEntry, error) {
			return nil, apperrors.QueueEmpty(date)
		},
	}
	rec := do(newTestRouter(svc), http.MethodPost, "/api/v1/queue/call-next", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTransitionRoutes(t *testing.T) {
	var gotOp, gotID string
	svc := &mockQueueService{
		transitionFunc: func(op, id, actor string) (*model.QueueEntry, error) {
			gotOp, gotID = op, id
			if id == "bad" {
				return nil, apperrors.InvalidTransition(id, "waiting", "done", errors.New("rejected"))
			}
			return &model.QueueEntry{ID: id}, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		path     string
		wantOp   string
		wantCode int
	}{
		{path: "/api/v1/queue/id/e1/call", wantOp: "call", wantCode: http.StatusOK},
		{path: "/api/v1/queue/id/e1/start", wantOp: "start", wantCode: http.StatusOK},
		{path: "/api/v1/queue/id/e1/complete", wantOp: "complete", wantCode: http.StatusOK},
		{path: "/api/v1/queue/id/bad/complete", wantOp: "complete", wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(router, http.MethodPost, tt.path, "", nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if gotOp != tt.wantOp {
				t.Errorf("op = %s, want %s", gotOp, tt.wantOp)
			}
			if !strings.Contains(tt.path, gotID) {
				t.Errorf("id = %s not taken from path %s", gotID, tt.path)
			}
		})
	}
}

func TestInvalidTransitionBody(t *testing.T) {
	svc := &mockQueueService{
		transitionFunc: func(op, id, actor string) (*model.QueueEntry, error) {
			return nil, apperrors.InvalidTransition(id, "waiting", "consulting", errors.New("rejected"))
		},
	}
	rec := do(newTestRouter(svc), http.MethodPost, "/api/v1/queue/id/e1/start", "", nil)

	var resp httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != apperrors.CodeInvalidTransition || resp.Details["from"] != "waiting" || resp.Details["to"] != "consulting" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCancelAndPriority(t *testing.T) {
	var gotReason string
	var gotPriority int
	svc := &mockQueueService{
		cancelFunc: func(ctx context.Context, id string, req *model.CancelRequest, actor string) (*model.QueueEntry, error) {
			gotReason = req.Reason
			return &model.QueueEntry{ID: id, Status: model.StatusCancelled}, nil
		},
		updatePriorityFunc: func(ctx context.Context, id string, req *model.PriorityUpdate, actor string) (*model.QueueEntry, error) {
			gotPriority = *req.Priority
			return &model.QueueEntry{ID: id, Priority: *req.Priority}, nil
		},
	}
	router := newTestRouter(svc)

	rec := do(router, http.MethodPost, "/api/v1/queue/id/e1/cancel", `{"reason":"left"}`, nil)
	if rec.Code != http.StatusOK || gotReason != "left" {
		t.Errorf("cancel: status = %d, reason = %q", rec.Code, gotReason)
	}

	rec = do(router, http.MethodPatch, "/api/v1/queue/id/e1/priority", `{"priority":4}`, nil)
	if rec.Code != http.StatusOK || gotPriority != 4 {
		t.Errorf("priority: status = %d, priority = %d", rec.Code, gotPriority)
	}

	rec = do(router, http.MethodPost, "/api/v1/queue/id/e1/cancel", `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed cancel: status = %d, want 400", rec.Code)
	}
}

func TestListActiveAndStats(t *testing.T) {
	svc := &mockQueueService{
		listActiveFunc: func(ctx context.Context, date string) ([]*model.QueueEntry, error) {
			return []*model.QueueEntry{{ID: "e1"}, {ID: "e2"}}, nil
		},
		statsFunc: func(ctx context.Context, date string) (*model.QueueStats, error) {
			return &model.QueueStats{Date: date, Total: 2, CounterValue: 2}, nil
		},
		getFunc: func(ctx context.Context, id string) (*model.QueueEntry, error) {
			return nil, apperrors.NotFoundWithID("Queue entry", id)
		},
	}
	router := newTestRouter(svc)

	rec := do(router, http.MethodGet, "/api/v1/queue?date=2025-04-30", "", nil)
	var list httputil.ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || list.TotalCount != 2 {
		t.Errorf("list: status = %d, total = %d, err = %v", rec.Code, list.TotalCount, err)
	}

	rec = do(router, http.MethodGet, "/api/v1/queue?date=30-04-2025", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", rec.Code)
	}

	rec = do(router, http.MethodGet, "/api/v1/queue/stats", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"date":"2025-04-30"`) {
		t.Errorf("stats: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(router, http.MethodGet, "/api/v1/queue/id/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get: status = %d, want 404", rec.Code)
	}
}

type mockPinger struct {
	pingFunc func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.pingFunc(ctx) }

func TestHealthAndReady(t *testing.T) {
	tests := []struct {
		name      string
		pingErr   error
		wantReady int
	}{
		{name: "store up", wantReady: http.StatusOK},
		{name: "store down", pingErr: errors.New("no reachable servers"), wantReady: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httprouter.New()
			NewHealthHandler(&mockPinger{pingFunc: func(ctx context.Context) error { return tt.pingErr }}, logger.Discard()).RegisterRoutes(router)

			if rec := do(router, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
				t.Errorf("health: status = %d", rec.Code)
			}
			if rec := do(router, http.MethodGet, "/ready", "", nil); rec.Code != tt.wantReady {
				t.Errorf("ready: status = %d, want %d", rec.Code, tt.wantReady)
			}
		})
	}
}
