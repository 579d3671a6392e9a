package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"clinicflow/internal/queue/service"
	apperrors "clinicflow/pkg/errors"
	httputil "clinicflow/pkg/http"
	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type QueueHandler struct {
	service service.QueueService
	loc     *time.Location
	log     *logger.Logger
	now     func() time.Time
}

func NewQueueHandler(service service.QueueService, loc *time.Location, log *logger.Logger) *QueueHandler {
	return &QueueHandler{
		service: service,
		loc:     loc,
		log:     log,
		now:     time.Now,
	}
}

func (h *QueueHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.RegisterRequest
	if !h.decode(w, r, &req, "Register") {
		return
	}

	entry, err := h.service.Register(r.Context(), &req, httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "Register")
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "Register", "operation", "WriteCreated", "error", err)
	}
}

func (h *QueueHandler) ListActive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	date, ok := h.date(w, r, "ListActive")
	if !ok {
		return
	}

	entries, err := h.service.ListActive(r.Context(), date)
	if err != nil {
		h.writeError(w, err, "ListActive")
		return
	}

	if err := httputil.WriteList(w, entries, int64(len(entries))); err != nil {
		h.log.Error("failed to write list response", "handler", "ListActive", "operation", "WriteList", "error", err)
	}
}

func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	date, ok := h.date(w, r, "Stats")
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), date)
	if err != nil {
		h.writeError(w, err, "Stats")
		return
	}
	h.writeSuccess(w, stats, "Stats")
}

func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err, "Get")
		return
	}
	h.writeSuccess(w, entry, "Get")
}

func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// The body is optional; an empty one means today.
	var req model.CallNextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, apperrors.InvalidInput("Invalid request body"), "CallNext")
		return
	}
	if req.Date == "" {
		date, ok := h.date(w, r, "CallNext")
		if !ok {
			return
		}
		req.Date = date
	}

	entry, err := h.service.CallNext(r.Context(), req.Date, httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "CallNext")
		return
	}
	h.writeSuccess(w, entry, "CallNext")
}

func (h *QueueHandler) Call(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := h.service.Call(r.Context(), ps.ByName("id"), httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "Call")
		return
	}
	h.writeSuccess(w, entry, "Call")
}

func (h *QueueHandler) StartConsultation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := h.service.StartConsultation(r.Context(), ps.ByName("id"), httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "StartConsultation")
		return
	}
	h.writeSuccess(w, entry, "StartConsultation")
}

func (h *QueueHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := h.service.Complete(r.Context(), ps.ByName("id"), httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "Complete")
		return
	}
	h.writeSuccess(w, entry, "Complete")
}

func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.CancelRequest
	if !h.decode(w, r, &req, "Cancel") {
		return
	}

	entry, err := h.service.Cancel(r.Context(), ps.ByName("id"), &req, httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "Cancel")
		return
	}
	h.writeSuccess(w, entry, "Cancel")
}

func (h *QueueHandler) UpdatePriority(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.PriorityUpdate
	if !h.decode(w, r, &req, "UpdatePriority") {
		return
	}

	entry, err := h.service.UpdatePriority(r.Context(), ps.ByName("id"), &req, httputil.ActorFromRequest(r))
	if err != nil {
		h.writeError(w, err, "UpdatePriority")
		return
	}
	h.writeSuccess(w, entry, "UpdatePriority")
}

func (h *QueueHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/queue", h.Register)
	router.GET("/api/v1/queue", h.ListActive)
	router.GET("/api/v1/queue/stats", h.Stats)
	router.POST("/api/v1/queue/call-next", h.CallNext)
	router.GET("/api/v1/queue/id/:id", h.Get)
	router.POST("/api/v1/queue/id/:id/call", h.Call)
	router.POST("/api/v1/queue/id/:id/start", h.StartConsultation)
	router.POST("/api/v1/queue/id/:id/complete", h.Complete)
	router.POST("/api/v1/queue/id/:id/cancel", h.Cancel)
	router.PATCH("/api/v1/queue/id/:id/priority", h.UpdatePriority)
}

func (h *QueueHandler) decode(w http.ResponseWriter, r *http.Request, v any, handler string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", handler, "operation", "WriteJSON", "error", writeErr)
		}
		return false
	}
	return true
}

func (h *QueueHandler) date(w http.ResponseWriter, r *http.Request, handler string) (string, bool) {
	date, err := httputil.ExtractDate(r, h.loc, h.now())
	if err != nil {
		h.writeError(w, err, handler)
		return "", false
	}
	return date, true
}

func (h *QueueHandler) writeSuccess(w http.ResponseWriter, data any, handler string) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *QueueHandler) writeError(w http.ResponseWriter, err error, handler string) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
