package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "clinicflow/pkg/errors"
	httputil "clinicflow/pkg/http"
)

const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

// IdempotencyStore tracks requests by scoped key. A key is either free, held
// by one in-flight request, or bound to that request's successful response.
type IdempotencyStore interface {
	// Reserve claims key for the caller. It returns the stored response when
	// there is one, or a channel that closes when the current holder finishes.
	// When both are nil the caller holds the key and must Complete or Release it.
	Reserve(key string) (*CachedResponse, <-chan struct{})
	Complete(key string, response *CachedResponse)
	Release(key string)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

type idempotencyEntry struct {
	response *CachedResponse
	done     chan struct{}
}

type InMemoryIdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string]*idempotencyEntry
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		entries: make(map[string]*idempotencyEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *InMemoryIdempotencyStore) Reserve(key string) (*CachedResponse, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		if entry.response == nil {
			return nil, entry.done
		}
		if !s.expired(entry.response) {
			return entry.response, nil
		}
	}

	s.entries[key] = &idempotencyEntry{done: make(chan struct{})}
	return nil, nil
}

func (s *InMemoryIdempotencyStore) Complete(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.response != nil {
		return
	}
	response.CreatedAt = s.now()
	entry.response = response
	close(entry.done)
}

func (s *InMemoryIdempotencyStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.response != nil {
		return
	}
	delete(s.entries, key)
	close(entry.done)
}

func (s *InMemoryIdempotencyStore) expired(response *CachedResponse) bool {
	return s.now().Sub(response.CreatedAt) > s.ttl
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.response != nil && s.expired(entry.response) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated key. Keys
// are scoped to method, path and terminal. A repeat that arrives while the
// first request is still running waits for it.
func Idempotency(store IdempotencyStore, headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = HeaderIdempotencyKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = scopedKey(r, key)

			for {
				cached, inFlight := store.Reserve(key)
				if cached != nil {
					replayCachedResponse(w, cached)
					return
				}
				if inFlight == nil {
					break
				}
				select {
				case <-inFlight:
				case <-r.Context().Done():
					_ = httputil.WriteError(w, apperrors.Conflict("A request with this Idempotency-Key is still in progress"))
					return
				}
			}

			settled := false
			defer func() {
				if !settled {
					store.Release(key)
				}
			}()

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Complete(key, &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    w.Header().Clone(),
					Body:       capture.body.Bytes(),
				})
				settled = true
			}
		})
	}
}

func scopedKey(r *http.Request, key string) string {
	return strings.Join([]string{r.Method, r.URL.Path, r.Header.Get(httputil.HeaderTerminalID), key}, "|")
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(HeaderIdempotencyReplayed, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
