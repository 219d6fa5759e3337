package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	apperrors "spacebook/pkg/errors"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"
)

const DefaultIdempotencyHeader = "Idempotency-Key"

// IdempotencyStore remembers completed responses per key and which keys
// are still being served.
type IdempotencyStore interface {
	Get(key string) (*CachedResponse, bool)
	// Reserve marks key as in flight. It reports false when the key is
	// already in flight or has a cached response.
	Reserve(key string) bool
	// Complete stores the response for a reserved key and clears the
	// reservation. A nil response only clears it.
	Complete(key string, response *CachedResponse)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

type InMemoryIdempotencyStore struct {
	mu       sync.Mutex
	done     map[string]*CachedResponse
	inFlight map[string]struct{}
	ttl      time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		done:     make(map[string]*CachedResponse),
		inFlight: make(map[string]struct{}),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go store.evictLoop()
	return store
}

func (s *InMemoryIdempotencyStore) Get(key string) (*CachedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key, time.Now())
}

func (s *InMemoryIdempotencyStore) lookup(key string, now time.Time) (*CachedResponse, bool) {
	response, ok := s.done[key]
	if !ok {
		return nil, false
	}
	if now.Sub(response.CreatedAt) > s.ttl {
		delete(s.done, key)
		return nil, false
	}
	return response, true
}

func (s *InMemoryIdempotencyStore) Reserve(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[key]; busy {
		return false
	}
	if _, ok := s.lookup(key, time.Now()); ok {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *InMemoryIdempotencyStore) Complete(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, key)
	if response != nil {
		response.CreatedAt = time.Now()
		s.done[key] = response
	}
}

func (s *InMemoryIdempotencyStore) evictLoop() {
	interval := s.ttl
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.mu.Lock()
			for key, response := range s.done {
				if now.Sub(response.CreatedAt) > s.ttl {
					delete(s.done, key)
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
	statusCode  int
	wroteHeader bool
	body        *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	if rc.wroteHeader {
		return
	}
	rc.wroteHeader = true
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Keys are scoped to the calling actor, method and path so
// two users sending the same key never see each other's responses. A
// repeat that arrives while the first request is still running gets 409,
// which keeps a double-submitted booking from being admitted twice.
// Only mutating methods are considered.
func Idempotency(store IdempotencyStore, headerName string, log *logger.Logger) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultIdempotencyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractIdempotencyKey(r, headerName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !store.Reserve(key) {
				if cached, ok := store.Get(key); ok {
					replayCachedResponse(w, cached)
					return
				}
				appErr := apperrors.Conflict("A request with this Idempotency-Key is still being processed")
				if err := httputil.WriteError(w, appErr); err != nil {
					log.Error("failed to write error response", "handler", "Idempotency", "operation", "WriteError", "error", err)
				}
				return
			}

			capture := captureResponse(w)
			defer func() {
				// a panicking handler must not leave the key reserved
				if rec := recover(); rec != nil {
					store.Complete(key, nil)
					panic(rec)
				}
				store.Complete(key, cacheableResponse(capture, w))
			}()
			next.ServeHTTP(capture, r)
		})
	}
}

func extractIdempotencyKey(r *http.Request, headerName string) string {
	key := r.Header.Get(headerName)
	if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ""
	}
	actor, _ := ActorFromContext(r.Context())
	return actor.UserID + "|" + r.Method + "|" + r.URL.Path + "|" + key
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

func captureResponse(w http.ResponseWriter) *responseCapture {
	return &responseCapture{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

// cacheableResponse returns nil for failures so the client may retry them.
func cacheableResponse(capture *responseCapture, w http.ResponseWriter) *CachedResponse {
	if capture.statusCode < 200 || capture.statusCode >= 300 {
		return nil
	}
	return &CachedResponse{
		StatusCode: capture.statusCode,
		Headers:    w.Header().Clone(),
		Body:       capture.body.Bytes(),
	}
}
