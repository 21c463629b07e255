package gateway

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/marmos91/dittogrid/internal/logger"
)

const headerRequestID = "X-Request-Id"

type requestIDKey struct{}

// RequestID returns the request ID assigned by the gateway, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID tags every request with an ID, reusing the client's when sent.
func (g *Gateway) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logger.Debug("Gateway: %s %s -> %d (%d bytes, %s) id=%s",
			r.Method, r.URL.RequestURI(), rec.Status(), rec.bytes, time.Since(start), RequestID(r.Context()))
	})
}

func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeName(r)
		g.metrics.RecordRequestStart(route)
		defer g.metrics.RecordRequestEnd(route)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		g.metrics.RecordRequest(route, rec.Status(), time.Since(start))
	})
}

// rateLimit rejects requests beyond the configured rate with 429.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if routeName(r) == "healthz" || g.limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		g.metrics.RecordRateLimited()
		retry := int(math.Ceil(g.limiter.RetryAfter().Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:     "rate limit exceeded",
			RequestID: RequestID(r.Context()),
			Time:      time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
	}
	return "unknown"
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Status returns the response status, 200 when the handler never set one.
func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
