package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// NewRouter registers the control routes
func NewRouter(c Controller, logger *slog.Logger) http.Handler {
	h := NewHandlers(c, logger)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/sync/start", h.StartSync)
	mux.HandleFunc("POST /api/sync/stop", h.StopSync)
	mux.HandleFunc("GET /api/sync/status", h.Status)
	mux.HandleFunc("GET /api/permissions", h.CheckPermissions)
	mux.HandleFunc("POST /api/permissions/request", h.RequestPermissions)
	mux.HandleFunc("GET /api/files", h.Files)
	mux.HandleFunc("POST /api/resync", h.Resync)

	return Chain(mux,
		Recovery(logger),
		Logger(logger),
	)
}

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so the first one listed is outermost
func Chain(h http.Handler, middleware ...Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// Recovery recovers from panics in HTTP handlers. It does not cover the
// background sync run, which recovers on its own.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("PANIC recovered", "panic", err, "path", r.URL.Path, "stack", string(debug.Stack()))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logger logs one line per request
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}
