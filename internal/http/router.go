// Package httpapi assembles the public HTTP surface: the middleware chain,
// the operational endpoints, and every module's routes.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbiter/internal/platform/metrics"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/httputil"
	"arbiter/pkg/platform/middleware/requestid"
	"arbiter/pkg/platform/middleware/requesttime"
	"arbiter/pkg/requestcontext"
)

// Registrar mounts one module's routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the service router. Every request gets a correlation ID
// and a pinned request time before it reaches a handler; instrumentation and
// panic recovery wrap everything, including the operational endpoints.
func NewRouter(logger *slog.Logger, httpMetrics *metrics.HTTP, modules ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(instrument(logger, httpMetrics))
	r.Use(recoverer(logger))

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, m := range modules {
		m.Register(r)
	}
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument times and counts each request and emits one access log line.
// Routes are labeled by chi pattern, not raw path, so metric cardinality
// stays bounded regardless of path values.
func instrument(logger *slog.Logger, m *metrics.HTTP) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unrouted"
			}
			elapsed := time.Since(start)
			m.Observe(route, r.Method, ww.Status(), elapsed)
			logger.InfoContext(r.Context(), "request served",
				"request_id", requestcontext.RequestID(r.Context()),
				"method", r.Method,
				"route", route,
				"status", ww.Status(),
				"duration_ms", elapsed.Milliseconds(),
				"bytes", ww.BytesWritten(),
			)
		})
	}
}

// recoverer converts a handler panic into a 500 and a log entry instead of
// tearing down the connection. http.ErrAbortHandler passes through, as the
// server uses it to abort in-flight responses.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "handler panicked",
					"request_id", requestcontext.RequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
