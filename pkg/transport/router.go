// Package transport exposes the dispatch engine over HTTP: routing, health
// and metrics endpoints, cross-cutting middleware, and server lifecycle.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgbridge-dev/pgbridge/pkg/config"
	"github.com/pgbridge-dev/pgbridge/pkg/observability"
)

// ReadinessChecker reports whether the gateway can serve API traffic.
type ReadinessChecker interface {
	Ready() bool
}

// ReadyFunc adapts a function to ReadinessChecker.
type ReadyFunc func() bool

func (f ReadyFunc) Ready() bool { return f() }

// NewRouter assembles the HTTP surface: operational endpoints first, then
// the API handler as the catch-all so every remaining path reaches dispatch.
func NewRouter(api http.Handler, cfg *config.Config, ready ReadinessChecker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.Observability.Metrics.Enabled {
		r.Use(observability.MetricsMiddleware)
	}
	if cfg.Server.MaxBodySize > 0 {
		r.Use(bodyLimit(cfg.Server.MaxBodySize))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Observability.Metrics.Enabled {
		r.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	r.Handle("/", api)
	r.Handle("/*", api)

	return r
}

// requestLogger emits one structured line per request with the chi request
// ID, mirroring the access-log shape used across the gateway.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// bodyLimit caps request body size before the engine reads it.
func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
