// Package api provides the HTTP server of the Composer registry.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/gitlab-composer-registry/internal/api/composer"
	"github.com/stacklok/gitlab-composer-registry/internal/api/system"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	"github.com/stacklok/gitlab-composer-registry/internal/sync"
)

// ServerOption configures the registry API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares      []func(http.Handler) http.Handler
	metricsHandler   http.Handler
	rebuildOnRequest bool
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithRebuildOnRequest controls whether /packages.json checks the index before serving it
func WithRebuildOnRequest(enabled bool) ServerOption {
	return func(cfg *serverConfig) {
		cfg.rebuildOnRequest = enabled
	}
}

// NewServer creates the HTTP router serving the index built by manager and stored in storage
func NewServer(manager sync.Manager, storage sources.StorageManager, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		rebuildOnRequest: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", system.Router(manager, storage))

	packages := composer.NewRoutes(manager, storage, cfg.rebuildOnRequest)
	r.Get("/packages.json", packages.ServePackages)

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
