// Package system provides health, readiness, status and version endpoints.
package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/gitlab-composer-registry/internal/api/common"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	"github.com/stacklok/gitlab-composer-registry/internal/sync"
	"github.com/stacklok/gitlab-composer-registry/internal/versions"
)

// Router creates a router for the operational endpoints
func Router(manager sync.Manager, storage sources.StorageManager) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(storage))
	r.Get("/status", statusHandler(manager))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once an index can be served
func readinessHandler(storage sources.StorageManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, exists, err := storage.ModTime(r.Context())
		if err != nil {
			common.WriteErrorResponse(w, "Index not readable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !exists {
			common.WriteErrorResponse(w, "Index not built yet", http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// statusHandler returns the persisted status of the last build
func statusHandler(manager sync.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := manager.Status(r.Context())
		if err != nil {
			common.WriteErrorResponse(w, "Failed to load build status", http.StatusInternalServerError)
			return
		}
		common.WriteJSONResponse(w, st, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
