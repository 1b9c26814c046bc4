// Package composer serves the Composer repository index.
package composer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	"github.com/stacklok/gitlab-composer-registry/internal/sync"
)

// Routes serves packages.json, building it on request when enabled
type Routes struct {
	manager          sync.Manager
	storage          sources.StorageManager
	rebuildOnRequest bool
}

// NewRoutes creates the index routes. With rebuildOnRequest unset the index is
// served as stored and the force parameter is ignored.
func NewRoutes(manager sync.Manager, storage sources.StorageManager, rebuildOnRequest bool) *Routes {
	return &Routes{
		manager:          manager,
		storage:          storage,
		rebuildOnRequest: rebuildOnRequest,
	}
}

// ServePackages handles GET /packages.json[?force=1]
func (rt *Routes) ServePackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if rt.rebuildOnRequest {
		force := isForced(r)
		// The build outlives a client that hangs up; others may be waiting on it
		_, err := rt.manager.Sync(context.WithoutCancel(ctx), sync.Options{Force: force})
		if err != nil {
			if isFatal(err) {
				slog.Error("Registry is misconfigured", "error", err)
				writeTextError(w, "Registry is misconfigured: "+err.Error())
				return
			}
			slog.Warn("Index build failed, serving the stored index", "forced", force, "error", err)
		}
	}

	f, err := rt.storage.Open(ctx)
	if err != nil {
		if errors.Is(err, sources.ErrIndexNotFound) {
			writeTextError(w, "Package index is not available yet")
			return
		}
		slog.Error("Failed to open index", "error", err)
		writeTextError(w, "Package index could not be read")
		return
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		slog.Error("Failed to stat index", "error", err)
		writeTextError(w, "Package index could not be read")
		return
	}

	// HTTP dates have second precision
	modTime := info.ModTime().UTC().Truncate(time.Second)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", modTime.Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "max-age=0")

	if notModified(r, modTime) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		slog.Debug("Failed to write index response", "error", err)
	}
}

// notModified reports whether the client copy is at least as new as modTime
func notModified(r *http.Request, modTime time.Time) bool {
	header := r.Header.Get("If-Modified-Since")
	if header == "" {
		return false
	}
	since, err := http.ParseTime(header)
	if err != nil {
		return false
	}
	return !since.Before(modTime)
}

func isForced(r *http.Request) bool {
	query := r.URL.Query()
	if !query.Has("force") {
		return false
	}
	// Presence alone forces: ?force and ?force= both count
	value := query.Get("force")
	if value == "" {
		return true
	}
	forced, err := strconv.ParseBool(value)
	return err != nil || forced
}

// isFatal reports failures that no stored index can paper over
func isFatal(err error) bool {
	var syncErr *sync.Error
	if !errors.As(err, &syncErr) {
		return false
	}
	switch syncErr.Reason {
	case sync.ErrorReasonCacheDir, sync.ErrorReasonConfig:
		return true
	}
	return false
}

func writeTextError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, message+"\n")
}
