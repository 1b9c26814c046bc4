package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/gitlab-composer-registry/internal/api"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	"github.com/stacklok/gitlab-composer-registry/internal/status"
	"github.com/stacklok/gitlab-composer-registry/internal/sync"
	"github.com/stacklok/gitlab-composer-registry/internal/sync/mocks"
)

var builtAt = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

// newStorage returns a storage holding an index when withIndex is set
func newStorage(t *testing.T, withIndex bool) sources.StorageManager {
	t.Helper()
	storage := sources.NewFileStorageManager(t.TempDir())
	if withIndex {
		idx := &registry.Index{Packages: registry.NewTestPackages(
			registry.WithPackage("acme/lib", registry.NewTestDescriptor("acme/lib", "1.0.0")),
		)}
		require.NoError(t, storage.Store(context.Background(), idx, builtAt))
	}
	return storage
}

func get(t *testing.T, handler http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for key, values := range header {
		req.Header[key] = values
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestPackagesEndpoint(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := mocks.NewMockManager(ctrl)
	mockManager.EXPECT().
		Sync(gomock.Any(), sync.Options{}).
		Return(&sync.Result{Reason: sync.ReasonUpToDate, ModTime: builtAt}, nil)

	storage := newStorage(t, true)
	rr := get(t, api.NewServer(mockManager, storage), "/packages.json", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=0", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "Mon, 03 Feb 2025 04:05:06 GMT", rr.Header().Get("Last-Modified"))

	expected, err := os.ReadFile(storage.Path())
	require.NoError(t, err)
	assert.Equal(t, expected, rr.Body.Bytes())

	idx, err := registry.ParseIndex(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/lib"}, idx.Packages.Names())
}

func TestPackagesEndpoint_Force(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		force bool
	}{
		{name: "force=1", query: "?force=1", force: true},
		{name: "force=true", query: "?force=true", force: true},
		{name: "bare force", query: "?force", force: true},
		{name: "empty force", query: "?force=", force: true},
		{name: "force=yes", query: "?force=yes", force: true},
		{name: "force=0", query: "?force=0", force: false},
		{name: "force=FALSE", query: "?force=FALSE", force: false},
		{name: "no parameter", query: "", force: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockManager := mocks.NewMockManager(ctrl)
			mockManager.EXPECT().
				Sync(gomock.Any(), sync.Options{Force: tt.force}).
				Return(&sync.Result{Rebuilt: tt.force}, nil)

			rr := get(t, api.NewServer(mockManager, newStorage(t, true)), "/packages.json"+tt.query, nil)
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestPackagesEndpoint_ConditionalGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		ifModSince     string
		expectedStatus int
	}{
		{name: "same time", ifModSince: builtAt.Format(http.TimeFormat), expectedStatus: http.StatusNotModified},
		{name: "client is newer", ifModSince: builtAt.Add(time.Hour).Format(http.TimeFormat), expectedStatus: http.StatusNotModified},
		{name: "client is older", ifModSince: builtAt.Add(-time.Second).Format(http.TimeFormat), expectedStatus: http.StatusOK},
		{name: "unparseable date", ifModSince: "last tuesday", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockManager := mocks.NewMockManager(ctrl)
			mockManager.EXPECT().Sync(gomock.Any(), gomock.Any()).Return(&sync.Result{}, nil)

			rr := get(t, api.NewServer(mockManager, newStorage(t, true)), "/packages.json",
				http.Header{"If-Modified-Since": {tt.ifModSince}})

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "max-age=0", rr.Header().Get("Cache-Control"))
			if tt.expectedStatus == http.StatusNotModified {
				assert.Empty(t, rr.Body.Bytes())
			} else {
				assert.NotEmpty(t, rr.Body.Bytes())
			}
		})
	}
}

func TestPackagesEndpoint_SyncFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		withIndex      bool
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "stale index is served",
			err:            &sync.Error{Err: errors.New("timeout"), Message: "Failed to enumerate projects: timeout", Reason: sync.ErrorReasonEnumeration},
			withIndex:      true,
			expectedStatus: http.StatusOK,
			expectedType:   "application/json",
		},
		{
			name:           "no index to fall back on",
			err:            &sync.Error{Err: errors.New("timeout"), Message: "Failed to enumerate projects: timeout", Reason: sync.ErrorReasonEnumeration},
			withIndex:      false,
			expectedStatus: http.StatusInternalServerError,
			expectedType:   "text/plain; charset=utf-8",
		},
		{
			name:           "unusable cache directory",
			err:            &sync.Error{Err: sync.ErrCacheDirUnusable, Message: "Cache directory check failed", Reason: sync.ErrorReasonCacheDir},
			withIndex:      true,
			expectedStatus: http.StatusInternalServerError,
			expectedType:   "text/plain; charset=utf-8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockManager := mocks.NewMockManager(ctrl)
			mockManager.EXPECT().Sync(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			rr := get(t, api.NewServer(mockManager, newStorage(t, tt.withIndex)), "/packages.json", nil)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedType, rr.Header().Get("Content-Type"))
		})
	}
}

func TestPackagesEndpoint_RebuildOnRequestDisabled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := mocks.NewMockManager(ctrl)
	mockManager.EXPECT().Sync(gomock.Any(), gomock.Any()).Times(0)

	server := api.NewServer(mockManager, newStorage(t, true), api.WithRebuildOnRequest(false))

	rr := get(t, server, "/packages.json?force=1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	rr := get(t, api.NewServer(mocks.NewMockManager(ctrl), newStorage(t, false)), "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		withIndex      bool
		expectedStatus int
		expectedKey    string
	}{
		{name: "index built", withIndex: true, expectedStatus: http.StatusOK, expectedKey: "status"},
		{name: "index missing", withIndex: false, expectedStatus: http.StatusServiceUnavailable, expectedKey: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			rr := get(t, api.NewServer(mocks.NewMockManager(ctrl), newStorage(t, tt.withIndex)), "/readiness", nil)
			assert.Equal(t, tt.expectedStatus, rr.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Contains(t, response, tt.expectedKey)
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("returns the last build status", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		mockManager := mocks.NewMockManager(ctrl)
		mockManager.EXPECT().Status(gomock.Any()).Return(&status.BuildStatus{
			Phase:         status.BuildPhaseComplete,
			Reason:        string(sync.ReasonRepositoryActivity),
			LastBuildTime: &builtAt,
			PackageCount:  4,
		}, nil)

		rr := get(t, api.NewServer(mockManager, newStorage(t, true)), "/status", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var st status.BuildStatus
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
		assert.Equal(t, status.BuildPhaseComplete, st.Phase)
		assert.Equal(t, "repository-activity", st.Reason)
		assert.Equal(t, 4, st.PackageCount)
	})

	t.Run("status store failure", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		mockManager := mocks.NewMockManager(ctrl)
		mockManager.EXPECT().Status(gomock.Any()).Return(nil, errors.New("corrupt status file"))

		rr := get(t, api.NewServer(mockManager, newStorage(t, true)), "/status", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	rr := get(t, api.NewServer(mocks.NewMockManager(ctrl), newStorage(t, false)), "/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.NotEmpty(t, response["version"])
	assert.NotEmpty(t, response["go_version"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	storage := newStorage(t, false)

	rr := get(t, api.NewServer(mocks.NewMockManager(ctrl), storage), "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("composer_registry_packages 1\n"))
	})
	rr = get(t, api.NewServer(mocks.NewMockManager(ctrl), storage, api.WithMetricsHandler(metrics)), "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "composer_registry_packages")
}

func TestMiddlewaresAreApplied(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	tagged := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Tagged", "yes")
			next.ServeHTTP(w, r)
		})
	}

	server := api.NewServer(mocks.NewMockManager(ctrl), newStorage(t, false),
		api.WithMiddlewares(tagged, api.LoggingMiddleware))

	rr := get(t, server, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "yes", rr.Header().Get("X-Tagged"))
}
