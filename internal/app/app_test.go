package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	syncmocks "github.com/stacklok/gitlab-composer-registry/internal/sync/mocks"
)

// mockCoordinator implements the coordinator.Coordinator interface for testing
type mockCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
}

func (m *mockCoordinator) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	m.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (m *mockCoordinator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return nil
}

func (m *mockCoordinator) wasStartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockCoordinator) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// createTestApp creates a RegistryApp with mocked components listening on addr
func createTestApp(t *testing.T, ctrl *gomock.Controller, addr string) (*RegistryApp, *mockCoordinator) {
	t.Helper()

	cfg := createValidTestConfig(t)
	b := &registryAppConfig{
		config:         cfg,
		syncManager:    syncmocks.NewMockManager(ctrl),
		storage:        sources.NewFileStorageManager(cfg.CacheDir),
		address:        addr,
		requestTimeout: 10 * time.Second,
		readTimeout:    10 * time.Second,
		writeTimeout:   15 * time.Second,
		idleTimeout:    60 * time.Second,
	}
	server, err := buildHTTPServer(context.Background(), b)
	require.NoError(t, err)

	coord := &mockCoordinator{}
	appCtx, cancel := context.WithCancel(context.Background())
	return &RegistryApp{
		config: cfg,
		components: &AppComponents{
			SyncManager:     b.syncManager,
			SyncCoordinator: coord,
			Storage:         b.storage,
		},
		httpServer: server,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, coord
}

func waitForStart(t *testing.T, coord *mockCoordinator) {
	t.Helper()
	require.Eventually(t, coord.wasStartCalled, 5*time.Second, 10*time.Millisecond,
		"sync coordinator should be started")
}

func TestRegistryApp_StartStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, coord := createTestApp(t, ctrl, "127.0.0.1:0")

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()
	waitForStart(t, coord)

	require.NoError(t, app.Stop(5*time.Second))
	assert.True(t, coord.wasStopCalled())

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestRegistryApp_ServesHealth(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, coord := createTestApp(t, ctrl, ":0")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	actualAddr := listener.Addr().String()
	require.NoError(t, listener.Close())
	app.httpServer.Addr = actualAddr

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()
	waitForStart(t, coord)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + actualAddr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))
	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestRegistryApp_StartFailsOnBusyAddress(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	ctrl := gomock.NewController(t)
	app, _ := createTestApp(t, ctrl, listener.Addr().String())

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")
	app.cancelFunc()
}
