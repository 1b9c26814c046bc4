package app

import (
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	pkgsync "github.com/stacklok/gitlab-composer-registry/internal/sync"
	"github.com/stacklok/gitlab-composer-registry/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncManager builds the index
	SyncManager pkgsync.Manager

	// SyncCoordinator runs background rebuilds, nil when rebuild_interval is unset
	SyncCoordinator coordinator.Coordinator

	// Storage serves the stored index
	Storage sources.StorageManager
}
