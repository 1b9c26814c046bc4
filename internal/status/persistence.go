// Package status provides build status tracking and persistence for the registry.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stacklok/gitlab-composer-registry/internal/fileutil"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for build status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the build status to persistent storage
	SaveStatus(ctx context.Context, status *BuildStatus) error

	// LoadStatus loads the build status from persistent storage.
	// Returns an empty BuildStatus if the file doesn't exist (first run)
	LoadStatus(ctx context.Context) (*BuildStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// basePath is the directory the status file is stored in
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

func (f *fileStatusPersistence) path() string {
	return filepath.Join(f.basePath, StatusFileName)
}

// SaveStatus saves the build status to a JSON file
func (f *fileStatusPersistence) SaveStatus(_ context.Context, status *BuildStatus) error {
	// Pretty printed for readability
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build status: %w", err)
	}

	if err := fileutil.WriteFileAtomic(f.path(), data, 0600, time.Time{}); err != nil {
		return fmt.Errorf("failed to write build status: %w", err)
	}
	return nil
}

// LoadStatus loads the build status from the JSON file.
// Returns an empty BuildStatus if the file doesn't exist
func (f *fileStatusPersistence) LoadStatus(_ context.Context) (*BuildStatus, error) {
	// #nosec G304 -- path is constructed from the configured cache directory
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist - this is OK for first run
			return &BuildStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read build status: %w", err)
	}

	var status BuildStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal build status: %w", err)
	}

	return &status, nil
}
