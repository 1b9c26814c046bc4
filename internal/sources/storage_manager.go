package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stacklok/gitlab-composer-registry/internal/fileutil"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

const (
	// IndexFileName is the name of the served index file
	IndexFileName = "packages.json"
)

// ErrIndexNotFound is returned when no index has been built yet
var ErrIndexNotFound = errors.New("registry index not found")

//go:generate mockgen -destination=mocks/mock_storage_manager.go -package=mocks -source=storage_manager.go StorageManager

// StorageManager defines the interface for index persistence
type StorageManager interface {
	// Store atomically replaces the index. builtAt becomes the index
	// modification time, the reference point for later staleness checks.
	Store(ctx context.Context, idx *registry.Index, builtAt time.Time) error

	// Open returns the raw index file for serving
	Open(ctx context.Context) (*os.File, error)

	// ModTime returns the index modification time and whether it exists
	ModTime(ctx context.Context) (time.Time, bool, error)

	// Path returns the index file path
	Path() string
}

// fileStorageManager implements StorageManager using local filesystem
type fileStorageManager struct {
	basePath string
}

// NewFileStorageManager creates a new file-based storage manager
func NewFileStorageManager(basePath string) StorageManager {
	return &fileStorageManager{
		basePath: basePath,
	}
}

func (f *fileStorageManager) Path() string {
	return filepath.Join(f.basePath, IndexFileName)
}

// Store writes the index to packages.json
func (f *fileStorageManager) Store(_ context.Context, idx *registry.Index, builtAt time.Time) error {
	data, err := idx.Marshal()
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(f.Path(), data, 0644, builtAt); err != nil {
		return fmt.Errorf("failed to store registry index: %w", err)
	}
	return nil
}

// Open opens the index for reading
func (f *fileStorageManager) Open(_ context.Context) (*os.File, error) {
	file, err := os.Open(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("failed to open registry index: %w", err)
	}
	return file, nil
}

// ModTime returns the index modification time
func (f *fileStorageManager) ModTime(_ context.Context) (time.Time, bool, error) {
	return fileutil.ModTime(f.Path())
}
