// Package cache persists the computed versions of each repository, keyed by
// the repository's last activity time. A record is reused for as long as the
// repository shows no newer activity; there is no other invalidation signal.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stacklok/gitlab-composer-registry/internal/fileutil"
	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

const (
	// RecordExt is the file extension of cache records
	RecordExt = ".json"

	// LockFileName is the build lock kept in the cache directory; ClearAll never removes it
	LockFileName = ".build.lock"

	// minSafePathLength is the shortest cache directory ClearAll accepts
	minSafePathLength = 20
)

// ErrUnsafeCachePath is returned when ClearAll refuses to erase a directory
var ErrUnsafeCachePath = errors.New("cache directory failed safety check")

// Record is the persisted state of one repository
type Record struct {
	// LastActivityAt is the repository activity the record was computed against
	LastActivityAt time.Time `json:"last_activity_at"`
	// Empty marks a repository known to contribute no package
	Empty bool `json:"empty"`
	// Packages holds the repository's versions, keyed by version
	Packages registry.PackageEntry `json:"packages,omitempty"`
}

// FreshFor reports whether the record can be reused for project
func (r *Record) FreshFor(project gitlab.Project) bool {
	return !r.LastActivityAt.Before(project.LastActivityAt)
}

// ComputeFunc computes the versions of a repository on a cache miss
type ComputeFunc func(ctx context.Context) (registry.PackageEntry, error)

// Recorder observes cache lookups
type Recorder interface {
	RecordCacheLookup(ctx context.Context, hit bool)
}

// RepositoryCache stores one Record per repository under a directory
type RepositoryCache struct {
	dir      string
	recorder Recorder
}

// Option configures a RepositoryCache
type Option func(*RepositoryCache)

// WithRecorder observes hits and misses
func WithRecorder(r Recorder) Option {
	return func(c *RepositoryCache) {
		c.recorder = r
	}
}

// New creates a cache rooted at dir
func New(dir string, opts ...Option) *RepositoryCache {
	c := &RepositoryCache{dir: dir}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the cache directory
func (c *RepositoryCache) Dir() string {
	return c.dir
}

// RecordPath returns the record file of a repository path
func (c *RepositoryCache) RecordPath(pathWithNamespace string) (string, error) {
	rel := filepath.FromSlash(pathWithNamespace) + RecordExt
	if pathWithNamespace == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid repository path %q", pathWithNamespace)
	}
	return filepath.Join(c.dir, rel), nil
}

// Load returns the stored record of a repository, or nil when there is none
// or it cannot be decoded
func (c *RepositoryCache) Load(pathWithNamespace string) (*Record, error) {
	path, err := c.RecordPath(pathWithNamespace)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is validated to stay inside the cache directory
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache record for %s: %w", pathWithNamespace, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("Ignoring unreadable cache record", "path", pathWithNamespace, "error", err)
		return nil, nil
	}
	return &rec, nil
}

// Store persists a record atomically. The file's modification time is set to
// the record's activity time.
func (c *RepositoryCache) Store(pathWithNamespace string, rec *Record) error {
	path, err := c.RecordPath(pathWithNamespace)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record for %s: %w", pathWithNamespace, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0640, rec.LastActivityAt); err != nil {
		return fmt.Errorf("failed to store cache record for %s: %w", pathWithNamespace, err)
	}
	return nil
}

// FetchOrCompute returns the versions of project, reusing the stored record
// while it is fresh. On a miss compute is called and its result is stored
// against the project's current activity time. An empty result is stored as an
// empty marker and returned as a nil entry.
//
// A compute error classified by gitlab.IsRecoverable is also stored as an
// empty marker; any other error is returned and nothing is stored.
func (c *RepositoryCache) FetchOrCompute(
	ctx context.Context,
	project gitlab.Project,
	compute ComputeFunc,
) (registry.PackageEntry, error) {
	name := project.PathWithNamespace

	rec, err := c.Load(name)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.FreshFor(project) {
		c.observe(ctx, true)
		if rec.Empty || len(rec.Packages) == 0 {
			return nil, nil
		}
		return rec.Packages, nil
	}
	c.observe(ctx, false)

	entry, err := compute(ctx)
	if err != nil {
		if !gitlab.IsRecoverable(err) {
			return nil, err
		}
		slog.Debug("Repository contributes no package", "repository", name, "reason", err)
		entry = nil
	}

	next := &Record{LastActivityAt: project.LastActivityAt, Empty: len(entry) == 0}
	if !next.Empty {
		next.Packages = entry
	}
	if err := c.Store(name, next); err != nil {
		return nil, err
	}
	if next.Empty {
		return nil, nil
	}
	return entry, nil
}

func (c *RepositoryCache) observe(ctx context.Context, hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(ctx, hit)
	}
}
