package sync

import (
	"context"
	"time"
)

// IndexState describes the served index and its inputs at the start of a run
type IndexState struct {
	// IndexExists is false when no index has been built
	IndexExists bool
	// IndexModTime is the build time of the index
	IndexModTime time.Time
	// ConfigChanged is the verdict of the ConfigChangeDetector
	ConfigChanged bool
	// Forced is set when the caller requested a rebuild
	Forced bool
	// MaxActivity is the newest last_activity_at across enumerated projects
	MaxActivity time.Time
	// StaticExists is false when no static package file is present
	StaticExists bool
	// StaticModTime is the static package file's modification time
	StaticModTime time.Time
}

// ShouldRebuild decides whether the index has to be rebuilt. An index exactly
// as new as the newest project activity is up to date.
func ShouldRebuild(state IndexState) Reason {
	switch {
	case !state.IndexExists:
		return ReasonIndexMissing
	case state.ConfigChanged:
		return ReasonConfigChanged
	case state.Forced:
		return ReasonForced
	case state.IndexModTime.Before(state.MaxActivity):
		return ReasonRepositoryActivity
	case state.StaticExists && state.StaticModTime.After(state.IndexModTime):
		return ReasonStaticChanged
	}
	return ReasonUpToDate
}

// ConfigChangeDetector decides whether the configuration changed since the index was built
type ConfigChangeDetector interface {
	// IsConfigChanged reports whether the configuration is newer than an index
	// built at indexModTime. A missing index always counts as a change.
	IsConfigChanged(ctx context.Context, indexModTime time.Time, indexExists bool) (bool, error)
}

// ModTimeFunc returns a file's modification time
type ModTimeFunc func() (time.Time, error)

// DefaultConfigChangeDetector compares the configuration file mtime to the index mtime
type DefaultConfigChangeDetector struct {
	configModTime ModTimeFunc
}

// NewConfigChangeDetector creates a detector reading the configuration mtime from modTime
func NewConfigChangeDetector(modTime ModTimeFunc) *DefaultConfigChangeDetector {
	return &DefaultConfigChangeDetector{configModTime: modTime}
}

// IsConfigChanged implements ConfigChangeDetector. Equal times are no change.
func (d *DefaultConfigChangeDetector) IsConfigChanged(
	_ context.Context, indexModTime time.Time, indexExists bool,
) (bool, error) {
	if !indexExists {
		return true, nil
	}
	if d.configModTime == nil {
		return false, nil
	}
	cfgModTime, err := d.configModTime()
	if err != nil {
		return false, err
	}
	return cfgModTime.After(indexModTime), nil
}
