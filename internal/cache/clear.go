package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// ClearAll erases every cache record and every other entry of the cache
// directory except the build lock and the top-level entries named in keep.
// It refuses to run on a directory that does not look like a dedicated cache
// directory.
func (c *RepositoryCache) ClearAll(ctx context.Context, keep ...string) error {
	dir, err := checkSafeDir(c.dir)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if kept(entry.Name(), keep) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s from cache directory: %w", entry.Name(), err)
		}
		removed++
	}

	slog.Info("Cache cleared", "dir", dir, "entries", removed)
	return nil
}

// checkSafeDir returns the cleaned absolute form of dir, or ErrUnsafeCachePath
// when the path is too short, is the root or a top-level directory, or is not
// an existing directory
func checkSafeDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafeCachePath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeCachePath, err)
	}
	abs = filepath.Clean(abs)

	if len(abs) < minSafePathLength {
		return "", fmt.Errorf("%w: %q is shorter than %d characters", ErrUnsafeCachePath, abs, minSafePathLength)
	}
	parent := filepath.Dir(abs)
	if abs == parent || filepath.Dir(parent) == parent {
		return "", fmt.Errorf("%w: %q is the filesystem root or a top-level directory", ErrUnsafeCachePath, abs)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeCachePath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrUnsafeCachePath, abs)
	}
	return abs, nil
}

// Empty reports whether the cache directory holds nothing ClearAll would
// remove given the same keep list. A missing directory is empty.
func (c *RepositoryCache) Empty(keep ...string) (bool, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read cache directory %s: %w", c.dir, err)
	}
	for _, entry := range entries {
		if !kept(entry.Name(), keep) {
			return false, nil
		}
	}
	return true, nil
}

func kept(name string, keep []string) bool {
	return name == LockFileName || slices.Contains(keep, name)
}
