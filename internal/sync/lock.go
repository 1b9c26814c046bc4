package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"

	"github.com/stacklok/gitlab-composer-registry/internal/cache"
)

// DefaultLockTimeout bounds the wait for a build running in another process
const DefaultLockTimeout = 5 * time.Minute

var errLockHeld = errors.New("build lock is held by another process")

// acquireLock takes the cross-process build lock of the cache directory,
// retrying with exponential backoff while another process holds it
func acquireLock(ctx context.Context, dir string, timeout time.Duration) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(dir, cache.LockFileName))

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (bool, error) {
		locked, err := fl.TryLock()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !locked {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire build lock %s: %w", fl.Path(), err)
	}
	return fl, nil
}
