package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pkgsync "github.com/stacklok/gitlab-composer-registry/internal/sync"
)

// Coordinator runs index checks in the background
type Coordinator interface {
	// Start runs a check immediately and then once per interval.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for a running check to return
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager  pkgsync.Manager
	interval time.Duration
	jitter   float64

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithJitterFraction overrides DefaultJitterFraction; zero disables jitter
func WithJitterFraction(fraction float64) Option {
	return func(c *defaultCoordinator) {
		c.jitter = fraction
	}
}

// New creates a coordinator calling manager every interval
func New(manager pkgsync.Manager, interval time.Duration, opts ...Option) (Coordinator, error) {
	if manager == nil {
		return nil, fmt.Errorf("sync manager is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}

	c := &defaultCoordinator{
		manager:  manager,
		interval: interval,
		jitter:   DefaultJitterFraction,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start implements Coordinator
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("coordinator already started")
	}
	c.cancelFunc = cancel
	c.mu.Unlock()

	slog.Info("Starting background rebuild coordinator", "interval", c.interval)
	defer func() {
		close(c.done)
		slog.Info("Background rebuild coordinator shutting down")
	}()

	c.runSync(coordCtx)

	timer := time.NewTimer(jitteredInterval(c.interval, c.jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			c.runSync(coordCtx)
			timer.Reset(jitteredInterval(c.interval, c.jitter))
		case <-coordCtx.Done():
			return nil
		}
	}
}

// Stop implements Coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping background rebuild coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// runSync performs one check. Failures are logged and retried on the next tick.
func (c *defaultCoordinator) runSync(ctx context.Context) {
	result, err := c.manager.Sync(ctx, pkgsync.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Background rebuild failed", "error", err)
		return
	}

	if !result.Rebuilt {
		slog.Debug("Background check found the index up to date",
			"run_id", result.RunID,
			"repositories", result.RepositoryCount)
		return
	}
	slog.Info("Background rebuild completed",
		"run_id", result.RunID,
		"reason", result.Reason,
		"packages", result.PackageCount,
		"skipped", result.Skipped)
}
