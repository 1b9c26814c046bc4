package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/gitlab-composer-registry/internal/cache"
	"github.com/stacklok/gitlab-composer-registry/internal/config"
	"github.com/stacklok/gitlab-composer-registry/internal/filtering"
	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/otel"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	"github.com/stacklok/gitlab-composer-registry/internal/status"
	"github.com/stacklok/gitlab-composer-registry/internal/telemetry"
)

// ErrCacheDirUnusable is returned when the cache directory cannot be created or written
var ErrCacheDirUnusable = errors.New("cache directory is not usable")

// Options tunes a single run
type Options struct {
	// Force rebuilds the index even when it is up to date
	Force bool
}

// Result contains the outcome of a successful run
type Result struct {
	// Rebuilt is set when a new index was stored
	Rebuilt bool
	// Reason explains the rebuild decision
	Reason Reason
	// RunID identifies the run in logs and traces
	RunID string
	// PackageCount is the number of packages in the stored index
	PackageCount int
	// VersionCount is the number of versions in the stored index
	VersionCount int
	// RepositoryCount is the number of enumerated projects
	RepositoryCount int
	// Skipped is the number of projects left out after an error
	Skipped int
	// ModTime is the modification time of the served index
	ModTime time.Time
}

// Error represents a run failure with a reason for status reporting
type Error struct {
	Err     error
	Message string
	Reason  string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(reason, msg string, err error) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s: %v", msg, err),
		Reason:  reason,
	}
}

// Manager builds the registry index
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager
type Manager interface {
	// Sync rebuilds the index when it is stale or when forced
	Sync(ctx context.Context, opts Options) (*Result, error)

	// Status returns the persisted status of the last build
	Status(ctx context.Context) (*status.BuildStatus, error)

	// ClearCache erases every repository record and the index
	ClearCache(ctx context.Context) error
}

// manager is the default implementation of Manager
type manager struct {
	cfg            *config.Config
	client         gitlab.Client
	repoCache      *cache.RepositoryCache
	storage        sources.StorageManager
	static         *sources.StaticSource
	statusStore    status.StatusPersistence
	configDetector ConfigChangeDetector
	filter         *filtering.ProjectFilter

	buildMetrics    *telemetry.BuildMetrics
	registryMetrics *telemetry.RegistryMetrics
	tracer          trace.Tracer

	now         func() time.Time
	lockTimeout time.Duration

	group singleflight.Group
	runMu stdsync.Mutex
}

// Option configures the manager
type Option func(*manager)

// WithBuildMetrics sets the build metrics; they also observe cache lookups
func WithBuildMetrics(metrics *telemetry.BuildMetrics) Option {
	return func(m *manager) {
		m.buildMetrics = metrics
	}
}

// WithRegistryMetrics sets the index size metrics
func WithRegistryMetrics(metrics *telemetry.RegistryMetrics) Option {
	return func(m *manager) {
		m.registryMetrics = metrics
	}
}

// WithTracer sets the tracer for run spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *manager) {
		m.tracer = tracer
	}
}

// WithStorageManager replaces the index storage
func WithStorageManager(storage sources.StorageManager) Option {
	return func(m *manager) {
		m.storage = storage
	}
}

// WithStatusPersistence replaces the build status store
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(m *manager) {
		m.statusStore = p
	}
}

// WithConfigChangeDetector replaces the configuration change detector
func WithConfigChangeDetector(d ConfigChangeDetector) Option {
	return func(m *manager) {
		m.configDetector = d
	}
}

// WithClock sets the time source used for build timestamps
func WithClock(now func() time.Time) Option {
	return func(m *manager) {
		m.now = now
	}
}

// WithLockTimeout bounds the wait for a build running in another process
func WithLockTimeout(d time.Duration) Option {
	return func(m *manager) {
		m.lockTimeout = d
	}
}

// NewManager creates a manager building the index for cfg from client
func NewManager(cfg *config.Config, client gitlab.Client, opts ...Option) (Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if client == nil {
		return nil, fmt.Errorf("gitlab client is required")
	}

	static, err := sources.NewStaticSource(cfg.StaticFile)
	if err != nil {
		return nil, err
	}
	filter, err := filtering.NewProjectFilter(cfg.Filter.Rules())
	if err != nil {
		return nil, fmt.Errorf("invalid project filter: %w", err)
	}

	m := &manager{
		cfg:            cfg,
		client:         client,
		static:         static,
		filter:         filter,
		storage:        sources.NewFileStorageManager(cfg.CacheDir),
		statusStore:    status.NewFileStatusPersistence(cfg.CacheDir),
		configDetector: NewConfigChangeDetector(cfg.ModTime),
		now:            time.Now,
		lockTimeout:    DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	var cacheOpts []cache.Option
	if m.buildMetrics != nil {
		cacheOpts = append(cacheOpts, cache.WithRecorder(m.buildMetrics))
	}
	m.repoCache = cache.New(cfg.CacheDir, cacheOpts...)

	return m, nil
}

// Sync implements Manager. Callers arriving while a run with the same options
// is in flight wait for it and share its result.
func (m *manager) Sync(ctx context.Context, opts Options) (*Result, error) {
	key := "check"
	if opts.Force {
		key = "force"
	}

	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.run(ctx, opts)
	})
	if shared {
		slog.Debug("Joined in-flight build", "forced", opts.Force)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Status implements Manager
func (m *manager) Status(ctx context.Context) (*status.BuildStatus, error) {
	return m.statusStore.LoadStatus(ctx)
}

// ClearCache implements Manager
func (m *manager) ClearCache(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if err := ensureCacheDir(m.cfg.CacheDir); err != nil {
		return err
	}
	fl, err := acquireLock(ctx, m.cfg.CacheDir, m.lockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("Failed to release build lock", "error", err)
		}
	}()

	return m.repoCache.ClearAll(ctx)
}

// run performs one complete check-and-rebuild cycle under the build lock
func (m *manager) run(ctx context.Context, opts Options) (*Result, error) {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID)

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.Run",
		trace.WithAttributes(
			otel.AttrRunID.String(runID),
			otel.AttrForced.Bool(opts.Force),
		),
	)
	defer span.End()

	m.runMu.Lock()
	defer m.runMu.Unlock()

	start := m.now()

	if err := ensureCacheDir(m.cfg.CacheDir); err != nil {
		otel.RecordError(span, err)
		return nil, newError(ErrorReasonCacheDir, "Cache directory check failed", err)
	}

	fl, err := acquireLock(ctx, m.cfg.CacheDir, m.lockTimeout)
	if err != nil {
		otel.RecordError(span, err)
		return nil, newError(ErrorReasonLock, "Build lock unavailable", err)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			logger.Warn("Failed to release build lock", "error", err)
		}
	}()

	state, fail := m.inspect(ctx, logger, opts, runID, start)
	if fail != nil {
		otel.RecordError(span, fail)
		return nil, fail
	}

	reason := ShouldRebuild(state.IndexState)
	span.SetAttributes(
		otel.AttrBuildReason.String(reason.String()),
		otel.AttrRepoCount.Int(len(state.projects)),
	)

	if !reason.ShouldRebuild() {
		logger.Debug("Index is up to date",
			"index_mtime", state.IndexModTime,
			"max_activity", state.MaxActivity,
			"repositories", len(state.projects))
		return &Result{
			Rebuilt:         false,
			Reason:          reason,
			RunID:           runID,
			RepositoryCount: len(state.projects),
			ModTime:         state.IndexModTime,
		}, nil
	}

	logger.Info("Rebuilding index",
		"reason", reason,
		"repositories", len(state.projects),
		"workers", m.cfg.Workers)

	st := state.previous
	st.Phase = status.BuildPhaseBuilding
	st.Message = "Build in progress"
	st.Reason = reason.String()
	st.RunID = runID
	st.LastAttempt = &start
	st.AttemptCount++
	m.saveStatus(ctx, logger, st)

	outcome, buildErr := m.rebuild(ctx, logger, state.projects, start)
	duration := m.now().Sub(start)
	if buildErr != nil {
		otel.RecordError(span, buildErr)
		st.Phase = status.BuildPhaseFailed
		st.Message = buildErr.Message
		m.saveStatus(ctx, logger, st)
		m.buildMetrics.RecordBuildDuration(ctx, reason.String(), duration, false)
		logger.Error("Index build failed", "reason", reason, "error", buildErr.Message)
		return nil, buildErr
	}

	packageCount := len(outcome.packages)
	versionCount := outcome.packages.VersionCount()

	st.Phase = status.BuildPhaseComplete
	st.Message = fmt.Sprintf("Index built with %d packages", packageCount)
	st.LastBuildTime = &start
	st.AttemptCount = 0
	st.PackageCount = packageCount
	st.VersionCount = versionCount
	st.RepositoryCount = len(state.projects)
	st.SkippedCount = outcome.skipped
	st.LatestReleases = latestReleases(outcome.packages)
	m.saveStatus(ctx, logger, st)

	m.buildMetrics.RecordBuildDuration(ctx, reason.String(), duration, true)
	m.registryMetrics.RecordIndexSize(ctx, packageCount, versionCount)
	span.SetAttributes(otel.AttrPackageCount.Int(packageCount))

	logger.Info("Index built",
		"reason", reason,
		"packages", packageCount,
		"versions", versionCount,
		"repositories", len(state.projects),
		"skipped", outcome.skipped,
		"duration", duration)

	return &Result{
		Rebuilt:         true,
		Reason:          reason,
		RunID:           runID,
		PackageCount:    packageCount,
		VersionCount:    versionCount,
		RepositoryCount: len(state.projects),
		Skipped:         outcome.skipped,
		ModTime:         start,
	}, nil
}

// runState is what a run learns before deciding whether to rebuild
type runState struct {
	IndexState
	projects []gitlab.Project
	previous *status.BuildStatus
}

// inspect gathers the rebuild inputs. A configuration change clears the
// repository cache here, before any GitLab call.
func (m *manager) inspect(
	ctx context.Context, logger *slog.Logger, opts Options, runID string, start time.Time,
) (*runState, *Error) {
	state := &runState{}
	state.Forced = opts.Force

	idxModTime, idxExists, err := m.storage.ModTime(ctx)
	if err != nil {
		return nil, newError(ErrorReasonStorage, "Failed to inspect index", err)
	}
	state.IndexExists = idxExists
	state.IndexModTime = idxModTime

	changed, err := m.configDetector.IsConfigChanged(ctx, idxModTime, idxExists)
	if err != nil {
		return nil, newError(ErrorReasonConfig, "Failed to inspect configuration", err)
	}
	state.ConfigChanged = changed
	if changed {
		if err := m.clearForConfigChange(ctx, logger, idxModTime, idxExists); err != nil {
			return nil, newError(ErrorReasonClearCache, "Failed to clear cache", err)
		}
	}

	previous, err := m.statusStore.LoadStatus(ctx)
	if err != nil {
		logger.Warn("Failed to load build status, starting fresh", "error", err)
		previous = &status.BuildStatus{}
	}
	state.previous = previous

	projects, maxActivity, err := m.enumerateProjects(ctx, logger)
	if err != nil {
		fail := newError(ErrorReasonEnumeration, "Failed to enumerate projects", err)
		m.recordFailure(ctx, logger, previous, fail, runID, start)
		return nil, fail
	}
	state.projects = projects
	state.MaxActivity = maxActivity

	staticModTime, staticExists, err := m.static.ModTime()
	if err != nil {
		fail := newError(ErrorReasonStatic, "Failed to inspect static packages", err)
		m.recordFailure(ctx, logger, previous, fail, runID, start)
		return nil, fail
	}
	state.StaticExists = staticExists
	state.StaticModTime = staticModTime

	return state, nil
}

// servedFiles live in the cache directory but are not cache records. A config
// change keeps them so a failed rebuild still leaves the previous index served.
var servedFiles = []string{sources.IndexFileName, status.StatusFileName}

// clearForConfigChange erases the repository cache records. A cache directory
// that holds no record yet is left alone.
func (m *manager) clearForConfigChange(
	ctx context.Context, logger *slog.Logger, idxModTime time.Time, idxExists bool,
) error {
	empty, err := m.repoCache.Empty(servedFiles...)
	if err != nil {
		return err
	}
	if empty {
		return nil
	}
	logger.Info("Configuration is newer than the index, clearing cache",
		"index_exists", idxExists,
		"index_mtime", idxModTime)
	return m.repoCache.ClearAll(ctx, servedFiles...)
}

// recordFailure persists a failed attempt that ended before the rebuild started
func (m *manager) recordFailure(
	ctx context.Context, logger *slog.Logger, st *status.BuildStatus, fail *Error, runID string, at time.Time,
) {
	st.Phase = status.BuildPhaseFailed
	st.Message = fail.Message
	st.Reason = fail.Reason
	st.RunID = runID
	st.LastAttempt = &at
	st.AttemptCount++
	m.saveStatus(ctx, logger, st)
	logger.Error("Index build failed", "reason", fail.Reason, "error", fail.Message)
}

func (m *manager) saveStatus(ctx context.Context, logger *slog.Logger, st *status.BuildStatus) {
	if err := m.statusStore.SaveStatus(ctx, st); err != nil {
		logger.Warn("Failed to persist build status", "phase", st.Phase, "error", err)
	}
}

// ensureCacheDir creates the cache directory if needed and checks it is writable
func ensureCacheDir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheDirUnusable, err)
	}
	tmp, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheDirUnusable, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheDirUnusable, err)
	}
	return nil
}
