package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/gitlab-composer-registry/internal/api"
	"github.com/stacklok/gitlab-composer-registry/internal/config"
	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	pkgsync "github.com/stacklok/gitlab-composer-registry/internal/sync"
	"github.com/stacklok/gitlab-composer-registry/internal/sync/coordinator"
	"github.com/stacklok/gitlab-composer-registry/internal/telemetry"
)

const (
	// ServiceTracerName names the tracer of build and GitLab spans
	ServiceTracerName = "github.com/stacklok/gitlab-composer-registry"

	defaultHTTPAddress = ":8080"
	// A request may wait for a full rebuild
	defaultRequestTimeout = 5 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = defaultRequestTimeout + 15*time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// RegistryAppOptions is a function that configures the registry app builder
type RegistryAppOptions func(*registryAppConfig) error

// registryAppConfig collects what NewRegistryApp builds from.
// Component overrides are mostly for tests.
type registryAppConfig struct {
	config *config.Config

	gitlabClient gitlab.Client
	syncManager  pkgsync.Manager
	storage      sources.StorageManager

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler

	// closers run when the app stops
	closers []func()
}

func baseConfig(opts ...RegistryAppOptions) (*registryAppConfig, error) {
	cfg := &registryAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewRegistryApp wires the GitLab client, the sync manager, the optional
// background coordinator and the HTTP server
func NewRegistryApp(
	ctx context.Context,
	opts ...RegistryAppOptions,
) (*RegistryApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if err := buildSyncManager(cfg); err != nil {
		return nil, fmt.Errorf("failed to build sync manager: %w", err)
	}

	syncCoordinator, err := buildCoordinator(cfg)
	if err != nil {
		cfg.close()
		return nil, fmt.Errorf("failed to build sync coordinator: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg)
	if err != nil {
		cfg.close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	return &RegistryApp{
		config: cfg.config,
		components: &AppComponents{
			SyncManager:     cfg.syncManager,
			SyncCoordinator: syncCoordinator,
			Storage:         cfg.storage,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: func() {
			cancel()
			cfg.close()
		},
	}, nil
}

// NewSyncManager builds only the sync manager, for one-shot commands.
// The returned function releases the GitLab client.
func NewSyncManager(opts ...RegistryAppOptions) (pkgsync.Manager, func(), error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if err := buildSyncManager(cfg); err != nil {
		return nil, nil, err
	}
	return cfg.syncManager, cfg.close, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithGitLabClient allows injecting a GitLab client (for testing)
func WithGitLabClient(c gitlab.Client) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.gitlabClient = c
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for build and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for build and HTTP spans
func WithTracerProvider(tp trace.TracerProvider) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves a Prometheus scrape handler on /metrics
func WithMetricsHandler(h http.Handler) RegistryAppOptions {
	return func(cfg *registryAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

func (b *registryAppConfig) close() {
	for _, fn := range b.closers {
		fn()
	}
	b.closers = nil
}

func (b *registryAppConfig) tracer() trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(ServiceTracerName)
}

// buildSyncManager builds the GitLab client and the sync manager unless injected
func buildSyncManager(b *registryAppConfig) error {
	b.storage = sources.NewFileStorageManager(b.config.CacheDir)
	if b.syncManager != nil {
		return nil
	}

	slog.Info("Initializing sync components",
		"endpoint", b.config.Endpoint,
		"groups", b.config.Groups,
		"cache_dir", b.config.CacheDir)

	if b.gitlabClient == nil {
		client, err := gitlab.NewClient(gitlab.Options{
			Endpoint:          b.config.Endpoint,
			Token:             b.config.APIKey,
			RequestsPerSecond: b.config.RequestsPerSecond,
			Tracer:            b.tracer(),
		})
		if err != nil {
			return fmt.Errorf("failed to create GitLab client: %w", err)
		}
		b.gitlabClient = client
		b.closers = append(b.closers, client.Close)
	}

	managerOpts := []pkgsync.Option{
		pkgsync.WithStorageManager(b.storage),
	}
	if tracer := b.tracer(); tracer != nil {
		managerOpts = append(managerOpts, pkgsync.WithTracer(tracer))
	}
	if b.meterProvider != nil {
		buildMetrics, err := telemetry.NewBuildMetrics(b.meterProvider)
		if err != nil {
			return fmt.Errorf("failed to create build metrics: %w", err)
		}
		registryMetrics, err := telemetry.NewRegistryMetrics(b.meterProvider)
		if err != nil {
			return fmt.Errorf("failed to create registry metrics: %w", err)
		}
		managerOpts = append(managerOpts,
			pkgsync.WithBuildMetrics(buildMetrics),
			pkgsync.WithRegistryMetrics(registryMetrics))
		slog.Info("Build metrics enabled")
	}

	manager, err := pkgsync.NewManager(b.config, b.gitlabClient, managerOpts...)
	if err != nil {
		return err
	}
	b.syncManager = manager
	return nil
}

// buildCoordinator returns nil when background rebuilds are disabled
func buildCoordinator(b *registryAppConfig) (coordinator.Coordinator, error) {
	interval, err := b.config.GetRebuildInterval()
	if err != nil {
		return nil, err
	}
	if interval == 0 {
		slog.Info("Background rebuilds disabled")
		return nil, nil
	}
	slog.Info("Background rebuilds enabled", "interval", interval)
	return coordinator.New(b.syncManager, interval)
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *registryAppConfig,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Telemetry goes first so it observes every request
	var prefix []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		prefix = append(prefix, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			prefix = append(prefix, metricsMiddleware)
			slog.Info("HTTP metrics middleware enabled")
		}
	}
	b.middlewares = append(prefix, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithRebuildOnRequest(b.config.RebuildOnRequest),
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(b.syncManager, b.storage, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
