package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers of the process and, when
// metrics are scraped, the handler serving them on /metrics.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler
}

// Option is a function that configures the telemetry setup
type Option func(*telemetryConfig)

type telemetryConfig struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry block of the registry configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(tc *telemetryConfig) {
		tc.config = cfg
	}
}

// shutdowner is implemented by the SDK providers; the no-op ones are skipped
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// New builds the providers described by the configuration. A nil or disabled
// configuration yields no-op providers. Shutdown must be called on exit.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	tc := &telemetryConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	cfg := tc.config

	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		return newTelemetry(ctx, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	slog.Info("Initializing telemetry",
		"service_name", cfg.GetServiceName(),
		"service_version", cfg.GetServiceVersion(),
	)

	providerOpts := []ProviderOption{
		WithService(cfg.GetServiceName(), cfg.GetServiceVersion()),
		WithCollector(cfg.GetEndpoint(), cfg.GetInsecure()),
		WithTracingConfig(cfg.Tracing),
		WithMetricsConfig(cfg.Metrics),
	}

	var metricsHandler http.Handler
	if cfg.Metrics != nil && cfg.Metrics.Enabled && cfg.Metrics.GetExporter() == ExporterPrometheus {
		reg := prometheus.NewRegistry()
		providerOpts = append(providerOpts, WithPrometheusRegistry(reg))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	tel, err := newTelemetry(ctx, providerOpts)
	if err != nil {
		return nil, err
	}
	tel.metricsHandler = metricsHandler

	slog.Info("Telemetry initialized")
	return tel, nil
}

// newTelemetry creates both providers from the same options. With no options
// both are no-op.
func newTelemetry(ctx context.Context, providerOpts []ProviderOption) (*Telemetry, error) {
	tp, err := NewTracerProvider(ctx, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	mp, err := NewMeterProvider(ctx, providerOpts...)
	if err != nil {
		if s, ok := tp.(shutdowner); ok {
			_ = s.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	return &Telemetry{tracerProvider: tp, meterProvider: mp}, nil
}

// TracerProvider returns the configured tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the prometheus scrape handler, or nil when metrics
// are not exported in the prometheus format
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Tracer returns a named tracer from the tracer provider
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a named meter from the meter provider
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return t.meterProvider.Meter(name, opts...)
}

// Shutdown flushes and stops the SDK providers. No-op providers make it a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for name, p := range map[string]any{"tracer": t.tracerProvider, "meter": t.meterProvider} {
		s, ok := p.(shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown %s provider: %w", name, err))
			continue
		}
		slog.Debug("Telemetry provider shut down", "provider", name)
	}
	return errors.Join(errs...)
}
