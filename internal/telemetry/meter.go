package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultMetricsInterval is how often metrics are pushed to an OTLP collector
const DefaultMetricsInterval = 60 * time.Second

// errNoRegistry is returned when the prometheus exporter is selected without a registry
var errNoRegistry = errors.New("prometheus exporter requires a registry")

// NewMeterProvider returns an SDK meter provider when metrics are enabled and
// a no-op provider otherwise. The SDK provider is installed globally; the
// caller must shut it down.
func NewMeterProvider(ctx context.Context, opts ...ProviderOption) (metric.MeterProvider, error) {
	s := newProviderSettings(opts)

	if s.metrics == nil || !s.metrics.Enabled {
		slog.Debug("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil
	}

	res, err := s.newResource(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := newMetricsReader(ctx, s)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"exporter", s.metrics.GetExporter(),
		"endpoint", s.endpoint,
		"insecure", s.insecure,
	)

	return mp, nil
}

// newMetricsReader picks the reader for the configured exporter: a periodic
// OTLP push, or a prometheus collector scraped through the registry
func newMetricsReader(ctx context.Context, s *providerSettings) (sdkmetric.Reader, error) {
	if s.metrics.GetExporter() == ExporterPrometheus {
		if s.registry == nil {
			return nil, errNoRegistry
		}
		exporter, err := otelprom.New(otelprom.WithRegisterer(s.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus metrics exporter: %w", err)
		}
		return exporter, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(DefaultMetricsInterval)), nil
}
