// Package telemetry provides OpenTelemetry instrumentation for the registry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RegistryMetricsMeterName is the name used for the registry metrics meter
	RegistryMetricsMeterName = "github.com/stacklok/gitlab-composer-registry/registry"

	// BuildMetricsMeterName is the name used for the build metrics meter
	BuildMetricsMeterName = "github.com/stacklok/gitlab-composer-registry/build"
)

// RegistryMetrics holds the OpenTelemetry instruments for index content metrics
type RegistryMetrics struct {
	packagesTotal metric.Int64Gauge
	versionsTotal metric.Int64Gauge
}

// NewRegistryMetrics creates a new RegistryMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRegistryMetrics(provider metric.MeterProvider) (*RegistryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RegistryMetricsMeterName)

	packagesTotal, err := meter.Int64Gauge(
		"composer_registry_packages_total",
		metric.WithDescription("Number of packages in the served index"),
		metric.WithUnit("{package}"),
	)
	if err != nil {
		return nil, err
	}

	versionsTotal, err := meter.Int64Gauge(
		"composer_registry_versions_total",
		metric.WithDescription("Number of package versions in the served index"),
		metric.WithUnit("{version}"),
	)
	if err != nil {
		return nil, err
	}

	return &RegistryMetrics{
		packagesTotal: packagesTotal,
		versionsTotal: versionsTotal,
	}, nil
}

// RecordIndexSize records the package and version counts of a freshly built index
func (m *RegistryMetrics) RecordIndexSize(ctx context.Context, packages, versions int) {
	if m == nil || m.packagesTotal == nil {
		return
	}

	m.packagesTotal.Record(ctx, int64(packages))
	m.versionsTotal.Record(ctx, int64(versions))
}

// BuildMetrics holds the OpenTelemetry instruments for index build metrics
type BuildMetrics struct {
	buildDuration      metric.Float64Histogram
	cacheLookups       metric.Int64Counter
	repositoryFailures metric.Int64Counter
}

// NewBuildMetrics creates a new BuildMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewBuildMetrics(provider metric.MeterProvider) (*BuildMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(BuildMetricsMeterName)

	buildDuration, err := meter.Float64Histogram(
		"composer_registry_build_duration_seconds",
		metric.WithDescription("Duration of index builds in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"composer_registry_cache_lookups_total",
		metric.WithDescription("Repository cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	repositoryFailures, err := meter.Int64Counter(
		"composer_registry_repository_failures_total",
		metric.WithDescription("Repositories left out of a build after an error"),
		metric.WithUnit("{repository}"),
	)
	if err != nil {
		return nil, err
	}

	return &BuildMetrics{
		buildDuration:      buildDuration,
		cacheLookups:       cacheLookups,
		repositoryFailures: repositoryFailures,
	}, nil
}

// RecordBuildDuration records the duration of an index build for a rebuild reason
func (m *BuildMetrics) RecordBuildDuration(ctx context.Context, reason string, duration time.Duration, success bool) {
	if m == nil || m.buildDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("reason", reason),
		attribute.Bool("success", success),
	}

	m.buildDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCacheLookup counts a repository cache lookup
func (m *BuildMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRepositoryFailure counts a repository that could not be processed
func (m *BuildMetrics) RecordRepositoryFailure(ctx context.Context) {
	if m == nil || m.repositoryFailures == nil {
		return
	}

	m.repositoryFailures.Add(ctx, 1)
}
