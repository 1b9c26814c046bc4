package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader, scopeName string) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestNewRegistryMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewRegistryMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewRegistryMetrics(mp)
		require.NoError(t, err)
		assert.NotNil(t, metrics)
		assert.NotNil(t, metrics.packagesTotal)
		assert.NotNil(t, metrics.versionsTotal)
	})
}

func TestRegistryMetrics_RecordIndexSize(t *testing.T) {
	t.Parallel()

	t.Run("no-op when metrics is nil", func(t *testing.T) {
		t.Parallel()

		var metrics *RegistryMetrics
		// Should not panic
		metrics.RecordIndexSize(context.Background(), 10, 20)
	})

	t.Run("records package and version counts", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewRegistryMetrics(mp)
		require.NoError(t, err)

		metrics.RecordIndexSize(context.Background(), 42, 96)

		found := collect(t, reader, RegistryMetricsMeterName)
		packages, ok := found["composer_registry_packages_total"]
		require.True(t, ok)
		gauge, ok := packages.Data.(metricdata.Gauge[int64])
		require.True(t, ok, "expected gauge data type")
		require.Len(t, gauge.DataPoints, 1)
		assert.Equal(t, int64(42), gauge.DataPoints[0].Value)

		versions, ok := found["composer_registry_versions_total"]
		require.True(t, ok)
		gauge, ok = versions.Data.(metricdata.Gauge[int64])
		require.True(t, ok)
		assert.Equal(t, int64(96), gauge.DataPoints[0].Value)
	})
}

func TestNewBuildMetrics(t *testing.T) {
	t.Parallel()

	metrics, err := NewBuildMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// Nil metrics are safe to record on
	metrics.RecordBuildDuration(context.Background(), "forced", time.Second, true)
	metrics.RecordCacheLookup(context.Background(), true)
	metrics.RecordRepositoryFailure(context.Background())
}

func TestBuildMetrics_RecordBuildDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewBuildMetrics(mp)
	require.NoError(t, err)

	metrics.RecordBuildDuration(context.Background(), "repository-activity", 1500*time.Millisecond, true)

	found := collect(t, reader, BuildMetricsMeterName)
	m, ok := found["composer_registry_build_duration_seconds"]
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected histogram data type")
	require.NotEmpty(t, hist.DataPoints)
	// Sum should be 1.5 (seconds)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)

	reason, ok := hist.DataPoints[0].Attributes.Value("reason")
	require.True(t, ok)
	assert.Equal(t, "repository-activity", reason.AsString())
}

func TestBuildMetrics_Counters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewBuildMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordCacheLookup(ctx, true)
	metrics.RecordCacheLookup(ctx, true)
	metrics.RecordCacheLookup(ctx, false)
	metrics.RecordRepositoryFailure(ctx)

	found := collect(t, reader, BuildMetricsMeterName)

	lookups, ok := found["composer_registry_cache_lookups_total"]
	require.True(t, ok)
	sum, ok := lookups.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byResult := map[string]int64{}
	for _, dp := range sum.DataPoints {
		result, _ := dp.Attributes.Value("result")
		byResult[result.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"hit": 2, "miss": 1}, byResult)

	failures, ok := found["composer_registry_repository_failures_total"]
	require.True(t, ok)
	sum, ok = failures.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}
