package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectHTTPMetrics gathers the instruments recorded under HTTPMetricsMeterName by name
func collectHTTPMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != HTTPMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newMeteredRouter(t *testing.T) (*chi.Mux, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := NewHTTPMetrics(mp)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/packages.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte(`{"packages":{}}`))
	})
	return r, reader
}

func TestNewHTTPMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	metrics, err := NewHTTPMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// A nil *HTTPMetrics still serves requests
	rr := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	metrics.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/packages.json", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestHTTPMetrics_PackagesRequests(t *testing.T) {
	t.Parallel()

	r, reader := newMeteredRouter(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/packages.json", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/packages.json", nil))
	conditional := httptest.NewRequest(http.MethodGet, "/packages.json", nil)
	conditional.Header.Set("If-Modified-Since", "Mon, 02 Jan 2006 15:04:05 GMT")
	r.ServeHTTP(httptest.NewRecorder(), conditional)

	got := collectHTTPMetrics(t, reader)

	total, ok := got["composer_registry_http_requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected a request counter")
	counts := make(map[string]int64)
	for _, dp := range total.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		assert.Equal(t, "/packages.json", route.AsString())
		status, _ := dp.Attributes.Value(attribute.Key("status_code"))
		counts[status.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"200": 2, "304": 1}, counts)

	duration, ok := got["composer_registry_http_request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected a duration histogram")
	var observed uint64
	for _, dp := range duration.DataPoints {
		observed += dp.Count
	}
	assert.Equal(t, uint64(3), observed)

	active, ok := got["composer_registry_http_active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an in-flight gauge")
	for _, dp := range active.DataPoints {
		assert.Zero(t, dp.Value, "no request is in flight after serving")
	}
}

func TestHTTPMetrics_UnknownRouteLabel(t *testing.T) {
	t.Parallel()

	r, reader := newMeteredRouter(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/p2/acme/widget.json", nil))

	total, ok := collectHTTPMetrics(t, reader)["composer_registry_http_requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, total.DataPoints, 1)
	route, _ := total.DataPoints[0].Attributes.Value(attribute.Key("route"))
	assert.Equal(t, "unknown_route", route.AsString())
	status, _ := total.DataPoints[0].Attributes.Value(attribute.Key("status_code"))
	assert.Equal(t, "404", status.AsString())
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("nil provider passes through", func(t *testing.T) {
		t.Parallel()
		mw, err := MetricsMiddleware(nil)
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("noop provider passes through", func(t *testing.T) {
		t.Parallel()
		mw, err := MetricsMiddleware(noop.NewMeterProvider())
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestGetRoutePattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown_route", getRoutePattern(httptest.NewRequest(http.MethodGet, "/packages.json", nil)))

	var seen string
	r := chi.NewRouter()
	r.Get("/packages.json", func(_ http.ResponseWriter, r *http.Request) {
		seen = getRoutePattern(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/packages.json", nil))
	assert.Equal(t, "/packages.json", seen)
}
