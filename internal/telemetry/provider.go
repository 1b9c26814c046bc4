package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderOption configures the tracer and meter providers built by New
type ProviderOption func(*providerSettings)

// providerSettings is shared by NewTracerProvider and NewMeterProvider so
// both signals describe the same registry process
type providerSettings struct {
	serviceName    string
	serviceVersion string
	instanceID     string
	endpoint       string
	insecure       bool

	tracing      *TracingConfig
	spanExporter sdktrace.SpanExporter

	metrics  *MetricsConfig
	registry *prometheus.Registry
}

func newProviderSettings(opts []ProviderOption) *providerSettings {
	s := &providerSettings{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.instanceID == "" {
		s.instanceID = uuid.NewString()
	}
	return s
}

// WithService sets the service name and version reported on every span and metric
func WithService(name, version string) ProviderOption {
	return func(s *providerSettings) {
		if name != "" {
			s.serviceName = name
		}
		if version != "" {
			s.serviceVersion = version
		}
	}
}

// WithInstanceID pins the service.instance.id resource attribute.
// A random one is generated when unset.
func WithInstanceID(id string) ProviderOption {
	return func(s *providerSettings) {
		s.instanceID = id
	}
}

// WithCollector sets the OTLP HTTP collector both exporters push to
func WithCollector(endpoint string, insecure bool) ProviderOption {
	return func(s *providerSettings) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
		s.insecure = insecure
	}
}

// WithTracingConfig sets the tracing configuration
func WithTracingConfig(tc *TracingConfig) ProviderOption {
	return func(s *providerSettings) {
		s.tracing = tc
	}
}

// WithSpanExporter replaces the OTLP span exporter, e.g. with an in-memory one
func WithSpanExporter(exporter sdktrace.SpanExporter) ProviderOption {
	return func(s *providerSettings) {
		s.spanExporter = exporter
	}
}

// WithMetricsConfig sets the metrics configuration
func WithMetricsConfig(mc *MetricsConfig) ProviderOption {
	return func(s *providerSettings) {
		s.metrics = mc
	}
}

// WithPrometheusRegistry sets the registry the prometheus exporter registers with
func WithPrometheusRegistry(reg *prometheus.Registry) ProviderOption {
	return func(s *providerSettings) {
		s.registry = reg
	}
}

// newResource builds the schemaless resource shared by traces and metrics.
// resource.Default is left out to avoid schema URL conflicts.
func (s *providerSettings) newResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.serviceVersion),
			semconv.ServiceInstanceID(s.instanceID),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
