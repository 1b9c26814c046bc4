// Package otel holds the span helpers and attribute keys shared by the build
// pipeline and the GitLab client.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on build, repository and GitLab request spans
const (
	AttrRunID        = attribute.Key("build.run_id")
	AttrBuildReason  = attribute.Key("build.reason")
	AttrForced       = attribute.Key("build.forced")
	AttrRepository   = attribute.Key("gitlab.repository")
	AttrProjectID    = attribute.Key("gitlab.project_id")
	AttrRequestURL   = attribute.Key("http.url")
	AttrPackageCount = attribute.Key("registry.package_count")
	AttrRepoCount    = attribute.Key("registry.repository_count")
)

// statusDescription is the only status text put on failed spans. Error
// messages carry GitLab URLs and cache paths, which stay in the exception event.
const statusDescription = "operation failed"

// StartSpan starts a span on tracer. A nil tracer yields the span already in
// ctx, which is a no-op span when there is none.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed and records err as an exception event
// tagged with its error.type. Nil spans and nil errors are ignored.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(semconv.ErrorTypeKey.String(errorType(err))))
	span.SetStatus(codes.Error, statusDescription)
}

// errorType names the innermost error of a wrap chain, so a wrapped
// *gitlab.HTTPError is reported as such
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return fmt.Sprintf("%T", err)
		}
		err = inner
	}
}
