// Package tracing exposes the process-wide tracer used for spans on
// repository and service calls. When tracing is disabled no tracer is set and
// every helper degrades to a no-op.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. Called once at boot.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a span named after the calling component, e.g.
// "candidate.Repository.Upsert". With no tracer installed it returns the
// context unchanged and the span already carried by it.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the current trace id, or "" when no valid span is
// recording. Error responses carry it so a failure can be looked up in the
// trace backend.
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}
