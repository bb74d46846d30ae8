// Package exporters builds span exporters for the tracer provider.
package exporters

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const exportTimeout = 10 * time.Second

// New builds the span exporter for the named transport: "otlp-grpc"
// (collector on 4317), "otlp-http" (collector on 4318), or "console", a drop
// sink for environments without a collector.
func New(ctx context.Context, transport, endpoint string) (sdktrace.SpanExporter, error) {
	switch transport {
	case "otlp-grpc":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithTimeout(exportTimeout),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlptracegrpc.WithInsecure(),
		)
	case "otlp-http":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithTimeout(exportTimeout),
			otlptracehttp.WithInsecure(),
		)
	case "console":
		return dropExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", transport)
	}
}

type dropExporter struct{}

func (dropExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (dropExporter) Shutdown(context.Context) error                             { return nil }
