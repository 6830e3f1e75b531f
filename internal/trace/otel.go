package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/lumenforge/agentrt/pkg/models"
)

// OTLPExporter re-emits every span in a finished root's subtree to an
// OTLP collector over gRPC, composing with whatever other Exporter a
// Tracer also carries. Tracer keeps minting its own 12-hex/32-hex ids
// for models.Span (OTel's SpanContext has no 12-hex span id slot), so
// those ids travel as span attributes rather than as OTel's SpanID.
type OTLPExporter struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewOTLPExporter dials endpoint (e.g. "localhost:4317") and returns an
// Exporter tagging every span with serviceName. Call Shutdown when the
// owning process exits to flush the batch processor.
func NewOTLPExporter(ctx context.Context, serviceName, endpoint string, insecure bool) (*OTLPExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("trace: dial otlp collector at %s: %w", endpoint, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	return &OTLPExporter{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// Export implements Exporter: span and every descendant are replayed
// as already-finished OTel spans.
func (o *OTLPExporter) Export(span *models.Span) {
	o.emit(context.Background(), span)
}

func (o *OTLPExporter) emit(ctx context.Context, span *models.Span) {
	_, otelSpan := o.tracer.Start(ctx, span.Name,
		oteltrace.WithTimestamp(span.StartTime),
		oteltrace.WithAttributes(
			attribute.String("agentrt.trace_id", span.TraceID),
			attribute.String("agentrt.span_id", span.SpanID),
			attribute.String("agentrt.parent_id", span.ParentID),
			attribute.String("agentrt.kind", string(span.Kind)),
		),
	)
	for k, v := range span.Attributes {
		otelSpan.SetAttributes(attributeFromValue(k, v))
	}
	if span.Status == models.SpanError {
		otelSpan.SetStatus(codes.Error, span.Error)
	} else {
		otelSpan.SetStatus(codes.Ok, "")
	}
	otelSpan.End(oteltrace.WithTimestamp(span.EndTime))

	for _, child := range span.Children {
		o.emit(ctx, child)
	}
}

// Shutdown flushes buffered spans and closes the OTLP connection.
func (o *OTLPExporter) Shutdown(ctx context.Context) error {
	return o.provider.Shutdown(ctx)
}

func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
