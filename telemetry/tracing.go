package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/colorfulnotion/regwin/wvm"

// InitTracing installs an OTLP/HTTP trace provider sending to endpoint
// (host:port). An empty endpoint leaves the global no-op provider in place.
// The returned function flushes and stops the provider.
func InitTracing(ctx context.Context, endpoint, serviceVersion string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", "wvm"),
		attribute.String("service.version", serviceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartRunSpan opens a span covering one machine run.
func StartRunSpan(ctx context.Context, runID, image string, budget uint32) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "wvm.run", trace.WithAttributes(
		attribute.String("wvm.run_id", runID),
		attribute.String("wvm.image", image),
		attribute.Int64("wvm.budget", int64(budget)),
	))
}

// EndRunSpan records the outcome and ends span.
func EndRunSpan(span trace.Span, code int32, ticks uint32, err error) {
	span.SetAttributes(
		attribute.Int("wvm.halt_code", int(code)),
		attribute.Int64("wvm.ticks", int64(ticks)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
