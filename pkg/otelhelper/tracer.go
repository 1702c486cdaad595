// Package otelhelper provides distributed tracing for journey executions.
package otelhelper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the engine and the binaries.
const (
	JourneyIDKey      = "journeys.journey.id"
	JourneyVersionKey = "journeys.journey.version"
	ExecutionIDKey    = "journeys.execution.id"
	CustomerIDKey     = "journeys.customer.id"
	NodeIDKey         = "journeys.node.id"
	NodeTypeKey       = "journeys.node.type"
	ChannelKey        = "journeys.action.channel"
	WorkerIDKey       = "journeys.worker.id"
	StepOutcomeKey    = "journeys.step.outcome"
)

const shutdownTimeout = 5 * time.Second

// NewTracer installs an OTLP/HTTP tracer provider as the global provider and returns a tracer from it.
// The exporter endpoint comes from the standard OTEL_EXPORTER_OTLP_* variables.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string, attrs ...attribute.KeyValue) (trace.Tracer, error) {
	provider, err := newTracerProvider(ctx, serviceName, attrs)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return provider.Tracer(serviceName), nil
}

// Shutdown flushes and stops the global provider when NewTracer installed one. It is a no-op otherwise.
func Shutdown(ctx context.Context) error {
	provider, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return provider.Shutdown(ctx)
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func newTracerProvider(ctx context.Context, serviceName string, attrs []attribute.KeyValue) (*sdktrace.TracerProvider, error) {
	attrs = append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, attrs...)

	r, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	), nil
}
