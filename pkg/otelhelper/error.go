package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span failed with err. A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetOutcome records how an execution left the node of span. Non-fatal outcomes such as a
// dropped send keep the span status OK.
func SetOutcome(span trace.Span, outcome string) {
	if outcome == "" {
		return
	}

	span.SetAttributes(attribute.String(StepOutcomeKey, outcome))
	span.AddEvent("step_completed", trace.WithAttributes(attribute.String(StepOutcomeKey, outcome)))
}
