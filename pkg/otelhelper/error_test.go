package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/journeys/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()

	return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
}

func TestSetError(t *testing.T) {
	recorder, provider := newRecorder()

	_, span := provider.Tracer("test").Start(context.Background(), "journey.node.action")
	otelhelper.SetError(span, errors.New("provider unreachable"), attribute.String(otelhelper.NodeIDKey, "push"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "provider unreachable", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSetError_Nil(t *testing.T) {
	recorder, provider := newRecorder()

	_, span := provider.Tracer("test").Start(context.Background(), "journey.node.wait")
	otelhelper.SetError(span, nil)
	span.End()

	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
	assert.Empty(t, recorder.Ended()[0].Events())
}

func TestSetOutcome(t *testing.T) {
	recorder, provider := newRecorder()

	_, span := provider.Tracer("test").Start(context.Background(), "journey.node.action")
	otelhelper.SetOutcome(span, "dropped")
	otelhelper.SetOutcome(span, "")
	span.End()

	ended := recorder.Ended()[0]
	assert.Equal(t, codes.Unset, ended.Status().Code, "a dropped send is not a span error")
	assert.Contains(t, ended.Attributes(), attribute.String(otelhelper.StepOutcomeKey, "dropped"))
	require.Len(t, ended.Events(), 1)
	assert.Equal(t, "step_completed", ended.Events()[0].Name)
}
