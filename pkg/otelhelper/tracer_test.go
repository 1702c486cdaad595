package otelhelper_test

import (
	"context"
	"testing"

	"github.com/dukex/journeys/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestShutdown_WithoutProvider(t *testing.T) {
	require.NoError(t, otelhelper.Shutdown(context.Background()))
}

func TestStartSpan(t *testing.T) {
	recorder, provider := newRecorder()

	ctx, span := otelhelper.StartSpan(context.Background(), provider.Tracer("test"), "journey.node.wait",
		attribute.String(otelhelper.ExecutionIDKey, "exec-1"))
	span.End()

	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "journey.node.wait", recorder.Ended()[0].Name())
	assert.Contains(t, recorder.Ended()[0].Attributes(), attribute.String(otelhelper.ExecutionIDKey, "exec-1"))
}
