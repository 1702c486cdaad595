// Package cmd provides common initialization functions for the journey binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/journeys/pkg/customers"
	"github.com/dukex/journeys/pkg/dispatch"
	"github.com/dukex/journeys/pkg/lock"
	"github.com/dukex/journeys/pkg/otelhelper"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Customers is both the attribute provider and the segment source.
type Customers interface {
	customers.Provider
	customers.SegmentSource
}

// NewLocker returns the redis guard when redisURL is set, otherwise an in-process one that only
// protects a single worker.
func NewLocker(redisURL string, clock clockwork.Clock, logger *slog.Logger) lock.Locker {
	if redisURL == "" {
		logger.Warn("No redis url configured; active-execution guard is local to this process")

		return lock.NewMemoryLocker(clock)
	}

	locker, err := lock.NewRedisLockerFromURL(redisURL)
	if err != nil {
		panic(err)
	}

	return locker
}

// NewDispatcher posts messages to webhookURL, or logs them when it is empty.
func NewDispatcher(webhookURL string, headers []string, logger *slog.Logger) dispatch.Dispatcher {
	if webhookURL == "" {
		return dispatch.NewLogDispatcher(logger)
	}

	return dispatch.NewWebhookDispatcher(dispatch.WebhookConfig{
		URL:        webhookURL,
		Headers:    ParseHeaders(headers),
		Timeout:    10 * time.Second,
		Attempts:   3,
		RetryDelay: time.Second,
	}, logger)
}

// NewCustomers fetches customers over HTTP from baseURL, or serves an empty in-memory directory.
func NewCustomers(baseURL string, headers []string) Customers {
	if baseURL == "" {
		return customers.NewStaticProvider()
	}

	return customers.NewHTTPProvider(baseURL, ParseHeaders(headers))
}

// NewTracer exports spans over OTLP when enabled and falls back to the global no-op tracer.
func NewTracer(ctx context.Context, enabled bool, serviceName string, logger *slog.Logger) trace.Tracer {
	if !enabled {
		return otel.Tracer(serviceName)
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)

		return otel.Tracer(serviceName)
	}

	return tracer
}

// ParseHeaders turns "Name: value" pairs into a header map, skipping malformed entries.
func ParseHeaders(pairs []string) map[string]string {
	headers := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}

		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return headers
}
