package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/journeys/pkg/analytics"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// Analytics recomputes journey analytics from full history.
type Analytics struct {
	persistence persistence.Persistence
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewAnalytics(persistence persistence.Persistence, clock clockwork.Clock, logger *slog.Logger) *Analytics {
	return &Analytics{
		persistence: persistence,
		clock:       clock,
		logger:      logger.With("module", "analytics_service"),
	}
}

// Compute aggregates every execution and delivery event of a journey and caches the result on it.
func (a *Analytics) Compute(ctx context.Context, journeyID string) (*models.JourneyAnalytics, error) {
	journey, err := a.persistence.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	executions, err := a.persistence.ExecutionsByJourney(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	deliveries, err := a.persistence.DeliveryEventsByJourney(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery events: %w", err)
	}

	result := analytics.Aggregate(journey, executions, deliveries, a.clock.Now())

	journey.Analytics = result

	err = a.persistence.SaveJourney(ctx, journey)
	if err != nil {
		// The figures are still correct; only the cached copy is stale.
		a.logger.WarnContext(ctx, "Failed to cache journey analytics", "journey_id", journeyID, "error", err)
	}

	a.logger.DebugContext(ctx, "Analytics computed",
		"journey_id", journeyID,
		"executions", len(executions),
		"deliveries", len(deliveries),
	)

	return result, nil
}
