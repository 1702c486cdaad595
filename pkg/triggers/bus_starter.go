package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
)

// BusStarter turns starts into start requests published under the customer's key, so every
// start, cancel and event of one customer is served by the same worker. Start returns no
// execution; the worker that consumes the request creates it.
type BusStarter struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

var _ Starter = (*BusStarter)(nil)

func NewBusStarter(publisher eventbus.EventPublisher, logger *slog.Logger) *BusStarter {
	return &BusStarter{publisher: publisher, logger: logger.With("module", "bus_starter")}
}

func (b *BusStarter) Start(
	ctx context.Context,
	journey *models.Journey,
	customerID string,
	trigger map[string]any,
) (*models.JourneyExecution, error) {
	request := events.ExecutionStartRequested{
		BaseEvent:  events.NewBaseEvent(events.ExecutionStartRequestedType, journey.ID),
		CustomerID: customerID,
		Payload:    trigger,
	}

	err := b.publisher.Publish(ctx, customerID, request)
	if err != nil {
		return nil, fmt.Errorf("failed to request execution start: %w", err)
	}

	b.logger.DebugContext(ctx, "Execution start requested", "journey_id", journey.ID, "customer_id", customerID)

	return nil, nil
}
