package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/journeys/pkg/models"
	"github.com/google/uuid"
)

// DeliveryRepository appends to and reads the delivery audit log.
type DeliveryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDeliveryRepository creates a new delivery event repository.
func NewDeliveryRepository(db *sql.DB, logger *slog.Logger) *DeliveryRepository {
	return &DeliveryRepository{db: db, logger: logger}
}

// SaveDeliveryEvent appends a delivery event. Saving the same id twice is a no-op.
func (r *DeliveryRepository) SaveDeliveryEvent(ctx context.Context, event *models.DeliveryEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO delivery_events (id, journey_id, execution_id, node_id, customer_id, channel, event_type,
			message_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.JourneyID,
		event.ExecutionID,
		event.NodeID,
		event.CustomerID,
		event.Channel,
		event.Type,
		event.MessageID,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save delivery event %s: %w", event.ID, err)
	}

	return nil
}

// DeliveryEventsByJourney returns the delivery events of a journey in occurrence order.
func (r *DeliveryRepository) DeliveryEventsByJourney(ctx context.Context, journeyID string) ([]*models.DeliveryEvent, error) {
	query := `
		SELECT id, journey_id, execution_id, node_id, customer_id, channel, event_type, message_id, occurred_at
		FROM delivery_events
		WHERE journey_id = $1
		ORDER BY occurred_at
	`

	rows, err := r.db.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery events: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	events := make([]*models.DeliveryEvent, 0)

	for rows.Next() {
		var event models.DeliveryEvent

		err := rows.Scan(
			&event.ID,
			&event.JourneyID,
			&event.ExecutionID,
			&event.NodeID,
			&event.CustomerID,
			&event.Channel,
			&event.Type,
			&event.MessageID,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery event: %w", err)
		}

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating delivery events: %w", err)
	}

	return events, nil
}
