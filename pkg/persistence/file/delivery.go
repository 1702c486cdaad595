package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukex/journeys/pkg/models"
	"github.com/google/uuid"
)

// SaveDeliveryEvent appends an event to the delivery audit log.
func (fp *Persistence) SaveDeliveryEvent(_ context.Context, event *models.DeliveryEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	// Prefixing with the journey id lets DeliveryEventsByJourney glob instead of scanning everything.
	err := validateID(event.JourneyID)
	if err == nil {
		err = fp.deliveries.save(event.JourneyID+"_"+event.ID, event)
	}

	if err != nil {
		return fmt.Errorf("failed to save delivery event %s: %w", event.ID, err)
	}

	return nil
}

// DeliveryEventsByJourney returns the delivery events of a journey in occurrence order.
func (fp *Persistence) DeliveryEventsByJourney(_ context.Context, journeyID string) ([]*models.DeliveryEvent, error) {
	err := validateID(journeyID)
	if err != nil {
		return nil, err
	}

	events, err := fp.deliveries.all(journeyID + "_*.json")
	if err != nil {
		return nil, err
	}

	filtered := events[:0]

	for _, event := range events {
		if event.JourneyID == journeyID {
			filtered = append(filtered, event)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].OccurredAt.Before(filtered[j].OccurredAt)
	})

	return filtered, nil
}
