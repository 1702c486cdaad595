// Package triggers turns customer signals and schedules into journey executions.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/dukex/journeys/pkg/engine"
	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
)

// Starter starts journey executions.
type Starter interface {
	Start(ctx context.Context, journey *models.Journey, customerID string, trigger map[string]any) (*models.JourneyExecution, error)
}

// EventDeliverer resumes executions waiting for a customer event.
type EventDeliverer interface {
	DeliverEvent(ctx context.Context, customerID, eventName string, payload map[string]any) int
}

// JourneyLister lists journeys by status.
type JourneyLister interface {
	Journeys(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error)
}

// Result summarizes how one signal was routed.
type Result struct {
	// Started holds the ids of executions started by the signal.
	Started []string
	// Skipped counts matching journeys where the customer already had an active execution.
	Skipped int
	// Resumed counts waiting executions resumed by the signal.
	Resumed int
}

// Router matches customer signals against the triggers of active journeys and offers customer
// events to executions waiting for them.
type Router struct {
	journeys JourneyLister
	starter  Starter
	waits    EventDeliverer
	logger   *slog.Logger

	mu     sync.RWMutex
	active []*models.Journey
}

func NewRouter(journeys JourneyLister, starter Starter, waits EventDeliverer, logger *slog.Logger) *Router {
	return &Router{
		journeys: journeys,
		starter:  starter,
		waits:    waits,
		logger:   logger.With("module", "trigger_router"),
	}
}

// Refresh reloads the active journeys whose triggers are matched.
func (r *Router) Refresh(ctx context.Context) error {
	journeys, err := r.journeys.Journeys(ctx, models.JourneyStatusActive)
	if err != nil {
		return fmt.Errorf("failed to load active journeys: %w", err)
	}

	r.mu.Lock()
	r.active = journeys
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Trigger index refreshed", "active_journeys", len(journeys))

	return nil
}

// Register subscribes the router to customer signals and journey publications.
func (r *Router) Register(bus eventbus.EventSubscriber) error {
	err := bus.Handle(events.CustomerEventType, func(ctx context.Context, event any) error {
		customerEvent, ok := event.(*events.CustomerEvent)
		if !ok {
			r.logger.ErrorContext(ctx, "Invalid event type for CustomerEvent")

			return nil
		}

		_, err := r.HandleCustomerEvent(ctx, customerEvent)

		return err
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.SegmentEnteredType, func(ctx context.Context, event any) error {
		entered, ok := event.(*events.SegmentEntered)
		if !ok {
			r.logger.ErrorContext(ctx, "Invalid event type for SegmentEntered")

			return nil
		}

		_, err := r.HandleSegmentEntered(ctx, entered)

		return err
	})
	if err != nil {
		return err
	}

	return bus.Handle(events.JourneyPublishedType, func(ctx context.Context, _ any) error {
		return r.Refresh(ctx)
	})
}

// HandleCustomerEvent resumes executions waiting for the event, then starts every active journey
// whose event trigger matches it.
func (r *Router) HandleCustomerEvent(ctx context.Context, event *events.CustomerEvent) (Result, error) {
	var result Result

	if r.waits != nil {
		result.Resumed = r.waits.DeliverEvent(ctx, event.CustomerID, event.Name, event.Payload)
	}

	trigger := maps.Clone(event.Payload)
	if trigger == nil {
		trigger = map[string]any{}
	}

	trigger["event_name"] = event.Name

	err := r.start(ctx, event.CustomerID, trigger, &result, func(journey *models.Journey) bool {
		return MatchesEvent(journey.Trigger, event.Name, event.Payload)
	})

	return result, err
}

// HandleSegmentEntered starts every active journey whose segment trigger names the segment.
func (r *Router) HandleSegmentEntered(ctx context.Context, event *events.SegmentEntered) (Result, error) {
	var result Result

	trigger := map[string]any{"segment_id": event.SegmentID}

	err := r.start(ctx, event.CustomerID, trigger, &result, func(journey *models.Journey) bool {
		return MatchesSegment(journey.Trigger, event.SegmentID)
	})

	return result, err
}

func (r *Router) start(
	ctx context.Context,
	customerID string,
	trigger map[string]any,
	result *Result,
	matches func(*models.Journey) bool,
) error {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()

	var errs []error

	for _, journey := range active {
		if !journey.IsExecutable() || !matches(journey) {
			continue
		}

		execution, err := r.starter.Start(ctx, journey, customerID, maps.Clone(trigger))

		switch {
		case errors.Is(err, engine.ErrAlreadyActive):
			result.Skipped++

			r.logger.DebugContext(ctx, "Customer already in journey", "journey_id", journey.ID, "customer_id", customerID)
		case err != nil:
			errs = append(errs, fmt.Errorf("journey %s: %w", journey.ID, err))
		default:
			result.Started = append(result.Started, execution.ID)
		}
	}

	return errors.Join(errs...)
}

// MatchesEvent reports whether an event trigger fires for the named event. Every entry of the
// trigger's event filter must equal the payload field at the same path.
func MatchesEvent(trigger models.JourneyTrigger, name string, payload map[string]any) bool {
	if trigger.Type != models.TriggerTypeEvent || trigger.Config.EventName != name {
		return false
	}

	for field, expected := range trigger.Config.EventFilter {
		clause := models.Condition{Field: field, Operator: models.OperatorEquals, Value: expected}
		if !engine.EvaluateClause(clause, payload) {
			return false
		}
	}

	return true
}

// MatchesSegment reports whether a segment-entry trigger fires for the segment.
func MatchesSegment(trigger models.JourneyTrigger, segmentID string) bool {
	return trigger.Type == models.TriggerTypeSegmentEntry && trigger.Config.SegmentID == segmentID
}
