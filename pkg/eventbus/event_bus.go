// Package eventbus provides event-driven communication between the journey API and workers.
package eventbus

import (
	"context"

	"github.com/dukex/journeys/pkg/events"
)

// Event is anything published on the bus; its type selects the handler.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events under a partition key, the customer id for journey traffic.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches incoming events to handlers registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
