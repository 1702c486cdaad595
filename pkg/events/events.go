// Package events defines the event types exchanged over the journey event bus.
package events

import (
	"time"

	"github.com/dukex/journeys/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every journey event; the type travels in the message metadata.
const Topic = "journeys.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound customer signals.
	CustomerEventType    EventType = "customer.event"
	SegmentEnteredType   EventType = "customer.segment_entered"
	ApprovalDecidedType  EventType = "approval.decided"
	JourneyPublishedType EventType = "journey.published"

	// Execution control requested by the API and served by workers.
	ExecutionStartRequestedType  EventType = "execution.start_requested"
	ExecutionCancelRequestedType EventType = "execution.cancel_requested"

	// Execution lifecycle notifications.
	ExecutionStartedType   EventType = "execution.started"
	ExecutionCompletedType EventType = "execution.completed"
	ExecutionFailedType    EventType = "execution.failed"
	ExecutionExitedType    EventType = "execution.exited"
	StepCompletedType      EventType = "execution.step_completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	JourneyID string         `json:"journey_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a fresh event id and timestamp.
func NewBaseEvent(eventType EventType, journeyID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JourneyID: journeyID,
	}
}

// CustomerEvent is a named behavioural event of one customer, e.g. "account_funded".
type CustomerEvent struct {
	BaseEvent

	CustomerID string         `json:"customer_id" validate:"required"`
	Name       string         `json:"name"        validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (e CustomerEvent) GetType() EventType {
	return CustomerEventType
}

// SegmentEntered notifies that a customer joined an audience segment.
type SegmentEntered struct {
	BaseEvent

	CustomerID string `json:"customer_id" validate:"required"`
	SegmentID  string `json:"segment_id"  validate:"required"`
}

func (e SegmentEntered) GetType() EventType {
	return SegmentEnteredType
}

// ApprovalDecided carries an operator decision on a pending action.
type ApprovalDecided struct {
	BaseEvent

	ExecutionID string `json:"execution_id" validate:"required"`
	NodeID      string `json:"node_id"      validate:"required"`
	Approved    bool   `json:"approved"`
	DecidedBy   string `json:"decided_by,omitempty"`
}

func (e ApprovalDecided) GetType() EventType {
	return ApprovalDecidedType
}

// JourneyPublished tells workers to refresh their trigger index.
type JourneyPublished struct {
	BaseEvent

	Version int                  `json:"version"`
	Status  models.JourneyStatus `json:"status"`
}

func (e JourneyPublished) GetType() EventType {
	return JourneyPublishedType
}

// ExecutionStartRequested asks a worker to start a manual entry of a customer into a journey.
type ExecutionStartRequested struct {
	BaseEvent

	CustomerID string         `json:"customer_id" validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (e ExecutionStartRequested) GetType() EventType {
	return ExecutionStartRequestedType
}

// ExecutionCancelRequested asks the worker running an execution to exit it.
type ExecutionCancelRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id" validate:"required"`
	CustomerID  string `json:"customer_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelRequested) GetType() EventType {
	return ExecutionCancelRequestedType
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	CustomerID     string `json:"customer_id"`
	JourneyVersion int    `json:"journey_version"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedType
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	CustomerID  string        `json:"customer_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedType
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CustomerID  string `json:"customer_id"`
	NodeID      string `json:"node_id"`
	Reason      string `json:"reason"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedType
}

type ExecutionExited struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CustomerID  string `json:"customer_id"`
	NodeID      string `json:"node_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionExited) GetType() EventType {
	return ExecutionExitedType
}

type StepCompleted struct {
	BaseEvent

	ExecutionID string             `json:"execution_id"`
	CustomerID  string             `json:"customer_id"`
	NodeID      string             `json:"node_id"`
	NodeType    models.NodeType    `json:"node_type"`
	Outcome     models.StepOutcome `json:"outcome"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedType
}
