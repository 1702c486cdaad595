package models

import "time"

// DeliveryEventType is a stage of a message's delivery lifecycle.
type DeliveryEventType string

const (
	DeliverySent      DeliveryEventType = "sent"
	DeliveryDelivered DeliveryEventType = "delivered"
	DeliveryOpened    DeliveryEventType = "opened"
	DeliveryClicked   DeliveryEventType = "clicked"
	DeliveryConverted DeliveryEventType = "converted"
)

// DeliveryEvent is one entry of the communication audit log.
type DeliveryEvent struct {
	ID          string            `json:"id"`
	JourneyID   string            `json:"journey_id"   validate:"required"`
	ExecutionID string            `json:"execution_id" validate:"required"`
	NodeID      string            `json:"node_id"      validate:"required"`
	CustomerID  string            `json:"customer_id"`
	Channel     Channel           `json:"channel"      validate:"required,oneof=email sms push whatsapp in_app"`
	Type        DeliveryEventType `json:"type"         validate:"required,oneof=sent delivered opened clicked converted"`
	MessageID   string            `json:"message_id,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// StepPerformance aggregates executions through one node.
type StepPerformance struct {
	NodeID        string        `json:"node_id"`
	Entered       int           `json:"entered"`
	Completed     int           `json:"completed"`
	Dropped       int           `json:"dropped"`
	AvgTimeInStep time.Duration `json:"avg_time_in_step"`
	DropRate      float64       `json:"drop_rate"`
}

// ChannelPerformance aggregates delivery outcomes per channel.
type ChannelPerformance struct {
	Sent        int `json:"sent"`
	Delivered   int `json:"delivered"`
	Opened      int `json:"opened"`
	Clicked     int `json:"clicked"`
	Conversions int `json:"conversions"`
}

// JourneyAnalytics is derived from execution histories and is never hand-edited.
type JourneyAnalytics struct {
	JourneyID          string                         `json:"journey_id"`
	TotalEntered       int                            `json:"total_entered"`
	TotalCompleted     int                            `json:"total_completed"`
	TotalActive        int                            `json:"total_active"`
	TotalDropped       int                            `json:"total_dropped"`
	ConversionRate     float64                        `json:"conversion_rate"`
	AvgCompletionTime  time.Duration                  `json:"avg_completion_time"`
	StepPerformance    map[string]*StepPerformance    `json:"step_performance"`
	ChannelPerformance map[Channel]*ChannelPerformance `json:"channel_performance"`
	ComputedAt         time.Time                      `json:"computed_at"`
}
