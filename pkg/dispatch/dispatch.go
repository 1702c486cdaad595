// Package dispatch sends resolved journey messages to customers.
package dispatch

import (
	"context"
	"errors"

	"github.com/dukex/journeys/pkg/models"
)

// ErrUnsubscribed reports that the customer opted out of communications.
var ErrUnsubscribed = errors.New("customer unsubscribed")

// Message is a resolved action ready to be delivered.
type Message struct {
	ExecutionID string                `json:"execution_id"`
	JourneyID   string                `json:"journey_id"`
	NodeID      string                `json:"node_id"`
	CustomerID  string                `json:"customer_id"`
	Channel     models.Channel        `json:"channel"`
	Content     models.MessageContent `json:"content"`
}

// Result describes an accepted message.
type Result struct {
	MessageID string `json:"message_id"`
}

// Dispatcher delivers messages. Implementations return ErrUnsubscribed (possibly wrapped) when
// the customer opted out; any other error is a failed, non-fatal send.
type Dispatcher interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}
