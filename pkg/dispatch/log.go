package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// LogDispatcher writes messages to the log instead of delivering them. Customers can be marked
// unsubscribed to exercise opt-out handling in development.
type LogDispatcher struct {
	logger       *slog.Logger
	mu           sync.RWMutex
	unsubscribed map[string]bool
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{
		logger:       logger.With("module", "log_dispatcher"),
		unsubscribed: make(map[string]bool),
	}
}

// Unsubscribe marks a customer as opted out.
func (d *LogDispatcher) Unsubscribe(customerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.unsubscribed[customerID] = true
}

func (d *LogDispatcher) Send(ctx context.Context, msg *Message) (*Result, error) {
	d.mu.RLock()
	optedOut := d.unsubscribed[msg.CustomerID]
	d.mu.RUnlock()

	if optedOut {
		return nil, ErrUnsubscribed
	}

	result := &Result{MessageID: uuid.New().String()}

	d.logger.InfoContext(ctx, "Message dispatched",
		"message_id", result.MessageID,
		"execution_id", msg.ExecutionID,
		"customer_id", msg.CustomerID,
		"node_id", msg.NodeID,
		"channel", msg.Channel,
		"subject", msg.Content.Subject,
		"body", msg.Content.Body,
	)

	return result, nil
}
