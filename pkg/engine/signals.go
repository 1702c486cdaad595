package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// DeliverEvent resumes the customer's executions parked on a wait for eventName and returns how
// many were resumed. Executions not waiting for that event ignore it.
func (e *Engine) DeliverEvent(ctx context.Context, customerID, eventName string, payload map[string]any) int {
	e.mu.Lock()
	candidates := make([]*run, 0, 1)

	for _, r := range e.runs {
		if r.customerID == customerID {
			candidates = append(candidates, r)
		}
	}
	e.mu.Unlock()

	delivered := 0

	for _, r := range candidates {
		r.mu.Lock()

		if r.suspension == SuspendedEvent && r.waitingEvent == eventName {
			select {
			case r.events <- payload:
				delivered++
			default:
			}
		}

		r.mu.Unlock()
	}

	if delivered > 0 {
		e.logger.DebugContext(ctx, "Customer event delivered", "customer_id", customerID, "event", eventName, "executions", delivered)
	}

	return delivered
}

// Approve resumes an execution parked on an approval decision.
func (e *Engine) Approve(ctx context.Context, executionID string, approved bool) error {
	r, ok := e.lookup(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, executionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.suspension != SuspendedApproval {
		return fmt.Errorf("%w: %s", ErrNotAwaitingApproval, executionID)
	}

	select {
	case r.decisions <- approved:
	default:
	}

	e.logger.InfoContext(ctx, "Approval decision delivered", "execution_id", executionID, "approved", approved)

	return nil
}

// Cancel exits an active execution. A suspended execution exits at once and its timer or
// subscription is released; a running one exits at its next node boundary. Executions this engine
// does not run are exited directly in persistence.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string) (*models.JourneyExecution, error) {
	r, ok := e.lookup(executionID)
	if ok {
		select {
		case r.cancel <- reason:
		default:
		}

		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		execution, err := e.store.ExecutionByID(ctx, executionID)
		if err != nil {
			return nil, err
		}

		if execution.Status != models.ExecutionStatusExited {
			return execution, fmt.Errorf("%w: %s is %s", ErrNotActive, executionID, execution.Status)
		}

		return execution, nil
	}

	execution, err := e.store.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.IsTerminal() {
		return execution, fmt.Errorf("%w: %s is %s", ErrNotActive, executionID, execution.Status)
	}

	now := e.clock.Now().UTC()

	if last := execution.LastEntry(); last != nil && last.ExitedAt == nil {
		last.ExitedAt = &now
		last.Outcome = models.OutcomeDropped
	}

	execution.Status = models.ExecutionStatusExited
	execution.CompletedAt = &now
	execution.ExitReason = reason

	err = e.store.SaveExecution(ctx, execution)
	if errors.Is(err, persistence.ErrExecutionFinished) {
		return nil, fmt.Errorf("%w: %s finished while cancelling", ErrNotActive, executionID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Execution exited", "execution_id", executionID, "reason", reason)

	e.publish(ctx, execution.CustomerID, events.ExecutionExited{
		BaseEvent:   e.baseEvent(events.ExecutionExitedType, execution.JourneyID),
		ExecutionID: execution.ID,
		CustomerID:  execution.CustomerID,
		NodeID:      execution.CurrentNodeID,
		Reason:      reason,
	})

	return execution, nil
}
