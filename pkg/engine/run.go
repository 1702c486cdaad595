package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/otelhelper"
	"github.com/dukex/journeys/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// run owns one execution. Only the run goroutine mutates execution; readers take mu.
type run struct {
	engine     *Engine
	journey    *models.Journey
	customerID string
	logger     *slog.Logger

	mu           sync.Mutex
	execution    *models.JourneyExecution
	suspension   Suspension
	waitingEvent string

	events    chan map[string]any
	decisions chan bool
	cancel    chan string
	done      chan struct{}
}

// wakeup is the resumption source that won a suspension.
type wakeup struct {
	source   models.ResumeSource
	payload  map[string]any
	approved bool
}

func newRun(engine *Engine, journey *models.Journey, execution *models.JourneyExecution) *run {
	return &run{
		engine:     engine,
		journey:    journey,
		customerID: execution.CustomerID,
		logger: engine.logger.With(
			"execution_id", execution.ID,
			"journey_id", execution.JourneyID,
			"journey_version", execution.JourneyVersion,
			"customer_id", execution.CustomerID,
		),
		execution: execution,
		events:    make(chan map[string]any, 1),
		decisions: make(chan bool, 1),
		cancel:    make(chan string, 1),
		done:      make(chan struct{}),
	}
}

func (r *run) loop(ctx context.Context) {
	for {
		select {
		case reason := <-r.cancel:
			r.exit(ctx, reason)

			return
		default:
		}

		err := r.step(ctx)

		var stopped *cancelled

		switch {
		case err == nil:
			continue
		case errors.Is(err, errFinished):
			return
		case errors.Is(err, errSuperseded):
			r.logger.InfoContext(ctx, "Execution finished elsewhere, stopping run")

			return
		case errors.As(err, &stopped):
			r.exit(ctx, stopped.reason)

			return
		case ctx.Err() != nil:
			// Engine shutdown: the execution stays active and is picked up by Recover.
			r.logger.Debug("Run stopped by shutdown")

			return
		default:
			r.fail(ctx, err.Error())

			return
		}
	}
}

func (r *run) step(ctx context.Context) error {
	nodeID := r.execution.CurrentNodeID

	node, ok := r.journey.NodeByID(nodeID)
	if !ok {
		return fmt.Errorf("node %q not found in journey version %d", nodeID, r.journey.Version)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.engine.tracer, "journey.node."+string(node.Type),
		attribute.String(otelhelper.JourneyIDKey, r.execution.JourneyID),
		attribute.Int(otelhelper.JourneyVersionKey, r.execution.JourneyVersion),
		attribute.String(otelhelper.ExecutionIDKey, r.execution.ID),
		attribute.String(otelhelper.CustomerIDKey, r.customerID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.WorkerIDKey, r.engine.workerID),
	)
	defer span.End()

	err := r.enter(ctx, node)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	err = node.Config.Accept(&stepper{ctx: ctx, run: r, node: node})
	if err != nil && !errors.Is(err, errFinished) {
		otelhelper.SetError(span, err)
	}

	r.mu.Lock()
	if last := r.execution.LastEntry(); last != nil && last.NodeID == node.ID {
		otelhelper.SetOutcome(span, string(last.Outcome))
	}
	r.mu.Unlock()

	return err
}

// enter opens a history entry for node, unless the execution was recovered while inside it.
func (r *run) enter(ctx context.Context, node *models.JourneyNode) error {
	r.mu.Lock()

	if last := r.execution.LastEntry(); last != nil && last.NodeID == node.ID && last.ExitedAt == nil {
		r.mu.Unlock()

		return nil
	}

	r.execution.History = append(r.execution.History, models.HistoryEntry{
		NodeID:    node.ID,
		NodeType:  node.Type,
		EnteredAt: r.engine.clock.Now().UTC(),
	})
	snapshot := cloneExecution(r.execution)
	r.mu.Unlock()

	return r.persist(ctx, snapshot)
}

// elapsed returns the time spent in the current node.
func (r *run) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	last := r.execution.LastEntry()
	if last == nil {
		return 0
	}

	return r.engine.clock.Since(last.EnteredAt)
}

// leave closes the current history entry and moves the execution to next.
func (r *run) leave(ctx context.Context, next string, annotate func(*models.HistoryEntry, *models.JourneyExecution)) error {
	if next == "" {
		return fmt.Errorf("node %q has no successor", r.execution.CurrentNodeID)
	}

	r.mu.Lock()
	now := r.engine.clock.Now().UTC()
	entry := r.execution.LastEntry()
	entry.ExitedAt = &now
	entry.Outcome = models.OutcomeCompleted

	if annotate != nil {
		annotate(entry, r.execution)
	}

	closed := *entry
	r.execution.CurrentNodeID = next
	snapshot := cloneExecution(r.execution)
	r.mu.Unlock()

	err := r.persist(ctx, snapshot)
	if err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "Step completed", "node_id", closed.NodeID, "outcome", closed.Outcome, "next", next)

	r.engine.publish(ctx, r.customerID, events.StepCompleted{
		BaseEvent:   r.engine.baseEvent(events.StepCompletedType, snapshot.JourneyID),
		ExecutionID: snapshot.ID,
		CustomerID:  r.customerID,
		NodeID:      closed.NodeID,
		NodeType:    closed.NodeType,
		Outcome:     closed.Outcome,
	})

	return nil
}

// conclude closes the open history entry, if any, and moves the execution to a terminal status.
func (r *run) conclude(
	ctx context.Context,
	status models.ExecutionStatus,
	outcome models.StepOutcome,
	reason string,
	annotate func(*models.HistoryEntry),
) (*models.JourneyExecution, error) {
	r.mu.Lock()
	now := r.engine.clock.Now().UTC()

	if last := r.execution.LastEntry(); last != nil && last.ExitedAt == nil {
		last.ExitedAt = &now
		last.Outcome = outcome

		if annotate != nil {
			annotate(last)
		}
	}

	r.execution.Status = status
	r.execution.CompletedAt = &now

	switch status {
	case models.ExecutionStatusFailed:
		r.execution.FailureReason = reason
	case models.ExecutionStatusExited:
		r.execution.ExitReason = reason
	}

	snapshot := cloneExecution(r.execution)
	r.mu.Unlock()

	err := r.persist(ctx, snapshot)
	if errors.Is(err, errSuperseded) {
		r.logger.InfoContext(ctx, "Execution finished elsewhere, dropping terminal transition", "status", status)

		return nil, err
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist terminal execution", "status", status, "error", err)
	}

	return snapshot, nil
}

func (r *run) complete(ctx context.Context) {
	execution, err := r.conclude(ctx, models.ExecutionStatusCompleted, models.OutcomeCompleted, "", nil)
	if err != nil {
		return
	}

	duration, _ := execution.Duration()

	r.logger.InfoContext(ctx, "Execution completed", "duration", duration)

	r.engine.publish(ctx, r.customerID, events.ExecutionCompleted{
		BaseEvent:   r.engine.baseEvent(events.ExecutionCompletedType, execution.JourneyID),
		ExecutionID: execution.ID,
		CustomerID:  r.customerID,
		Duration:    duration,
	})
}

func (r *run) fail(ctx context.Context, reason string) {
	r.failWith(ctx, reason, nil)
}

func (r *run) failWith(ctx context.Context, reason string, annotate func(*models.HistoryEntry)) {
	execution, err := r.conclude(ctx, models.ExecutionStatusFailed, models.OutcomeDropped, reason, annotate)
	if err != nil {
		return
	}

	r.logger.WarnContext(ctx, "Execution failed", "node_id", execution.CurrentNodeID, "reason", reason)

	r.engine.publish(ctx, r.customerID, events.ExecutionFailed{
		BaseEvent:   r.engine.baseEvent(events.ExecutionFailedType, execution.JourneyID),
		ExecutionID: execution.ID,
		CustomerID:  r.customerID,
		NodeID:      execution.CurrentNodeID,
		Reason:      reason,
	})
}

func (r *run) exit(ctx context.Context, reason string) {
	execution, err := r.conclude(ctx, models.ExecutionStatusExited, models.OutcomeDropped, reason, nil)
	if err != nil {
		return
	}

	r.logger.InfoContext(ctx, "Execution exited", "node_id", execution.CurrentNodeID, "reason", reason)

	r.engine.publish(ctx, r.customerID, events.ExecutionExited{
		BaseEvent:   r.engine.baseEvent(events.ExecutionExitedType, execution.JourneyID),
		ExecutionID: execution.ID,
		CustomerID:  r.customerID,
		NodeID:      execution.CurrentNodeID,
		Reason:      reason,
	})
}

// persist writes a snapshot; shutdown must not lose the last transition.
// It returns errSuperseded when the stored execution was already finished by another writer.
func (r *run) persist(ctx context.Context, snapshot *models.JourneyExecution) error {
	err := r.engine.store.SaveExecution(context.WithoutCancel(ctx), snapshot)
	if errors.Is(err, persistence.ErrExecutionFinished) {
		return errSuperseded
	}

	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

// suspend announces what the run is about to park on and drops signals left from earlier
// suspensions. Signals sent after suspend are buffered until park picks them up.
func (r *run) suspend(kind Suspension, eventName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suspension = kind
	r.waitingEvent = eventName

	select {
	case <-r.events:
	default:
	}

	select {
	case <-r.decisions:
	default:
	}
}

func (r *run) resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suspension = NotSuspended
	r.waitingEvent = ""
}

// park blocks until the first resumption source fires. When bounded, the timer fires after
// timeout; a non-positive timeout resumes at once, as happens when a recovered wait already elapsed.
func (r *run) park(ctx context.Context, timeout time.Duration, bounded bool) (wakeup, error) {
	defer r.resume()

	var expired <-chan time.Time

	if bounded {
		if timeout <= 0 {
			select {
			case reason := <-r.cancel:
				return wakeup{}, &cancelled{reason: reason}
			default:
				return wakeup{source: models.ResumeTimer}, nil
			}
		}

		timer := r.engine.clock.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.Chan()
	}

	select {
	case <-ctx.Done():
		return wakeup{}, ctx.Err()
	case reason := <-r.cancel:
		return wakeup{}, &cancelled{reason: reason}
	case <-expired:
		return wakeup{source: models.ResumeTimer}, nil
	case payload := <-r.events:
		return wakeup{source: models.ResumeEvent, payload: payload}, nil
	case approved := <-r.decisions:
		return wakeup{source: models.ResumeApproval, approved: approved}, nil
	}
}

func (r *run) snapshot() *models.JourneyExecution {
	r.mu.Lock()
	defer r.mu.Unlock()

	return cloneExecution(r.execution)
}
