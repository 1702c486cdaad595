package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/dukex/journeys/pkg/dispatch"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/nodeconfig"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/google/uuid"
)

var errNoApprovals = errors.New("action requires approval but no approval service is configured")

// stepper executes the node the run is currently in.
type stepper struct {
	ctx  context.Context
	run  *run
	node *models.JourneyNode
}

var _ models.NodeVisitor = (*stepper)(nil)

func (s *stepper) next() string {
	if len(s.node.Next) == 0 {
		return ""
	}

	return s.node.Next[0]
}

func (s *stepper) VisitTrigger(*models.TriggerNodeConfig) error {
	return s.run.leave(s.ctx, s.next(), nil)
}

func (s *stepper) VisitEnd(*models.EndConfig) error {
	s.run.complete(s.ctx)

	return errFinished
}

func (s *stepper) VisitWait(config *models.WaitConfig) error {
	if config.IsEventWait() {
		return s.waitForEvent(config)
	}

	duration, err := models.ParseWaitDuration(config.Duration)
	if err != nil {
		return err
	}

	s.run.suspend(SuspendedTimer, "")

	_, err = s.run.park(s.ctx, duration-s.run.elapsed(), true)
	if err != nil {
		return err
	}

	return s.run.leave(s.ctx, s.next(), func(entry *models.HistoryEntry, _ *models.JourneyExecution) {
		entry.ResumedBy = models.ResumeTimer
	})
}

func (s *stepper) waitForEvent(config *models.WaitConfig) error {
	var ceiling time.Duration

	bounded := config.MaxWaitTime != ""
	if bounded {
		maxWait, err := models.ParseWaitDuration(config.MaxWaitTime)
		if err != nil {
			return err
		}

		ceiling = maxWait - s.run.elapsed()
	}

	s.run.suspend(SuspendedEvent, config.WaitForEvent)

	woke, err := s.run.park(s.ctx, ceiling, bounded)
	if err != nil {
		return err
	}

	return s.run.leave(s.ctx, s.next(), func(entry *models.HistoryEntry, execution *models.JourneyExecution) {
		if woke.source == models.ResumeTimer {
			entry.ResumedBy = models.ResumeTimeout

			return
		}

		entry.ResumedBy = models.ResumeEvent

		payload := maps.Clone(woke.payload)
		if payload == nil {
			payload = map[string]any{}
		}

		execution.Context[ContextEventKey] = payload
	})
}

func (s *stepper) VisitCondition(config *models.ConditionConfig) error {
	matched := EvaluateCondition(config, s.run.execution.Context)

	next := config.FalsePath
	if matched {
		next = config.TruePath
	}

	return s.run.leave(s.ctx, next, func(entry *models.HistoryEntry, _ *models.JourneyExecution) {
		if matched {
			entry.Outcome = models.OutcomeConditionMet
			entry.Branch = models.EdgeLabelYes

			return
		}

		entry.Outcome = models.OutcomeConditionFailed
		entry.Branch = models.EdgeLabelNo
	})
}

func (s *stepper) VisitSplit(config *models.SplitConfig) error {
	index := ChooseBranch(config, s.run.execution.Context, s.run.engine.draw())
	if index < 0 {
		return fmt.Errorf("split %q has no branches", s.node.ID)
	}

	branch := config.Branches[index]

	label := branch.ID
	if label == "" {
		label = models.BranchLabelPrefix + strconv.Itoa(index)
	}

	return s.run.leave(s.ctx, branch.NextNodeID, func(entry *models.HistoryEntry, _ *models.JourneyExecution) {
		entry.Branch = label
	})
}

func (s *stepper) VisitAction(config *models.ActionConfig) error {
	execution := s.run.execution
	content := nodeconfig.RenderAction(config, s.run.journey.CustomVariables, execution.Context)

	if config.RequiresApproval {
		approved, err := s.awaitApproval(config, content)
		if err != nil {
			return err
		}

		if !approved {
			return s.run.leave(s.ctx, s.next(), func(entry *models.HistoryEntry, _ *models.JourneyExecution) {
				entry.Outcome = models.OutcomeDropped
				entry.ResumedBy = models.ResumeApproval
				entry.Dispatch = &models.DispatchRecord{Channel: config.Channel, Status: models.DispatchStatusRejected}
			})
		}
	}

	result, err := s.run.engine.dispatcher.Send(s.ctx, &dispatch.Message{
		ExecutionID: execution.ID,
		JourneyID:   execution.JourneyID,
		NodeID:      s.node.ID,
		CustomerID:  execution.CustomerID,
		Channel:     config.Channel,
		Content:     content,
	})

	switch {
	case errors.Is(err, dispatch.ErrUnsubscribed):
		s.run.failWith(s.ctx, ReasonUnsubscribed, func(entry *models.HistoryEntry) {
			entry.Dispatch = &models.DispatchRecord{Channel: config.Channel, Status: models.DispatchStatusUnsubscribed}
		})

		return errFinished
	case err != nil:
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}

		s.run.logger.WarnContext(s.ctx, "Message dispatch failed", "node_id", s.node.ID, "channel", config.Channel, "error", err)

		return s.run.leave(s.ctx, s.next(), func(entry *models.HistoryEntry, _ *models.JourneyExecution) {
			entry.Dispatch = &models.DispatchRecord{
				Channel: config.Channel,
				Status:  models.DispatchStatusFailed,
				Error:   err.Error(),
			}
		})
	}

	// The audit log and the history entry must share an id so analytics count the send once.
	messageID := result.MessageID
	if messageID == "" {
		messageID = visitID(execution.ID, s.node.ID, len(execution.History)-1)
	}

	s.recordDelivery(config.Channel, messageID)

	return s.run.leave(s.ctx, s.next(), func(entry *models.HistoryEntry, _ *models.JourneyExecution) {
		if config.RequiresApproval {
			entry.ResumedBy = models.ResumeApproval
		}

		entry.Dispatch = &models.DispatchRecord{
			Channel:   config.Channel,
			Status:    models.DispatchStatusSent,
			MessageID: messageID,
		}
	})
}

// awaitApproval requests approval once per visit and parks until it is decided. The request id is
// derived from the visit, so a recovered run finds the request it made before a restart.
func (s *stepper) awaitApproval(config *models.ActionConfig, content models.MessageContent) (bool, error) {
	approvals := s.run.engine.approvals
	if approvals == nil {
		return false, errNoApprovals
	}

	execution := s.run.execution
	id := visitID(execution.ID, s.node.ID, len(execution.History)-1)

	s.run.suspend(SuspendedApproval, "")

	request, err := approvals.Get(s.ctx, id)

	switch {
	case err == nil && !request.IsPending():
		s.run.resume()

		return request.Status == models.ApprovalStatusApproved, nil
	case err == nil:
	case persistence.IsNotFound(err):
		err = approvals.RequestApproval(s.ctx, &models.ApprovalRequest{
			ID:          id,
			ExecutionID: execution.ID,
			JourneyID:   execution.JourneyID,
			NodeID:      s.node.ID,
			CustomerID:  execution.CustomerID,
			Channel:     config.Channel,
			Content:     content,
		})
		if err != nil {
			s.run.resume()

			return false, fmt.Errorf("failed to request approval: %w", err)
		}

		s.run.logger.InfoContext(s.ctx, "Awaiting approval", "node_id", s.node.ID, "approval_id", id)
	default:
		s.run.resume()

		return false, fmt.Errorf("failed to load approval %s: %w", id, err)
	}

	woke, err := s.run.park(s.ctx, 0, false)
	if err != nil {
		return false, err
	}

	return woke.approved, nil
}

func (s *stepper) recordDelivery(channel models.Channel, messageID string) {
	execution := s.run.execution

	err := s.run.engine.store.SaveDeliveryEvent(context.WithoutCancel(s.ctx), &models.DeliveryEvent{
		ID:          uuid.NewString(),
		JourneyID:   execution.JourneyID,
		ExecutionID: execution.ID,
		NodeID:      s.node.ID,
		CustomerID:  execution.CustomerID,
		Channel:     channel,
		Type:        models.DeliverySent,
		MessageID:   messageID,
		OccurredAt:  s.run.engine.clock.Now().UTC(),
	})
	if err != nil {
		s.run.logger.WarnContext(s.ctx, "Failed to record delivery event", "node_id", s.node.ID, "error", err)
	}
}

// visitID identifies one visit of a node by an execution.
func visitID(executionID, nodeID string, visit int) string {
	return executionID + ":" + nodeID + ":" + strconv.Itoa(visit)
}
