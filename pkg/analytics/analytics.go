// Package analytics rolls execution histories and the delivery audit log up into journey metrics.
package analytics

import (
	"time"

	"github.com/dukex/journeys/pkg/models"
)

// Aggregate computes the analytics of a journey from every execution and delivery event recorded
// for it. It has no side effects, so it can be recomputed from full history at any time.
//
// Executions count once per node they visited. A node counts as completed when the execution left
// it with any outcome other than dropped, and as dropped otherwise; a node the execution is still
// in counts as entered only. Channel sends come from the audit log, topped up with dispatches
// recorded in history whose message never reached the log.
func Aggregate(
	journey *models.Journey,
	executions []*models.JourneyExecution,
	deliveries []*models.DeliveryEvent,
	now time.Time,
) *models.JourneyAnalytics {
	result := &models.JourneyAnalytics{
		JourneyID:          journey.ID,
		StepPerformance:    make(map[string]*models.StepPerformance, len(journey.Nodes)),
		ChannelPerformance: make(map[models.Channel]*models.ChannelPerformance),
		ComputedAt:         now.UTC(),
	}

	for _, node := range journey.Nodes {
		result.StepPerformance[node.ID] = &models.StepPerformance{NodeID: node.ID}

		if config, ok := node.Config.(*models.ActionConfig); ok && config.Channel != "" {
			channelStats(result, config.Channel)
		}
	}

	steps := newStepTimes()

	var (
		completionTotal time.Duration
		completionCount int
	)

	for _, execution := range executions {
		result.TotalEntered++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			result.TotalCompleted++

			if duration, ok := execution.Duration(); ok {
				completionTotal += duration
				completionCount++
			}
		case models.ExecutionStatusActive:
			result.TotalActive++
		case models.ExecutionStatusFailed, models.ExecutionStatusExited:
			result.TotalDropped++
		}

		countSteps(result, steps, execution)
	}

	if result.TotalEntered > 0 {
		result.ConversionRate = float64(result.TotalCompleted) / float64(result.TotalEntered)
	}

	if completionCount > 0 {
		result.AvgCompletionTime = completionTotal / time.Duration(completionCount)
	}

	for nodeID, step := range result.StepPerformance {
		if step.Entered > 0 {
			step.DropRate = float64(step.Dropped) / float64(step.Entered)
		}

		step.AvgTimeInStep = steps.average(nodeID)
	}

	countDeliveries(result, executions, deliveries)

	return result
}

func countSteps(result *models.JourneyAnalytics, steps *stepTimes, execution *models.JourneyExecution) {
	// Last visit per node decides how the execution left it.
	last := make(map[string]models.HistoryEntry, len(execution.History))
	order := make([]string, 0, len(execution.History))

	for _, entry := range execution.History {
		if _, seen := last[entry.NodeID]; !seen {
			order = append(order, entry.NodeID)
		}

		last[entry.NodeID] = entry

		if spent, ok := entry.TimeInStep(); ok {
			steps.add(entry.NodeID, spent)
		}
	}

	for _, nodeID := range order {
		entry := last[nodeID]

		step, ok := result.StepPerformance[nodeID]
		if !ok {
			// Node removed in a later version; still reported.
			step = &models.StepPerformance{NodeID: nodeID}
			result.StepPerformance[nodeID] = step
		}

		step.Entered++

		switch {
		case entry.ExitedAt == nil:
		case entry.Outcome == models.OutcomeDropped:
			step.Dropped++
		default:
			step.Completed++
		}
	}
}

// sendKey identifies the sends of one node by one execution, for audit events without a message id.
type sendKey struct {
	executionID string
	nodeID      string
}

// countDeliveries sums the audit log and tops it up with sends recorded only in history. A history
// send matches a logged send by message id, or by execution and node when the log has no id.
func countDeliveries(result *models.JourneyAnalytics, executions []*models.JourneyExecution, deliveries []*models.DeliveryEvent) {
	byMessage := make(map[string]bool, len(deliveries))
	byVisit := make(map[sendKey]int)

	for _, event := range deliveries {
		stats := channelStats(result, event.Channel)

		switch event.Type {
		case models.DeliverySent:
			stats.Sent++

			if event.MessageID != "" {
				byMessage[event.MessageID] = true
			} else {
				byVisit[sendKey{event.ExecutionID, event.NodeID}]++
			}
		case models.DeliveryDelivered:
			stats.Delivered++
		case models.DeliveryOpened:
			stats.Opened++
		case models.DeliveryClicked:
			stats.Clicked++
		case models.DeliveryConverted:
			stats.Conversions++
		}
	}

	for _, execution := range executions {
		for _, entry := range execution.History {
			dispatch := entry.Dispatch
			if dispatch == nil || dispatch.Status != models.DispatchStatusSent {
				continue
			}

			if dispatch.MessageID != "" && byMessage[dispatch.MessageID] {
				continue
			}

			key := sendKey{execution.ID, entry.NodeID}
			if byVisit[key] > 0 {
				byVisit[key]--

				continue
			}

			channelStats(result, dispatch.Channel).Sent++
		}
	}
}

func channelStats(result *models.JourneyAnalytics, channel models.Channel) *models.ChannelPerformance {
	stats, ok := result.ChannelPerformance[channel]
	if !ok {
		stats = &models.ChannelPerformance{}
		result.ChannelPerformance[channel] = stats
	}

	return stats
}

type stepTimes struct {
	total map[string]time.Duration
	count map[string]int
}

func newStepTimes() *stepTimes {
	return &stepTimes{total: make(map[string]time.Duration), count: make(map[string]int)}
}

func (s *stepTimes) add(nodeID string, spent time.Duration) {
	s.total[nodeID] += spent
	s.count[nodeID]++
}

func (s *stepTimes) average(nodeID string) time.Duration {
	if s.count[nodeID] == 0 {
		return 0
	}

	return s.total[nodeID] / time.Duration(s.count[nodeID])
}
