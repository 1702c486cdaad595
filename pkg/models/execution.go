package models

import "time"

// ExecutionStatus is the state of one customer's run through a journey.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusCompleted ExecutionStatus = "completed" // Reached an end node
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Unsubscribed or unrecoverable
	ExecutionStatusExited    ExecutionStatus = "exited"    // Cancelled externally
)

// IsTerminal reports whether no further transitions can happen.
func (s ExecutionStatus) IsTerminal() bool {
	return s != ExecutionStatusActive
}

// StepOutcome records how an execution left a node.
type StepOutcome string

const (
	OutcomeCompleted       StepOutcome = "completed"
	OutcomeDropped         StepOutcome = "dropped"
	OutcomeConditionMet    StepOutcome = "condition_met"
	OutcomeConditionFailed StepOutcome = "condition_failed"
)

// ResumeSource names what woke a suspended execution.
type ResumeSource string

const (
	ResumeTimer    ResumeSource = "timer"
	ResumeEvent    ResumeSource = "event"
	ResumeTimeout  ResumeSource = "timeout"
	ResumeApproval ResumeSource = "approval"
)

// DispatchStatus is the result reported by the message dispatcher.
type DispatchStatus string

const (
	DispatchStatusSent         DispatchStatus = "sent"
	DispatchStatusFailed       DispatchStatus = "failed"
	DispatchStatusUnsubscribed DispatchStatus = "unsubscribed"
	DispatchStatusRejected     DispatchStatus = "rejected" // Approval was denied, nothing was sent
)

// DispatchRecord annotates an action step with its send attempt.
type DispatchRecord struct {
	Channel   Channel        `json:"channel"`
	Status    DispatchStatus `json:"status"`
	MessageID string         `json:"message_id,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// HistoryEntry records one visit of a node.
type HistoryEntry struct {
	NodeID    string          `json:"node_id"`
	NodeType  NodeType        `json:"node_type"`
	EnteredAt time.Time       `json:"entered_at"`
	ExitedAt  *time.Time      `json:"exited_at,omitempty"`
	Outcome   StepOutcome     `json:"outcome,omitempty"`
	Branch    string          `json:"branch,omitempty"`
	ResumedBy ResumeSource    `json:"resumed_by,omitempty"`
	Dispatch  *DispatchRecord `json:"dispatch,omitempty"`
}

// TimeInStep returns how long the execution stayed in the node.
func (h HistoryEntry) TimeInStep() (time.Duration, bool) {
	if h.ExitedAt == nil {
		return 0, false
	}

	return h.ExitedAt.Sub(h.EnteredAt), true
}

// JourneyExecution is one customer's live instance of a journey.
type JourneyExecution struct {
	ID             string          `json:"id"`
	JourneyID      string          `json:"journey_id"`
	JourneyVersion int             `json:"journey_version"`
	CustomerID     string          `json:"customer_id"`
	CurrentNodeID  string          `json:"current_node_id"`
	Status         ExecutionStatus `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	History        []HistoryEntry  `json:"history"`
	Context        map[string]any  `json:"context"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	ExitReason     string          `json:"exit_reason,omitempty"`
}

// LastEntry returns the most recent history entry.
func (e *JourneyExecution) LastEntry() *HistoryEntry {
	if len(e.History) == 0 {
		return nil
	}

	return &e.History[len(e.History)-1]
}

// Visited reports whether the execution has a history entry for the node.
func (e *JourneyExecution) Visited(nodeID string) bool {
	for _, entry := range e.History {
		if entry.NodeID == nodeID {
			return true
		}
	}

	return false
}

// Duration returns the elapsed time between start and completion.
func (e *JourneyExecution) Duration() (time.Duration, bool) {
	if e.CompletedAt == nil {
		return 0, false
	}

	return e.CompletedAt.Sub(e.StartedAt), true
}
