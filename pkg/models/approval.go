package models

import "time"

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is an action send held until an operator approves or rejects it.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	JourneyID   string         `json:"journey_id"`
	NodeID      string         `json:"node_id"`
	CustomerID  string         `json:"customer_id"`
	Channel     Channel        `json:"channel"`
	Content     MessageContent `json:"content"`
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
}

// IsPending reports whether no decision was recorded yet.
func (r *ApprovalRequest) IsPending() bool {
	return r.Status == ApprovalStatusPending
}
