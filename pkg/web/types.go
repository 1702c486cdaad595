// Package web provides the HTTP handlers and request types of the journey API.
package web

import "github.com/dukex/journeys/pkg/validation"

// StartExecutionRequest is the body of a manual journey entry.
type StartExecutionRequest struct {
	CustomerID string         `json:"customer_id" validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// CancelExecutionRequest is the optional body of an execution cancellation.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// DecideApprovalRequest records an operator decision on a held action.
type DecideApprovalRequest struct {
	Approved  *bool  `json:"approved"   validate:"required"`
	DecidedBy string `json:"decided_by" validate:"required"`
}

// ValidationResponse reports the validation result of a journey definition.
type ValidationResponse struct {
	Valid  bool              `json:"valid"`
	Errors validation.Errors `json:"errors"`
}

// AcceptedResponse is returned when a request was queued for a worker.
type AcceptedResponse struct {
	Status      string `json:"status"`
	JourneyID   string `json:"journey_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
}

func newValidationResponse(errs validation.Errors) ValidationResponse {
	if errs == nil {
		errs = validation.Errors{}
	}

	return ValidationResponse{Valid: errs.OK(), Errors: errs}
}
