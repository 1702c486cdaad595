// Package services implements the journey, execution and analytics use cases shared by the API,
// the worker and the CLI.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/journeys/pkg/approval"
	"github.com/dukex/journeys/pkg/engine"
	"github.com/dukex/journeys/pkg/graph"
	"github.com/dukex/journeys/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidStatus  = errors.New("invalid journey status")

	// ErrValidationFailed wraps the validation.Errors of a journey that cannot be saved or published.
	ErrValidationFailed = errors.New("journey validation failed")

	// Business Logic Conflicts (409 Conflict).
	ErrInvalidTransition    = errors.New("invalid journey status transition")
	ErrCannotModifyArchived = errors.New("cannot modify archived journey")
	ErrCannotDeleteActive   = errors.New("cannot delete a journey that is active or paused")
	ErrJourneyNotActive     = errors.New("journey is not active")
	ErrExecutionNotActive   = errors.New("execution is not active")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, graph.ErrInvalidEdit) ||
		errors.Is(err, graph.ErrInvalidEdgeLabel) ||
		errors.Is(err, graph.ErrDanglingEdge) ||
		errors.Is(err, graph.ErrConfigMismatch) ||
		errors.Is(err, approval.ErrInvalidRequest)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCannotModifyArchived) ||
		errors.Is(err, ErrCannotDeleteActive) ||
		errors.Is(err, ErrJourneyNotActive) ||
		errors.Is(err, ErrExecutionNotActive) ||
		errors.Is(err, graph.ErrDuplicateNode) ||
		errors.Is(err, graph.ErrDuplicateEdge) ||
		errors.Is(err, engine.ErrAlreadyActive) ||
		errors.Is(err, engine.ErrNotActive) ||
		errors.Is(err, approval.ErrAlreadyDecided)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) ||
		errors.Is(err, graph.ErrNodeNotFound) ||
		errors.Is(err, graph.ErrEdgeNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error with context.
func NewConflictError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "CONFLICT",
		Message: message,
		Err:     err,
	}
}
