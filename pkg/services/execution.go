package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/journeys/pkg/engine"
	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Executor runs executions in this process.
type Executor interface {
	Start(ctx context.Context, journey *models.Journey, customerID string, trigger map[string]any) (*models.JourneyExecution, error)
	Cancel(ctx context.Context, executionID, reason string) (*models.JourneyExecution, error)
}

// Execution starts, cancels and inspects journey executions. With an executor it acts directly;
// without one (the API process) it publishes requests for the workers on the event bus, keyed by
// customer so the worker that owns the customer's executions receives them.
type Execution struct {
	persistence persistence.Persistence
	executor    Executor
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewExecution(
	persistence persistence.Persistence,
	executor Executor,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Execution {
	return &Execution{
		persistence: persistence,
		executor:    executor,
		publisher:   publisher,
		clock:       clock,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "execution_service"),
	}
}

// StartManual enters a customer into an active journey. It returns the execution when it was
// started in this process, or nil when the start was queued for a worker.
func (s *Execution) StartManual(
	ctx context.Context,
	journeyID, customerID string,
	payload map[string]any,
) (*models.JourneyExecution, error) {
	if customerID == "" {
		return nil, NewValidationError("StartManual", "INVALID_REQUEST", "customer_id is required", ErrInvalidRequest)
	}

	journey, err := s.persistence.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if !journey.IsExecutable() {
		return nil, NewConflictError("StartManual", fmt.Sprintf("journey %s is %s", journeyID, journey.Status), ErrJourneyNotActive)
	}

	if payload == nil {
		payload = map[string]any{}
	}

	if s.executor != nil {
		return s.executor.Start(ctx, journey, customerID, payload)
	}

	if s.publisher == nil {
		return nil, errors.New("no executor or event bus configured")
	}

	request := events.ExecutionStartRequested{
		BaseEvent:  events.NewBaseEvent(events.ExecutionStartRequestedType, journeyID),
		CustomerID: customerID,
		Payload:    payload,
	}

	err = s.publisher.Publish(ctx, customerID, request)
	if err != nil {
		return nil, fmt.Errorf("failed to request execution start: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution start requested", "journey_id", journeyID, "customer_id", customerID)

	return nil, nil
}

// Cancel exits an active execution. It returns the exited execution when cancelled in this
// process, or the still active execution when the cancellation was queued for a worker.
func (s *Execution) Cancel(ctx context.Context, executionID, reason string) (*models.JourneyExecution, bool, error) {
	execution, err := s.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, false, err
	}

	if execution.Status.IsTerminal() {
		return nil, false, NewConflictError("Cancel",
			fmt.Sprintf("execution %s is %s", executionID, execution.Status), ErrExecutionNotActive)
	}

	if reason == "" {
		reason = "cancelled by operator"
	}

	if s.executor != nil {
		exited, err := s.executor.Cancel(ctx, executionID, reason)

		return exited, err == nil, err
	}

	if s.publisher == nil {
		return nil, false, errors.New("no executor or event bus configured")
	}

	request := events.ExecutionCancelRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelRequestedType, execution.JourneyID),
		ExecutionID: executionID,
		CustomerID:  execution.CustomerID,
		Reason:      reason,
	}

	err = s.publisher.Publish(ctx, execution.CustomerID, request)
	if err != nil {
		return nil, false, fmt.Errorf("failed to request execution cancel: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution cancel requested", "execution_id", executionID, "customer_id", execution.CustomerID)

	return execution, false, nil
}

// HandleStartRequested serves a start request published by the API.
func (s *Execution) HandleStartRequested(ctx context.Context, request *events.ExecutionStartRequested) error {
	if s.executor == nil {
		return errors.New("no executor configured")
	}

	journey, err := s.persistence.JourneyByID(ctx, request.JourneyID)
	if err != nil {
		if persistence.IsNotFound(err) {
			s.logger.WarnContext(ctx, "Start requested for unknown journey", "journey_id", request.JourneyID)

			return nil
		}

		return err
	}

	execution, err := s.executor.Start(ctx, journey, request.CustomerID, request.Payload)

	switch {
	case errors.Is(err, engine.ErrAlreadyActive), errors.Is(err, engine.ErrJourneyNotExecutable):
		s.logger.InfoContext(ctx, "Start request ignored",
			"journey_id", request.JourneyID,
			"customer_id", request.CustomerID,
			"reason", err.Error(),
		)

		return nil
	case err != nil:
		return err
	}

	s.logger.InfoContext(ctx, "Execution started on request", "execution_id", execution.ID, "journey_id", journey.ID)

	return nil
}

// HandleCancelRequested serves a cancel request published by the API.
func (s *Execution) HandleCancelRequested(ctx context.Context, request *events.ExecutionCancelRequested) error {
	if s.executor == nil {
		return errors.New("no executor configured")
	}

	_, err := s.executor.Cancel(ctx, request.ExecutionID, request.Reason)
	if errors.Is(err, engine.ErrNotActive) || persistence.IsNotFound(err) {
		s.logger.InfoContext(ctx, "Cancel request ignored", "execution_id", request.ExecutionID, "reason", err.Error())

		return nil
	}

	return err
}

// FetchByID retrieves an execution by its ID.
func (s *Execution) FetchByID(ctx context.Context, id string) (*models.JourneyExecution, error) {
	return s.persistence.ExecutionByID(ctx, id)
}

// List returns the executions of a journey, filtered by status unless status is empty.
func (s *Execution) List(ctx context.Context, journeyID string, status models.ExecutionStatus) ([]*models.JourneyExecution, error) {
	known := []models.ExecutionStatus{
		models.ExecutionStatusActive,
		models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed,
		models.ExecutionStatusExited,
	}

	if status != "" && !slices.Contains(known, status) {
		return nil, NewValidationError("List", "INVALID_STATUS", fmt.Sprintf("invalid execution status '%s'", status), ErrInvalidStatus)
	}

	_, err := s.persistence.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	executions, err := s.persistence.ExecutionsByJourney(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	if status == "" {
		return executions, nil
	}

	return slices.DeleteFunc(executions, func(execution *models.JourneyExecution) bool {
		return execution.Status != status
	}), nil
}

// RecordDelivery appends a delivery lifecycle event reported by a channel provider.
func (s *Execution) RecordDelivery(ctx context.Context, event *models.DeliveryEvent) (*models.DeliveryEvent, error) {
	if event == nil {
		return nil, NewValidationError("RecordDelivery", "INVALID_REQUEST", "delivery event is required", ErrInvalidRequest)
	}

	err := s.validate.Struct(event)
	if err != nil {
		return nil, NewValidationError("RecordDelivery", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	execution, err := s.persistence.ExecutionByID(ctx, event.ExecutionID)
	if err != nil {
		return nil, err
	}

	if execution.JourneyID != event.JourneyID {
		return nil, NewValidationError("RecordDelivery", "INVALID_REQUEST",
			fmt.Sprintf("execution %s does not belong to journey %s", execution.ID, event.JourneyID), ErrInvalidRequest)
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.CustomerID == "" {
		event.CustomerID = execution.CustomerID
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now().UTC()
	}

	err = s.persistence.SaveDeliveryEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record delivery event: %w", err)
	}

	return event, nil
}
