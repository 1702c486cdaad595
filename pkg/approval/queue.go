// Package approval holds action sends that need an operator decision before they fire.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrAlreadyDecided is returned when deciding a request that is no longer pending.
	ErrAlreadyDecided = errors.New("approval request already decided")

	// ErrInvalidRequest is returned for requests missing their execution or node.
	ErrInvalidRequest = errors.New("invalid approval request")
)

// DecisionHandler is invoked after a decision is recorded.
type DecisionHandler func(ctx context.Context, request *models.ApprovalRequest) error

// Queue records approval requests and turns decisions into signals through its handler.
type Queue struct {
	store  persistence.ApprovalRepository
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	handlers []DecisionHandler
}

// NewQueue creates an approval queue backed by the repository.
func NewQueue(store persistence.ApprovalRepository, clock clockwork.Clock, logger *slog.Logger) *Queue {
	return &Queue{
		store:  store,
		clock:  clock,
		logger: logger.With("module", "approval_queue"),
	}
}

// OnDecision registers a handler called for every recorded decision.
func (q *Queue) OnDecision(handler DecisionHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers = append(q.handlers, handler)
}

// RequestApproval stores request as pending.
func (q *Queue) RequestApproval(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ExecutionID == "" || request.NodeID == "" {
		return ErrInvalidRequest
	}

	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	request.Status = models.ApprovalStatusPending
	request.RequestedAt = q.clock.Now().UTC()
	request.DecidedAt = nil
	request.DecidedBy = ""

	err := q.store.SaveApproval(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to request approval: %w", err)
	}

	q.logger.InfoContext(ctx, "Approval requested",
		"approval_id", request.ID,
		"execution_id", request.ExecutionID,
		"node_id", request.NodeID,
		"channel", request.Channel,
	)

	return nil
}

// Pending lists requests awaiting a decision, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	return q.store.Approvals(ctx, models.ApprovalStatusPending)
}

// List returns requests filtered by status unless status is empty.
func (q *Queue) List(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	return q.store.Approvals(ctx, status)
}

// Get returns one approval request.
func (q *Queue) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return q.store.ApprovalByID(ctx, id)
}

// Decide records an approve or reject decision and notifies the handlers.
// The decision is persisted before handlers run, so a failing handler does not undo it.
func (q *Queue) Decide(ctx context.Context, id string, approved bool, decidedBy string) (*models.ApprovalRequest, error) {
	q.mu.Lock()

	request, err := q.store.ApprovalByID(ctx, id)
	if err != nil {
		q.mu.Unlock()

		return nil, err
	}

	if !request.IsPending() {
		q.mu.Unlock()

		return request, fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, id, request.Status)
	}

	now := q.clock.Now().UTC()
	request.DecidedAt = &now
	request.DecidedBy = decidedBy
	request.Status = models.ApprovalStatusRejected

	if approved {
		request.Status = models.ApprovalStatusApproved
	}

	err = q.store.SaveApproval(ctx, request)
	if err != nil {
		q.mu.Unlock()

		return nil, fmt.Errorf("failed to record decision for %s: %w", id, err)
	}

	handlers := append([]DecisionHandler(nil), q.handlers...)
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "Approval decided",
		"approval_id", id,
		"execution_id", request.ExecutionID,
		"status", request.Status,
		"decided_by", decidedBy,
	)

	var handlerErrs []error

	for _, handler := range handlers {
		err := handler(ctx, request)
		if err != nil {
			handlerErrs = append(handlerErrs, err)
		}
	}

	return request, errors.Join(handlerErrs...)
}
