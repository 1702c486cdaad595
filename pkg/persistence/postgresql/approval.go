package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// ApprovalRepository handles approval request database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

// SaveApproval upserts an approval request.
func (r *ApprovalRepository) SaveApproval(ctx context.Context, request *models.ApprovalRequest) error {
	contentJSON, err := json.Marshal(request.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal approval content: %w", err)
	}

	query := `
		INSERT INTO approval_requests (id, execution_id, journey_id, node_id, customer_id, channel, content,
			status, requested_at, decided_at, decided_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			decided_at = EXCLUDED.decided_at,
			decided_by = EXCLUDED.decided_by
	`

	_, err = r.db.ExecContext(ctx, query,
		request.ID,
		request.ExecutionID,
		request.JourneyID,
		request.NodeID,
		request.CustomerID,
		request.Channel,
		contentJSON,
		request.Status,
		request.RequestedAt,
		request.DecidedAt,
		request.DecidedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval %s: %w", request.ID, err)
	}

	return nil
}

// ApprovalByID returns an approval request by its ID.
func (r *ApprovalRepository) ApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := approvalSelect + ` WHERE id = $1`

	request, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval %s: %w", id, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load approval %s: %w", id, err)
	}

	return request, nil
}

// Approvals lists approval requests, oldest first, filtered by status unless status is empty.
func (r *ApprovalRepository) Approvals(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	query := approvalSelect + `
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY requested_at
	`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		request, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return requests, nil
}

const approvalSelect = `
		SELECT id, execution_id, journey_id, node_id, customer_id, channel, content, status,
			requested_at, decided_at, decided_by
		FROM approval_requests`

func scanApproval(row rowScanner) (*models.ApprovalRequest, error) {
	var (
		request     models.ApprovalRequest
		contentJSON []byte
		decidedAt   sql.NullTime
	)

	err := row.Scan(
		&request.ID,
		&request.ExecutionID,
		&request.JourneyID,
		&request.NodeID,
		&request.CustomerID,
		&request.Channel,
		&contentJSON,
		&request.Status,
		&request.RequestedAt,
		&decidedAt,
		&request.DecidedBy,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalOptional(contentJSON, &request.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval content: %w", err)
	}

	if decidedAt.Valid {
		request.DecidedAt = &decidedAt.Time
	}

	return &request, nil
}
