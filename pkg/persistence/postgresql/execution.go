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

const executionColumns = `
			id
		  , journey_id
		  , journey_version
		  , customer_id
		  , current_node_id
		  , status
		  , history
		  , context
		  , failure_reason
		  , exit_reason
		  , started_at
		  , completed_at`

// ExecutionRepository handles journey execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// SaveExecution upserts an execution with its history and context.
func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.JourneyExecution) error {
	if execution.History == nil {
		execution.History = []models.HistoryEntry{}
	}

	if execution.Context == nil {
		execution.Context = make(map[string]any)
	}

	historyJSON, err := json.Marshal(execution.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	query := `
		INSERT INTO journey_executions (id, journey_id, journey_version, customer_id, current_node_id, status,
			history, context, failure_reason, exit_reason, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			current_node_id = EXCLUDED.current_node_id,
			status = EXCLUDED.status,
			history = EXCLUDED.history,
			context = EXCLUDED.context,
			failure_reason = EXCLUDED.failure_reason,
			exit_reason = EXCLUDED.exit_reason,
			completed_at = EXCLUDED.completed_at
		WHERE journey_executions.status = 'active'
	`

	res, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.JourneyID,
		execution.JourneyVersion,
		execution.CustomerID,
		execution.CurrentNodeID,
		execution.Status,
		historyJSON,
		contextJSON,
		execution.FailureReason,
		execution.ExitReason,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	// The conflict update is skipped once the stored row is no longer active.
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("SaveExecution", execution.ID, persistence.ErrExecutionFinished)
	}

	return nil
}

// ExecutionByID returns an execution by its ID.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.JourneyExecution, error) {
	query := `SELECT` + executionColumns + ` FROM journey_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return execution, nil
}

// ExecutionsByJourney returns the executions of a journey ordered by start time.
func (r *ExecutionRepository) ExecutionsByJourney(ctx context.Context, journeyID string) ([]*models.JourneyExecution, error) {
	query := `SELECT` + executionColumns + `
		FROM journey_executions
		WHERE journey_id = $1
		ORDER BY started_at
	`

	return r.query(ctx, query, journeyID)
}

// ActiveExecution returns the active execution of the customer in the journey, or nil.
func (r *ExecutionRepository) ActiveExecution(ctx context.Context, journeyID, customerID string) (*models.JourneyExecution, error) {
	query := `SELECT` + executionColumns + `
		FROM journey_executions
		WHERE journey_id = $1 AND customer_id = $2 AND status = 'active'
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, journeyID, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query active execution: %w", err)
	}

	return execution, nil
}

// ActiveExecutions returns every non-terminal execution, used to resume after a restart.
func (r *ExecutionRepository) ActiveExecutions(ctx context.Context) ([]*models.JourneyExecution, error) {
	query := `SELECT` + executionColumns + `
		FROM journey_executions
		WHERE status = 'active'
		ORDER BY started_at
	`

	return r.query(ctx, query)
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.JourneyExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.JourneyExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.JourneyExecution, error) {
	var (
		execution                models.JourneyExecution
		historyJSON, contextJSON []byte
		completedAt              sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.JourneyID,
		&execution.JourneyVersion,
		&execution.CustomerID,
		&execution.CurrentNodeID,
		&execution.Status,
		&historyJSON,
		&contextJSON,
		&execution.FailureReason,
		&execution.ExitReason,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.History = []models.HistoryEntry{}

	err = unmarshalOptional(historyJSON, &execution.History)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	execution.Context = make(map[string]any)

	err = unmarshalOptional(contextJSON, &execution.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
