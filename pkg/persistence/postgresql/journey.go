package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/google/uuid"
)

const journeyColumns = `
			id
		  , name
		  , description
		  , status
		  , version
		  , trigger
		  , custom_variables
		  , analytics
		  , created_by
		  , created_at
		  , updated_at
		  , published_at`

// JourneyRepository handles journey-related database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJourneyRepository creates a new journey repository.
func NewJourneyRepository(db *sql.DB, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

// Journeys returns all journeys, newest first, filtered by status unless status is empty.
func (r *JourneyRepository) Journeys(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error) {
	query := `SELECT` + journeyColumns + `
		FROM journeys
		WHERE deleted_at IS NULL AND ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	for _, journey := range journeys {
		err = r.loadNodes(ctx, journey)
		if err != nil {
			return nil, err
		}
	}

	return journeys, nil
}

// JourneyByID returns a journey with its nodes.
func (r *JourneyRepository) JourneyByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `SELECT` + journeyColumns + `
		FROM journeys
		WHERE id = $1 AND deleted_at IS NULL
	`

	journey, err := scanJourney(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewJourneyError("JourneyByID", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, persistence.NewJourneyError("JourneyByID", id, err)
	}

	err = r.loadNodes(ctx, journey)
	if err != nil {
		return nil, persistence.NewJourneyError("JourneyByID", id, err)
	}

	return journey, nil
}

// SaveJourney upserts a journey and replaces its nodes in one transaction.
func (r *JourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	now := time.Now().UTC()

	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	if journey.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate journey ID: %w", err)
		}

		journey.ID = id.String()
	}

	triggerJSON, err := json.Marshal(journey.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	variablesJSON, err := json.Marshal(journey.CustomVariables)
	if err != nil {
		return fmt.Errorf("failed to marshal custom variables: %w", err)
	}

	analyticsJSON, err := json.Marshal(journey.Analytics)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	journeyQuery := `
		INSERT INTO journeys (id, name, description, status, version, trigger, custom_variables, analytics,
			created_by, created_at, updated_at, published_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			trigger = EXCLUDED.trigger,
			custom_variables = EXCLUDED.custom_variables,
			analytics = EXCLUDED.analytics,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			deleted_at = NULL
	`

	_, err = tx.ExecContext(ctx, journeyQuery,
		journey.ID,
		journey.Name,
		journey.Description,
		journey.Status,
		journey.Version,
		triggerJSON,
		variablesJSON,
		analyticsJSON,
		journey.CreatedBy,
		journey.CreatedAt,
		journey.UpdatedAt,
		journey.PublishedAt,
	)
	if err != nil {
		return persistence.NewJourneyError("SaveJourney", journey.ID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM journey_nodes WHERE journey_id = $1", journey.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	err = r.saveNodes(ctx, tx, journey)
	if err != nil {
		return persistence.NewJourneyError("SaveJourney", journey.ID, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteJourney soft deletes a journey by setting deleted_at timestamp.
func (r *JourneyRepository) DeleteJourney(ctx context.Context, id string) error {
	query := `UPDATE journeys SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewJourneyError("DeleteJourney", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewJourneyError("DeleteJourney", id, persistence.ErrJourneyNotFound)
	}

	return nil
}

// SaveJourneyVersion stores the definition snapshot of the journey at its current version.
func (r *JourneyRepository) SaveJourneyVersion(ctx context.Context, journey *models.Journey) error {
	definition, err := json.Marshal(journey)
	if err != nil {
		return fmt.Errorf("failed to marshal journey snapshot: %w", err)
	}

	query := `
		INSERT INTO journey_versions (journey_id, version, definition)
		VALUES ($1, $2, $3)
		ON CONFLICT (journey_id, version) DO UPDATE SET definition = EXCLUDED.definition
	`

	_, err = r.db.ExecContext(ctx, query, journey.ID, journey.Version, definition)
	if err != nil {
		return &persistence.JourneyError{Op: "SaveJourneyVersion", JourneyID: journey.ID, Version: journey.Version, Err: err}
	}

	return nil
}

// JourneyVersion returns the definition snapshot of a journey at the given version.
func (r *JourneyRepository) JourneyVersion(ctx context.Context, id string, version int) (*models.Journey, error) {
	var definition []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT definition FROM journey_versions WHERE journey_id = $1 AND version = $2",
		id, version,
	).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		err = persistence.ErrJourneyVersionNotFound
	}

	if err != nil {
		return nil, &persistence.JourneyError{Op: "JourneyVersion", JourneyID: id, Version: version, Err: err}
	}

	var journey models.Journey

	err = json.Unmarshal(definition, &journey)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal journey snapshot: %w", err)
	}

	return &journey, nil
}

func scanJourney(row rowScanner) (*models.Journey, error) {
	var (
		journey                                 models.Journey
		triggerJSON, variablesJSON, analyticsJS []byte
		publishedAt                             sql.NullTime
	)

	err := row.Scan(
		&journey.ID,
		&journey.Name,
		&journey.Description,
		&journey.Status,
		&journey.Version,
		&triggerJSON,
		&variablesJSON,
		&analyticsJS,
		&journey.CreatedBy,
		&journey.CreatedAt,
		&journey.UpdatedAt,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggerJSON, &journey.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	err = unmarshalOptional(variablesJSON, &journey.CustomVariables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom variables: %w", err)
	}

	err = unmarshalOptional(analyticsJS, &journey.Analytics)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal analytics: %w", err)
	}

	if publishedAt.Valid {
		journey.PublishedAt = &publishedAt.Time
	}

	return &journey, nil
}

func (r *JourneyRepository) loadNodes(ctx context.Context, journey *models.Journey) error {
	query := `
		SELECT id, node_type, name, config, next, position_x, position_y
		FROM journey_nodes
		WHERE journey_id = $1
		ORDER BY ordinal
	`

	rows, err := r.db.QueryContext(ctx, query, journey.ID)
	if err != nil {
		return fmt.Errorf("failed to query journey nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	nodes := make([]*models.JourneyNode, 0)

	for rows.Next() {
		var (
			node                 models.JourneyNode
			configJSON, nextJSON []byte
		)

		err := rows.Scan(
			&node.ID,
			&node.Type,
			&node.Name,
			&configJSON,
			&nextJSON,
			&node.Position.X,
			&node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		node.Config, err = models.DecodeNodeConfig(node.Type, configJSON)
		if err != nil {
			return fmt.Errorf("failed to unmarshal node %s configuration: %w", node.ID, err)
		}

		err = unmarshalOptional(nextJSON, &node.Next)
		if err != nil {
			return fmt.Errorf("failed to unmarshal node %s successors: %w", node.ID, err)
		}

		nodes = append(nodes, &node)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	journey.Nodes = nodes

	return nil
}

func (r *JourneyRepository) saveNodes(ctx context.Context, tx *sql.Tx, journey *models.Journey) error {
	query := `
		INSERT INTO journey_nodes (journey_id, id, ordinal, node_type, name, config, next, position_x, position_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for ordinal, node := range journey.Nodes {
		configJSON, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal node configuration: %w", err)
		}

		nextJSON, err := json.Marshal(node.Next)
		if err != nil {
			return fmt.Errorf("failed to marshal node successors: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			journey.ID,
			node.ID,
			ordinal,
			node.Type,
			node.Name,
			configJSON,
			nextJSON,
			node.Position.X,
			node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	return nil
}

// unmarshalOptional leaves target untouched for NULL columns.
func unmarshalOptional(data []byte, target any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	return json.Unmarshal(data, target)
}
