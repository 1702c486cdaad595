package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// ScheduleRepository handles schedule trigger database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleSelect = `
		SELECT id, journey_id, cron_expression, segment_id, next_due_at, last_run_at, active, created_at, updated_at
		FROM journey_schedules`

// SaveSchedule stores the schedule of a journey, replacing any previous one.
func (r *ScheduleRepository) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	query := `
		INSERT INTO journey_schedules (journey_id, id, cron_expression, segment_id, next_due_at, last_run_at,
			active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (journey_id) DO UPDATE SET
			id = EXCLUDED.id,
			cron_expression = EXCLUDED.cron_expression,
			segment_id = EXCLUDED.segment_id,
			next_due_at = EXCLUDED.next_due_at,
			last_run_at = EXCLUDED.last_run_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.JourneyID,
		schedule.ID,
		schedule.CronExpression,
		schedule.SegmentID,
		schedule.NextDueAt,
		schedule.LastRunAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewJourneyError("SaveSchedule", schedule.JourneyID, err)
	}

	return nil
}

// ScheduleByJourney returns the schedule of a journey.
func (r *ScheduleRepository) ScheduleByJourney(ctx context.Context, journeyID string) (*models.Schedule, error) {
	schedule, err := scanSchedule(r.db.QueryRowContext(ctx, scheduleSelect+` WHERE journey_id = $1`, journeyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewJourneyError("ScheduleByJourney", journeyID, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewJourneyError("ScheduleByJourney", journeyID, err)
	}

	return schedule, nil
}

// DeleteSchedule removes the schedule of a journey. Deleting a missing schedule is not an error.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, journeyID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM journey_schedules WHERE journey_id = $1", journeyID)
	if err != nil {
		return persistence.NewJourneyError("DeleteSchedule", journeyID, err)
	}

	return nil
}

// DueSchedules returns active schedules due at now, earliest first.
func (r *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	query := scheduleSelect + `
		WHERE active AND next_due_at <= $1
		ORDER BY next_due_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var (
		schedule  models.Schedule
		lastRunAt sql.NullTime
	)

	err := row.Scan(
		&schedule.ID,
		&schedule.JourneyID,
		&schedule.CronExpression,
		&schedule.SegmentID,
		&schedule.NextDueAt,
		&lastRunAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}

	return &schedule, nil
}
