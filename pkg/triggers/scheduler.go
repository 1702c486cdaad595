package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journeys/pkg/customers"
	"github.com/dukex/journeys/pkg/engine"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval is how often the scheduler looks for due schedules.
const DefaultPollInterval = time.Minute

// JourneyFinder loads a journey by id.
type JourneyFinder interface {
	JourneyByID(ctx context.Context, id string) (*models.Journey, error)
}

// Scheduler polls persisted schedules and starts the journeys that are due for every customer of
// the schedule's audience segment. One poller serves every scheduled journey whatever its cron
// expression.
type Scheduler struct {
	schedules persistence.ScheduleRepository
	journeys  JourneyFinder
	segments  customers.SegmentSource
	starter   Starter
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger
}

func NewScheduler(
	schedules persistence.ScheduleRepository,
	journeys JourneyFinder,
	segments customers.SegmentSource,
	starter Starter,
	clock clockwork.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Scheduler{
		schedules: schedules,
		journeys:  journeys,
		segments:  segments,
		starter:   starter,
		clock:     clock,
		interval:  interval,
		logger:    logger.With("module", "journey_scheduler"),
	}
}

// Run polls until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")

			return
		case <-ticker.Chan():
			_, err := s.ProcessDue(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to process due schedules", "error", err)
			}
		}
	}
}

// ProcessDue starts every due schedule and advances it to its next activation. It returns how
// many executions were started, or how many start requests were accepted when the starter is a
// BusStarter.
func (s *Scheduler) ProcessDue(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	due, err := s.schedules.DueSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to load due schedules: %w", err)
	}

	var (
		started int
		errs    []error
	)

	for _, schedule := range due {
		count, err := s.fire(ctx, schedule, now)
		started += count

		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.ID, err))
		}

		// Advance even after a partial failure so one bad audience cannot wedge the poller.
		err = schedule.Advance(now)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		schedule.LastRunAt = &now

		err = s.schedules.SaveSchedule(ctx, schedule)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.ID, err))

			continue
		}

		s.logger.InfoContext(ctx, "Schedule processed",
			"journey_id", schedule.JourneyID,
			"started", count,
			"next_due_at", schedule.NextDueAt,
		)
	}

	return started, errors.Join(errs...)
}

func (s *Scheduler) fire(ctx context.Context, schedule *models.Schedule, now time.Time) (int, error) {
	journey, err := s.journeys.JourneyByID(ctx, schedule.JourneyID)
	if err != nil {
		return 0, err
	}

	if !journey.IsExecutable() || journey.Trigger.Type != models.TriggerTypeSchedule {
		s.logger.DebugContext(ctx, "Skipping schedule of inactive journey", "journey_id", journey.ID, "status", journey.Status)

		return 0, nil
	}

	members, err := s.segments.SegmentMembers(ctx, schedule.SegmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load segment %s: %w", schedule.SegmentID, err)
	}

	var (
		started int
		errs    []error
	)

	for _, customerID := range members {
		_, err := s.starter.Start(ctx, journey, customerID, map[string]any{
			"schedule_id": schedule.ID,
			"due_at":      schedule.NextDueAt.Format(time.RFC3339),
			"fired_at":    now.Format(time.RFC3339),
		})

		switch {
		case errors.Is(err, engine.ErrAlreadyActive):
		case err != nil:
			errs = append(errs, fmt.Errorf("customer %s: %w", customerID, err))
		default:
			started++
		}
	}

	return started, errors.Join(errs...)
}

// SyncSchedule keeps the persisted schedule of a journey in line with its status and trigger:
// active schedule-triggered journeys get a schedule due at the next activation after now, every
// other journey has none.
func SyncSchedule(ctx context.Context, schedules persistence.ScheduleRepository, journey *models.Journey, now time.Time) error {
	if !journey.IsExecutable() || journey.Trigger.Type != models.TriggerTypeSchedule {
		return schedules.DeleteSchedule(ctx, journey.ID)
	}

	schedule, err := models.NewSchedule(journey.ID, journey.ID, journey.Trigger.Config.Schedule, now)
	if err != nil {
		return err
	}

	existing, err := schedules.ScheduleByJourney(ctx, journey.ID)

	switch {
	case err == nil:
		schedule.CreatedAt = existing.CreatedAt
		schedule.LastRunAt = existing.LastRunAt
	case !persistence.IsNotFound(err):
		return err
	}

	return schedules.SaveSchedule(ctx, schedule)
}
