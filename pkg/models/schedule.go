package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// Schedule is the persisted state of a schedule trigger.
// It stores the cron expression derived from the journey's ScheduleConfig and the precomputed
// next due time so a single poller can serve every scheduled journey.
type Schedule struct {
	ID             string     `json:"id"                    validate:"required"`
	JourneyID      string     `json:"journey_id"            validate:"required"`
	CronExpression string     `json:"cron_expression"       validate:"required"`
	SegmentID      string     `json:"segment_id,omitempty"`
	NextDueAt      time.Time  `json:"next_due_at"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewSchedule creates a schedule for the journey with the first due time after now.
func NewSchedule(id, journeyID string, config *ScheduleConfig, now time.Time) (*Schedule, error) {
	expression, err := config.CronExpression()
	if err != nil {
		return nil, err
	}

	schedule := &Schedule{
		ID:             id,
		JourneyID:      journeyID,
		CronExpression: expression,
		SegmentID:      config.SegmentID,
		Active:         true,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}

	err = schedule.Advance(now)
	if err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance moves NextDueAt to the first activation strictly after reference.
func (s *Schedule) Advance(reference time.Time) error {
	cronSchedule, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	s.NextDueAt = cronSchedule.Next(reference.UTC())
	s.UpdatedAt = reference.UTC()

	return nil
}

// IsDue checks if this schedule is due at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// CronExpression converts the frequency/time/day rules into a 5-field cron expression.
func (c *ScheduleConfig) CronExpression() (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: missing schedule", ErrInvalidSchedule)
	}

	hour, minute, err := parseClock(c.Time)
	if err != nil {
		return "", err
	}

	var expression string

	switch c.Frequency {
	case ScheduleFrequencyDaily:
		expression = fmt.Sprintf("%d %d * * *", minute, hour)
	case ScheduleFrequencyWeekly:
		if c.DayOfWeek == nil || *c.DayOfWeek < 0 || *c.DayOfWeek > 6 {
			return "", fmt.Errorf("%w: weekly schedule requires day_of_week 0-6", ErrInvalidSchedule)
		}

		expression = fmt.Sprintf("%d %d * * %d", minute, hour, *c.DayOfWeek)
	case ScheduleFrequencyMonthly:
		if c.DayOfMonth == nil || *c.DayOfMonth < 1 || *c.DayOfMonth > 31 {
			return "", fmt.Errorf("%w: monthly schedule requires day_of_month 1-31", ErrInvalidSchedule)
		}

		expression = fmt.Sprintf("%d %d %d * *", minute, hour, *c.DayOfMonth)
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, c.Frequency)
	}

	_, err = cronParser.Parse(expression)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return expression, nil
}

func parseClock(value string) (int, int, error) {
	hourPart, minutePart, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, value)
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalidSchedule, value)
	}

	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidSchedule, value)
	}

	return hour, minute, nil
}
