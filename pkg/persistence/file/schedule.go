package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// SaveSchedule stores the schedule of a journey, replacing any previous one.
func (fp *Persistence) SaveSchedule(_ context.Context, schedule *models.Schedule) error {
	err := fp.schedules.save(schedule.JourneyID, schedule)
	if err != nil {
		return persistence.NewJourneyError("SaveSchedule", schedule.JourneyID, err)
	}

	return nil
}

// ScheduleByJourney returns the schedule of a journey.
func (fp *Persistence) ScheduleByJourney(_ context.Context, journeyID string) (*models.Schedule, error) {
	schedule, err := fp.schedules.load(journeyID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewJourneyError("ScheduleByJourney", journeyID, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewJourneyError("ScheduleByJourney", journeyID, err)
	}

	return schedule, nil
}

// DeleteSchedule removes the schedule of a journey. Deleting a missing schedule is not an error.
func (fp *Persistence) DeleteSchedule(_ context.Context, journeyID string) error {
	err := fp.schedules.delete(journeyID)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewJourneyError("DeleteSchedule", journeyID, err)
	}

	return nil
}

// DueSchedules returns active schedules due at now, earliest first.
func (fp *Persistence) DueSchedules(_ context.Context, now time.Time) ([]*models.Schedule, error) {
	schedules, err := fp.schedules.all("")
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	due := schedules[:0]

	for _, schedule := range schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(due[j].NextDueAt)
	})

	return due, nil
}
