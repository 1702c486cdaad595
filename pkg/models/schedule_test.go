package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int {
	return &v
}

func TestScheduleConfig_CronExpression(t *testing.T) {
	tests := []struct {
		name     string
		config   *ScheduleConfig
		expected string
		wantErr  bool
	}{
		{
			name:     "daily",
			config:   &ScheduleConfig{Frequency: ScheduleFrequencyDaily, Time: "09:30"},
			expected: "30 9 * * *",
		},
		{
			name:     "weekly on monday",
			config:   &ScheduleConfig{Frequency: ScheduleFrequencyWeekly, Time: "08:00", DayOfWeek: intPtr(1)},
			expected: "0 8 * * 1",
		},
		{
			name:     "monthly on the 15th",
			config:   &ScheduleConfig{Frequency: ScheduleFrequencyMonthly, Time: "23:59", DayOfMonth: intPtr(15)},
			expected: "59 23 15 * *",
		},
		{
			name:    "weekly without day",
			config:  &ScheduleConfig{Frequency: ScheduleFrequencyWeekly, Time: "08:00"},
			wantErr: true,
		},
		{
			name:    "bad time",
			config:  &ScheduleConfig{Frequency: ScheduleFrequencyDaily, Time: "25:00"},
			wantErr: true,
		},
		{
			name:    "unknown frequency",
			config:  &ScheduleConfig{Frequency: "hourly", Time: "10:00"},
			wantErr: true,
		},
		{
			name:    "nil config",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expression, err := tt.config.CronExpression()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSchedule)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, expression)
		})
	}
}

func TestNewSchedule_ComputesNextDueAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC) // Monday

	schedule, err := NewSchedule("s-1", "j-1", &ScheduleConfig{
		Frequency: ScheduleFrequencyDaily,
		Time:      "09:00",
		SegmentID: "vip",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), schedule.NextDueAt)
	assert.Equal(t, "vip", schedule.SegmentID)
	assert.True(t, schedule.Active)
	assert.False(t, schedule.IsDue(now))
	assert.True(t, schedule.IsDue(schedule.NextDueAt))

	require.NoError(t, schedule.Advance(schedule.NextDueAt))
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), schedule.NextDueAt)
}

func TestSchedule_InactiveIsNeverDue(t *testing.T) {
	schedule := &Schedule{NextDueAt: time.Unix(0, 0), Active: false}

	assert.False(t, schedule.IsDue(time.Now()))
}
