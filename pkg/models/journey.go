// Package models defines the core domain models for customer journey automation.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JourneyStatus represents the lifecycle state of a journey.
type JourneyStatus string

const (
	JourneyStatusDraft     JourneyStatus = "draft"     // Editable, not executable
	JourneyStatusActive    JourneyStatus = "active"    // Published, triggers are live
	JourneyStatusPaused    JourneyStatus = "paused"    // Triggers are ignored, in-flight executions continue
	JourneyStatusCompleted JourneyStatus = "completed" // No new entries, kept for reporting
	JourneyStatusArchived  JourneyStatus = "archived"  // Hidden, read-only
)

// TriggerType identifies how customers enter a journey.
type TriggerType string

const (
	TriggerTypeEvent        TriggerType = "event"
	TriggerTypeSegmentEntry TriggerType = "segment_entry"
	TriggerTypeSchedule     TriggerType = "schedule"
	TriggerTypeManual       TriggerType = "manual"
)

// ScheduleFrequency controls how often a schedule trigger fires.
type ScheduleFrequency string

const (
	ScheduleFrequencyDaily   ScheduleFrequency = "daily"
	ScheduleFrequencyWeekly  ScheduleFrequency = "weekly"
	ScheduleFrequencyMonthly ScheduleFrequency = "monthly"
)

// ScheduleConfig describes a recurring entry window for a schedule trigger.
type ScheduleConfig struct {
	Frequency  ScheduleFrequency `json:"frequency"              validate:"required,oneof=daily weekly monthly"`
	Time       string            `json:"time"                   validate:"required"` // "HH:MM", UTC
	DayOfWeek  *int              `json:"day_of_week,omitempty"  validate:"omitempty,min=0,max=6"`
	DayOfMonth *int              `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	// SegmentID selects the audience that enters on every tick.
	SegmentID string `json:"segment_id,omitempty"`
}

// TriggerConfig carries the type-specific trigger settings.
type TriggerConfig struct {
	EventName   string          `json:"event_name,omitempty"`
	EventFilter map[string]any  `json:"event_filter,omitempty"`
	SegmentID   string          `json:"segment_id,omitempty"`
	Schedule    *ScheduleConfig `json:"schedule,omitempty"`
}

// JourneyTrigger is the single entry condition of a journey.
type JourneyTrigger struct {
	Type   TriggerType   `json:"type"   validate:"required,oneof=event segment_entry schedule manual"`
	Config TriggerConfig `json:"config"`
}

// Journey is a named, versioned graph of customer touchpoints.
type Journey struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"        validate:"required"`
	Description string            `json:"description"`
	Status      JourneyStatus     `json:"status"      validate:"required,oneof=draft active paused completed archived"`
	Version     int               `json:"version"`
	Trigger     JourneyTrigger    `json:"trigger"`
	Nodes       []*JourneyNode    `json:"nodes"`
	Analytics   *JourneyAnalytics `json:"analytics,omitempty"`
	// CustomVariables extends the personalization catalog for this journey with literal values (name -> value).
	CustomVariables map[string]string `json:"custom_variables,omitempty"`
	CreatedBy       string            `json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	PublishedAt     *time.Time        `json:"published_at,omitempty"`
}

// NodeByID returns the node with the given id.
func (j *Journey) NodeByID(id string) (*JourneyNode, bool) {
	for _, node := range j.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// TriggerNode returns the first trigger node of the journey.
func (j *Journey) TriggerNode() (*JourneyNode, bool) {
	for _, node := range j.Nodes {
		if node.Type == NodeTypeTrigger {
			return node, true
		}
	}

	return nil, false
}

// IsExecutable reports whether triggers may start new executions.
func (j *Journey) IsExecutable() bool {
	return j.Status == JourneyStatusActive
}

// Clone returns a deep copy of the journey, used to snapshot a definition version.
func (j *Journey) Clone() (*Journey, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot journey %s: %w", j.ID, err)
	}

	var clone Journey

	err = json.Unmarshal(data, &clone)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot journey %s: %w", j.ID, err)
	}

	return &clone, nil
}
