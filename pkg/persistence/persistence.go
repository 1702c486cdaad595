// Package persistence provides the storage abstraction for journeys, executions, delivery events,
// approvals and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/journeys/pkg/models"
)

type JourneyRepository interface {
	// Journeys lists journeys, filtered by status unless status is empty.
	Journeys(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error)
	JourneyByID(ctx context.Context, id string) (*models.Journey, error)
	SaveJourney(ctx context.Context, journey *models.Journey) error
	DeleteJourney(ctx context.Context, id string) error

	// SaveJourneyVersion stores an immutable snapshot keyed by journey id and version.
	SaveJourneyVersion(ctx context.Context, journey *models.Journey) error
	JourneyVersion(ctx context.Context, id string, version int) (*models.Journey, error)
}

type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.JourneyExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.JourneyExecution, error)
	ExecutionsByJourney(ctx context.Context, journeyID string) ([]*models.JourneyExecution, error)
	// ActiveExecution returns the active execution of a customer in a journey, or nil when none.
	ActiveExecution(ctx context.Context, journeyID, customerID string) (*models.JourneyExecution, error)
	ActiveExecutions(ctx context.Context) ([]*models.JourneyExecution, error)
}

type DeliveryRepository interface {
	SaveDeliveryEvent(ctx context.Context, event *models.DeliveryEvent) error
	DeliveryEventsByJourney(ctx context.Context, journeyID string) ([]*models.DeliveryEvent, error)
}

type ApprovalRepository interface {
	SaveApproval(ctx context.Context, request *models.ApprovalRequest) error
	ApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	// Approvals lists approval requests, filtered by status unless status is empty.
	Approvals(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error)
}

type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	ScheduleByJourney(ctx context.Context, journeyID string) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, journeyID string) error
	// DueSchedules returns active schedules whose next activation is at or before now.
	DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)
}

type Persistence interface {
	JourneyRepository
	ExecutionRepository
	DeliveryRepository
	ApprovalRepository
	ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
