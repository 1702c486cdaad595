package mocks

import (
	"context"

	"github.com/dukex/journeys/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockExecutor is a mock of the engine operations used by triggers and services.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Start(
	ctx context.Context,
	journey *models.Journey,
	customerID string,
	trigger map[string]any,
) (*models.JourneyExecution, error) {
	args := m.Called(ctx, journey, customerID, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.JourneyExecution), args.Error(1)
}

func (m *MockExecutor) DeliverEvent(ctx context.Context, customerID, eventName string, payload map[string]any) int {
	args := m.Called(ctx, customerID, eventName, payload)

	return args.Int(0)
}

func (m *MockExecutor) Cancel(ctx context.Context, executionID, reason string) (*models.JourneyExecution, error) {
	args := m.Called(ctx, executionID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.JourneyExecution), args.Error(1)
}
