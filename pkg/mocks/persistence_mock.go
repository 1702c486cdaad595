package mocks

import (
	"context"

	"github.com/dukex/journeys/pkg/customers"
	"github.com/dukex/journeys/pkg/dispatch"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockApprovalRepository is a mock implementation of persistence.ApprovalRepository interface.
type MockApprovalRepository struct {
	mock.Mock
}

var _ persistence.ApprovalRepository = (*MockApprovalRepository)(nil)

func (m *MockApprovalRepository) SaveApproval(ctx context.Context, request *models.ApprovalRequest) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}

func (m *MockApprovalRepository) ApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ApprovalRequest), args.Error(1)
}

func (m *MockApprovalRepository) Approvals(ctx context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalRequest), args.Error(1)
}

// MockDispatcher is a mock implementation of dispatch.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

var _ dispatch.Dispatcher = (*MockDispatcher)(nil)

func (m *MockDispatcher) Send(ctx context.Context, msg *dispatch.Message) (*dispatch.Result, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*dispatch.Result), args.Error(1)
}

// MockCustomerProvider is a mock implementation of customers.Provider interface.
type MockCustomerProvider struct {
	mock.Mock
}

var _ customers.Provider = (*MockCustomerProvider)(nil)

func (m *MockCustomerProvider) Attributes(ctx context.Context, customerID string) (map[string]any, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}
