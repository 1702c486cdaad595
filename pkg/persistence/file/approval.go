package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// SaveApproval saves an approval request.
func (fp *Persistence) SaveApproval(_ context.Context, request *models.ApprovalRequest) error {
	err := fp.approvals.save(request.ID, request)
	if err != nil {
		return fmt.Errorf("failed to save approval %s: %w", request.ID, err)
	}

	return nil
}

// ApprovalByID returns an approval request by its ID.
func (fp *Persistence) ApprovalByID(_ context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := fp.approvals.load(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("approval %s: %w", id, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load approval %s: %w", id, err)
	}

	return request, nil
}

// Approvals lists approval requests, oldest first, filtered by status unless status is empty.
func (fp *Persistence) Approvals(_ context.Context, status models.ApprovalStatus) ([]*models.ApprovalRequest, error) {
	requests, err := fp.approvals.all("")
	if err != nil {
		return nil, err
	}

	filtered := requests[:0]

	for _, request := range requests {
		if status == "" || request.Status == status {
			filtered = append(filtered, request)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].RequestedAt.Before(filtered[j].RequestedAt)
	})

	return filtered, nil
}
