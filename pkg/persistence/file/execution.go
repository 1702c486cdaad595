package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// SaveExecution saves an execution to the file system.
func (fp *Persistence) SaveExecution(_ context.Context, execution *models.JourneyExecution) error {
	if execution.Context == nil {
		execution.Context = make(map[string]any)
	}

	if execution.History == nil {
		execution.History = []models.HistoryEntry{}
	}

	// A finished execution is final; a late writer must not revive it.
	err := fp.executions.saveIf(execution.ID, execution, func(stored *models.JourneyExecution) error {
		if stored != nil && stored.Status.IsTerminal() {
			return persistence.ErrExecutionFinished
		}

		return nil
	})
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

// ExecutionByID returns an execution by its ID.
func (fp *Persistence) ExecutionByID(_ context.Context, id string) (*models.JourneyExecution, error) {
	execution, err := fp.executions.load(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return execution, nil
}

// ExecutionsByJourney returns the executions of a journey ordered by start time.
func (fp *Persistence) ExecutionsByJourney(_ context.Context, journeyID string) ([]*models.JourneyExecution, error) {
	return fp.filterExecutions(func(execution *models.JourneyExecution) bool {
		return execution.JourneyID == journeyID
	})
}

// ActiveExecution returns the active execution of the customer in the journey, or nil.
func (fp *Persistence) ActiveExecution(_ context.Context, journeyID, customerID string) (*models.JourneyExecution, error) {
	executions, err := fp.filterExecutions(func(execution *models.JourneyExecution) bool {
		return execution.JourneyID == journeyID &&
			execution.CustomerID == customerID &&
			execution.Status == models.ExecutionStatusActive
	})
	if err != nil {
		return nil, err
	}

	if len(executions) == 0 {
		return nil, nil
	}

	return executions[0], nil
}

// ActiveExecutions returns every non-terminal execution, used to resume after a restart.
func (fp *Persistence) ActiveExecutions(_ context.Context) ([]*models.JourneyExecution, error) {
	return fp.filterExecutions(func(execution *models.JourneyExecution) bool {
		return execution.Status == models.ExecutionStatusActive
	})
}

func (fp *Persistence) filterExecutions(keep func(*models.JourneyExecution) bool) ([]*models.JourneyExecution, error) {
	executions, err := fp.executions.all("")
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.JourneyExecution, 0, len(executions))

	for _, execution := range executions {
		if keep(execution) {
			filtered = append(filtered, execution)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.Before(filtered[j].StartedAt)
	})

	return filtered, nil
}
