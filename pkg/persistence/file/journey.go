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

// Journeys returns all journeys, newest first, filtered by status unless status is empty.
func (fp *Persistence) Journeys(_ context.Context, status models.JourneyStatus) ([]*models.Journey, error) {
	journeys, err := fp.journeys.all("")
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Journey, 0, len(journeys))

	for _, journey := range journeys {
		if status == "" || journey.Status == status {
			filtered = append(filtered, journey)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return filtered, nil
}

// JourneyByID returns a journey by its ID.
func (fp *Persistence) JourneyByID(_ context.Context, id string) (*models.Journey, error) {
	journey, err := fp.journeys.load(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewJourneyError("JourneyByID", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, persistence.NewJourneyError("JourneyByID", id, err)
	}

	return journey, nil
}

// SaveJourney saves a journey, stamping its timestamps.
func (fp *Persistence) SaveJourney(_ context.Context, journey *models.Journey) error {
	now := time.Now().UTC()
	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	err := fp.journeys.save(journey.ID, journey)
	if err != nil {
		return persistence.NewJourneyError("SaveJourney", journey.ID, err)
	}

	return nil
}

// DeleteJourney removes a journey. Its version snapshots are kept for in-flight executions.
func (fp *Persistence) DeleteJourney(_ context.Context, id string) error {
	err := fp.journeys.delete(id)
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewJourneyError("DeleteJourney", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return persistence.NewJourneyError("DeleteJourney", id, err)
	}

	return nil
}

// SaveJourneyVersion stores the snapshot of the journey at its current version.
func (fp *Persistence) SaveJourneyVersion(_ context.Context, journey *models.Journey) error {
	err := validateID(journey.ID)
	if err == nil {
		err = fp.versions.save(versionKey(journey.ID, journey.Version), journey)
	}

	if err != nil {
		return &persistence.JourneyError{Op: "SaveJourneyVersion", JourneyID: journey.ID, Version: journey.Version, Err: err}
	}

	return nil
}

// JourneyVersion returns the snapshot of a journey at the given version.
func (fp *Persistence) JourneyVersion(_ context.Context, id string, version int) (*models.Journey, error) {
	err := validateID(id)
	if err != nil {
		return nil, &persistence.JourneyError{Op: "JourneyVersion", JourneyID: id, Version: version, Err: err}
	}

	journey, err := fp.versions.load(versionKey(id, version))
	if errors.Is(err, fs.ErrNotExist) {
		err = persistence.ErrJourneyVersionNotFound
	}

	if err != nil {
		return nil, &persistence.JourneyError{Op: "JourneyVersion", JourneyID: id, Version: version, Err: err}
	}

	return journey, nil
}

func versionKey(id string, version int) string {
	return fmt.Sprintf("%s@v%d", id, version)
}
