package services_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/graph"
	"github.com/dukex/journeys/pkg/mocks"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/dukex/journeys/pkg/persistence/file"
	"github.com/dukex/journeys/pkg/services"
	"github.com/dukex/journeys/pkg/testutil"
	"github.com/dukex/journeys/pkg/validation"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newJourneyService(t *testing.T) (*services.Journey, *file.Persistence, *mocks.MockEventBus) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	service := services.NewJourney(store, bus, clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))

	return service, store, bus
}

func draft() *models.Journey {
	journey := testutil.OnboardingJourney()
	journey.ID = ""
	journey.Status = ""

	return journey
}

func TestJourney_Create(t *testing.T) {
	service, store, _ := newJourneyService(t)

	created, err := service.Create(t.Context(), draft())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.JourneyStatusDraft, created.Status)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, now, created.CreatedAt)

	stored, err := store.JourneyByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
}

func TestJourney_CreateToleratesIncompleteGraph(t *testing.T) {
	service, _, _ := newJourneyService(t)

	created, err := service.Create(t.Context(), &models.Journey{Name: "Work in progress"})
	require.NoError(t, err)
	assert.Empty(t, created.Nodes)

	_, err = service.Create(t.Context(), &models.Journey{})
	require.ErrorIs(t, err, services.ErrValidationFailed, "name is required")
	assert.True(t, services.IsValidationError(err))
}

func TestJourney_PublishRejectsInvalidJourney(t *testing.T) {
	service, store, bus := newJourneyService(t)

	created, err := service.Create(t.Context(), &models.Journey{Name: "Empty"})
	require.NoError(t, err)

	_, err = service.Publish(t.Context(), created.ID)
	require.ErrorIs(t, err, services.ErrValidationFailed)

	var errs validation.Errors
	require.True(t, errors.As(err, &errs))
	assert.True(t, errs.HasCode(validation.CodeMissingTrigger))

	stored, err := store.JourneyByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusDraft, stored.Status, "failed publish leaves the journey untouched")
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestJourney_Lifecycle(t *testing.T) {
	service, store, bus := newJourneyService(t)

	created, err := service.Create(t.Context(), draft())
	require.NoError(t, err)

	published, err := service.Publish(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, published.Status)
	require.NotNil(t, published.PublishedAt)

	snapshot, err := store.JourneyVersion(t.Context(), created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, snapshot.Status)

	bus.AssertCalled(t, "Publish", mock.Anything, created.ID, mock.MatchedBy(func(event events.JourneyPublished) bool {
		return event.Status == models.JourneyStatusActive && event.Version == 1
	}))

	_, err = service.Publish(t.Context(), created.ID)
	require.ErrorIs(t, err, services.ErrInvalidTransition)
	assert.True(t, services.IsConflictError(err))

	paused, err := service.Pause(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusPaused, paused.Status)

	err = service.Delete(t.Context(), created.ID)
	require.ErrorIs(t, err, services.ErrCannotDeleteActive)

	resumed, err := service.Resume(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, resumed.Status)

	archived, err := service.Archive(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusArchived, archived.Status)

	_, err = service.Update(t.Context(), created.ID, draft())
	require.ErrorIs(t, err, services.ErrCannotModifyArchived)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.True(t, persistence.IsNotFound(err))

	_, err = service.Version(t.Context(), created.ID, 1)
	require.NoError(t, err, "snapshots outlive the journey")
}

func TestJourney_UpdateVersioning(t *testing.T) {
	service, store, _ := newJourneyService(t)

	created, err := service.Create(t.Context(), draft())
	require.NoError(t, err)

	_, err = service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	renamed := draft()
	renamed.Name = "Onboarding v2"
	renamed.Nodes[0].Position = models.Position{X: 10, Y: 10}

	updated, err := service.Update(t.Context(), created.ID, renamed)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version, "metadata edits keep the version")
	assert.Equal(t, models.JourneyStatusActive, updated.Status)

	edited := draft()
	wait, _ := edited.NodeByID("wait")
	wait.Config.(*models.WaitConfig).Duration = "48h"

	updated, err = service.Update(t.Context(), created.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	v1, err := store.JourneyVersion(t.Context(), created.ID, 1)
	require.NoError(t, err)
	v1Wait, _ := v1.NodeByID("wait")
	assert.Equal(t, "24h", v1Wait.Config.(*models.WaitConfig).Duration, "running executions keep their version")

	v2, err := store.JourneyVersion(t.Context(), created.ID, 2)
	require.NoError(t, err)
	v2Wait, _ := v2.NodeByID("wait")
	assert.Equal(t, "48h", v2Wait.Config.(*models.WaitConfig).Duration)

	broken := draft()
	broken.Nodes = broken.Nodes[:2]

	_, err = service.Update(t.Context(), created.ID, broken)
	require.ErrorIs(t, err, services.ErrValidationFailed, "active journeys must stay valid")
}

func TestJourney_PausedEditValidatedOnResume(t *testing.T) {
	service, _, _ := newJourneyService(t)

	created, err := service.Create(t.Context(), draft())
	require.NoError(t, err)

	_, err = service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	_, err = service.Pause(t.Context(), created.ID)
	require.NoError(t, err)

	broken := draft()
	broken.Nodes = broken.Nodes[:2]

	updated, err := service.Update(t.Context(), created.ID, broken)
	require.NoError(t, err, "paused journeys accept work in progress")
	assert.Equal(t, models.JourneyStatusPaused, updated.Status)

	_, err = service.Resume(t.Context(), created.ID)
	require.ErrorIs(t, err, services.ErrValidationFailed)

	_, err = service.Update(t.Context(), created.ID, draft())
	require.NoError(t, err)

	resumed, err := service.Resume(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, resumed.Status)
}

func TestJourney_ApplyEdit(t *testing.T) {
	service, _, _ := newJourneyService(t)

	created, err := service.Create(t.Context(), draft())
	require.NoError(t, err)

	moved, err := service.ApplyEdit(t.Context(), created.ID, graph.MoveNode{NodeID: "wait", Position: models.Position{X: 400, Y: 90}})
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Version)

	wait, _ := moved.NodeByID("wait")
	assert.Equal(t, models.Position{X: 400, Y: 90}, wait.Position)

	removed, err := service.ApplyEdit(t.Context(), created.ID, graph.RemoveNode{NodeID: "sms"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed.Version)

	_, found := removed.NodeByID("sms")
	assert.False(t, found)

	_, err = service.ApplyEdit(t.Context(), created.ID, graph.RemoveNode{NodeID: "missing"})
	require.ErrorIs(t, err, graph.ErrNodeNotFound)
	assert.True(t, services.IsNotFoundError(err))

	g, err := service.Graph(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 5)
}

func TestJourney_Variables(t *testing.T) {
	service, _, _ := newJourneyService(t)

	journey := draft()
	journey.CustomVariables = map[string]string{"promo_code": "WELCOME10"}

	created, err := service.Create(t.Context(), journey)
	require.NoError(t, err)

	variables, err := service.Variables(t.Context(), created.ID)
	require.NoError(t, err)

	names := make([]string, 0, len(variables))
	for _, variable := range variables {
		names = append(names, variable.Name)
	}

	assert.Contains(t, names, "first_name")
	assert.Equal(t, "promo_code", names[len(names)-1])
}

func TestJourney_ScheduleFollowsStatus(t *testing.T) {
	service, _, _ := newJourneyService(t)

	journey := draft()
	journey.Trigger = models.JourneyTrigger{
		Type: models.TriggerTypeSchedule,
		Config: models.TriggerConfig{Schedule: &models.ScheduleConfig{
			Frequency: models.ScheduleFrequencyDaily,
			Time:      "10:00",
			SegmentID: "all",
		}},
	}

	created, err := service.Create(t.Context(), journey)
	require.NoError(t, err)

	_, err = service.Schedule(t.Context(), created.ID)
	assert.True(t, persistence.IsNotFound(err), "drafts are not scheduled")

	_, err = service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	schedule, err := service.Schedule(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), schedule.NextDueAt)

	_, err = service.Pause(t.Context(), created.ID)
	require.NoError(t, err)

	_, err = service.Schedule(t.Context(), created.ID)
	assert.True(t, persistence.IsNotFound(err))
}

func TestJourney_ListRejectsUnknownStatus(t *testing.T) {
	service, _, _ := newJourneyService(t)

	_, err := service.List(t.Context(), "deleted")
	require.ErrorIs(t, err, services.ErrInvalidStatus)

	_, err = service.Create(t.Context(), draft())
	require.NoError(t, err)

	drafts, err := service.List(t.Context(), models.JourneyStatusDraft)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}
