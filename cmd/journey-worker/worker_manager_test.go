package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/journeys/pkg/channels/gochannel"
	"github.com/dukex/journeys/pkg/customers"
	"github.com/dukex/journeys/pkg/dispatch"
	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence/file"
	"github.com/dukex/journeys/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerHarness struct {
	store  *file.Persistence
	bus    eventbus.EventBus
	worker *WorkerManager
}

func newWorkerHarness(t *testing.T) *workerHarness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	directory := customers.NewStaticProvider()
	directory.Put("ana", map[string]any{"first_name": "Ana"})

	store := file.NewPersistence(t.TempDir())

	worker := NewWorkerManager("worker-test", WorkerConfig{
		Persistence: store,
		EventBus:    bus,
		Customers:   directory,
		Dispatcher:  dispatch.NewLogDispatcher(logger),
		Clock:       clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)),
	}, logger)
	t.Cleanup(worker.Stop)

	return &workerHarness{store: store, bus: bus, worker: worker}
}

// seedJourney stores an active journey that waits a day after the customer opens an account.
func (h *workerHarness) seedJourney(t *testing.T) *models.Journey {
	t.Helper()

	journey := testutil.CreateTestJourney(
		testutil.TriggerNode("trigger", "wait"),
		testutil.WaitNode("wait", "24h", "end"),
		testutil.EndNode("end"),
	)
	journey.Trigger = models.JourneyTrigger{
		Type:   models.TriggerTypeEvent,
		Config: models.TriggerConfig{EventName: "account_opened"},
	}

	require.NoError(t, h.store.SaveJourney(t.Context(), journey))
	require.NoError(t, h.store.SaveJourneyVersion(t.Context(), journey))

	return journey
}

func (h *workerHarness) activeExecution(t *testing.T, journeyID string) *models.JourneyExecution {
	t.Helper()

	var execution *models.JourneyExecution

	require.Eventually(t, func() bool {
		found, err := h.store.ActiveExecution(t.Context(), journeyID, "ana")
		execution = found

		return err == nil && found != nil
	}, 5*time.Second, 10*time.Millisecond)

	return execution
}

func TestWorkerManager_CustomerEventStartsJourney(t *testing.T) {
	h := newWorkerHarness(t)
	journey := h.seedJourney(t)

	require.NoError(t, h.worker.Setup(t.Context()))

	err := h.bus.Publish(t.Context(), "ana", events.CustomerEvent{
		BaseEvent:  events.NewBaseEvent(events.CustomerEventType, ""),
		CustomerID: "ana",
		Name:       "account_opened",
	})
	require.NoError(t, err)

	execution := h.activeExecution(t, journey.ID)
	assert.Equal(t, journey.Version, execution.JourneyVersion)
	assert.Equal(t, "account_opened", execution.Context["trigger"].(map[string]any)["event_name"])
}

func TestWorkerManager_ServesStartAndCancelRequests(t *testing.T) {
	h := newWorkerHarness(t)
	journey := h.seedJourney(t)

	require.NoError(t, h.worker.Setup(t.Context()))

	err := h.bus.Publish(t.Context(), "ana", events.ExecutionStartRequested{
		BaseEvent:  events.NewBaseEvent(events.ExecutionStartRequestedType, journey.ID),
		CustomerID: "ana",
		Payload:    map[string]any{"source": "support"},
	})
	require.NoError(t, err)

	execution := h.activeExecution(t, journey.ID)

	err = h.bus.Publish(t.Context(), "ana", events.ExecutionCancelRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelRequestedType, journey.ID),
		ExecutionID: execution.ID,
		CustomerID:  "ana",
		Reason:      "support ticket",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := h.store.ExecutionByID(t.Context(), execution.ID)

		return err == nil && stored.Status == models.ExecutionStatusExited
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerManager_RecoversActiveExecutions(t *testing.T) {
	h := newWorkerHarness(t)
	journey := h.seedJourney(t)

	parked := &models.JourneyExecution{
		ID:             "exec-recovered",
		JourneyID:      journey.ID,
		JourneyVersion: journey.Version,
		CustomerID:     "ana",
		Status:         models.ExecutionStatusActive,
		CurrentNodeID:  "wait",
		Context:        map[string]any{"customer": map[string]any{"first_name": "Ana"}},
		StartedAt:      time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		History: []models.HistoryEntry{
			{NodeID: "trigger", EnteredAt: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
			{NodeID: "wait", EnteredAt: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, h.store.SaveExecution(t.Context(), parked))

	require.NoError(t, h.worker.Setup(t.Context()))

	assert.Eventually(t, func() bool {
		return h.worker.engine.Running() == 1
	}, 5*time.Second, 10*time.Millisecond)
}
