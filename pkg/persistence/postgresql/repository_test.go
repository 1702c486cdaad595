package postgresql_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/dukex/journeys/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPersistence(t *testing.T) (*postgresql.Persistence, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	return postgresql.NewPersistenceWithDB(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

var journeyRowColumns = []string{
	"id", "name", "description", "status", "version", "trigger", "custom_variables", "analytics",
	"created_by", "created_at", "updated_at", "published_at",
}

func TestJourneyRepository_JourneyByID(t *testing.T) {
	p, mock := newMockPersistence(t)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM journeys").
		WithArgs("onboarding").
		WillReturnRows(sqlmock.NewRows(journeyRowColumns).AddRow(
			"onboarding", "Onboarding", "", "active", 2,
			[]byte(`{"type":"event","config":{"event_name":"account_opened"}}`),
			[]byte(`{"plan":"Plan name"}`), nil,
			"tester", created, created, created,
		))

	mock.ExpectQuery("FROM journey_nodes").
		WithArgs("onboarding").
		WillReturnRows(sqlmock.NewRows([]string{"id", "node_type", "name", "config", "next", "position_x", "position_y"}).
			AddRow("trigger", "trigger", "Start", []byte(`{}`), []byte(`["wait"]`), 250.0, 0.0).
			AddRow("wait", "wait", "Wait", []byte(`{"duration":"24h"}`), []byte(`["end"]`), 250.0, 120.0).
			AddRow("end", "end", "End", nil, nil, 250.0, 240.0))

	journey, err := p.JourneyByID(t.Context(), "onboarding")
	require.NoError(t, err)

	assert.Equal(t, models.JourneyStatusActive, journey.Status)
	assert.Equal(t, 2, journey.Version)
	assert.Equal(t, "account_opened", journey.Trigger.Config.EventName)
	assert.Equal(t, "Plan name", journey.CustomVariables["plan"])
	require.NotNil(t, journey.PublishedAt)
	require.Len(t, journey.Nodes, 3)
	assert.Equal(t, &models.WaitConfig{Duration: "24h"}, journey.Nodes[1].Config)
	assert.Equal(t, []string{"end"}, journey.Nodes[1].Next)
	assert.Equal(t, &models.EndConfig{}, journey.Nodes[2].Config)
	assert.Empty(t, journey.Nodes[2].Next)
}

func TestJourneyRepository_JourneyByIDNotFound(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectQuery("FROM journeys").WithArgs("missing").WillReturnRows(sqlmock.NewRows(journeyRowColumns))

	_, err := p.JourneyByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
}

func TestJourneyRepository_SaveJourney(t *testing.T) {
	p, mock := newMockPersistence(t)

	journey := &models.Journey{
		ID:     "j1",
		Name:   "Welcome",
		Status: models.JourneyStatusDraft,
		Trigger: models.JourneyTrigger{
			Type: models.TriggerTypeManual,
		},
		Nodes: []*models.JourneyNode{
			{ID: "t", Type: models.NodeTypeTrigger, Config: &models.TriggerNodeConfig{}, Next: []string{"e"}},
			{ID: "e", Type: models.NodeTypeEnd, Config: &models.EndConfig{}},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO journeys").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM journey_nodes").WithArgs("j1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO journey_nodes").
		WithArgs("j1", "t", 0, models.NodeTypeTrigger, "", []byte(`{}`), []byte(`["e"]`), 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO journey_nodes").
		WithArgs("j1", "e", 1, models.NodeTypeEnd, "", []byte(`{}`), []byte(`null`), 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.SaveJourney(t.Context(), journey)
	require.NoError(t, err)
	assert.False(t, journey.CreatedAt.IsZero())
}

func TestJourneyRepository_SaveJourneyRollsBack(t *testing.T) {
	p, mock := newMockPersistence(t)

	journey := &models.Journey{
		ID:     "j1",
		Name:   "Welcome",
		Status: models.JourneyStatusDraft,
		Nodes: []*models.JourneyNode{
			{ID: "e", Type: models.NodeTypeEnd, Config: &models.EndConfig{}},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO journeys").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM journey_nodes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO journey_nodes").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := p.SaveJourney(t.Context(), journey)
	require.Error(t, err)

	var journeyErr *persistence.JourneyError
	assert.ErrorAs(t, err, &journeyErr)
}

func TestJourneyRepository_DeleteJourneyNotFound(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectExec("UPDATE journeys SET deleted_at").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.DeleteJourney(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
}

func TestJourneyRepository_JourneyVersion(t *testing.T) {
	p, mock := newMockPersistence(t)

	snapshot, err := json.Marshal(&models.Journey{ID: "j1", Name: "Snapshot", Version: 3})
	require.NoError(t, err)

	mock.ExpectQuery("FROM journey_versions").WithArgs("j1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"definition"}).AddRow(snapshot))
	mock.ExpectQuery("FROM journey_versions").WithArgs("j1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"definition"}))

	journey, err := p.JourneyVersion(t.Context(), "j1", 3)
	require.NoError(t, err)
	assert.Equal(t, "Snapshot", journey.Name)

	_, err = p.JourneyVersion(t.Context(), "j1", 4)
	assert.ErrorIs(t, err, persistence.ErrJourneyVersionNotFound)
}

var executionRowColumns = []string{
	"id", "journey_id", "journey_version", "customer_id", "current_node_id", "status", "history", "context",
	"failure_reason", "exit_reason", "started_at", "completed_at",
}

func TestExecutionRepository_ExecutionByID(t *testing.T) {
	p, mock := newMockPersistence(t)
	started := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM journey_executions").WithArgs("exec-1").
		WillReturnRows(sqlmock.NewRows(executionRowColumns).AddRow(
			"exec-1", "j1", 1, "cust-1", "wait", "active",
			[]byte(`[{"node_id":"trigger","node_type":"trigger","entered_at":"2026-01-05T10:00:00Z","outcome":"completed"}]`),
			[]byte(`{"customer":{"balance":10}}`),
			"", "", started, nil,
		))

	execution, err := p.ExecutionByID(t.Context(), "exec-1")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusActive, execution.Status)
	require.Len(t, execution.History, 1)
	assert.Equal(t, models.OutcomeCompleted, execution.History[0].Outcome)
	assert.Equal(t, map[string]any{"balance": 10.0}, execution.Context["customer"])
	assert.Nil(t, execution.CompletedAt)
}

func TestExecutionRepository_ActiveExecutionNone(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectQuery("status = 'active'").WithArgs("j1", "cust-1").
		WillReturnRows(sqlmock.NewRows(executionRowColumns))

	execution, err := p.ActiveExecution(t.Context(), "j1", "cust-1")
	require.NoError(t, err)
	assert.Nil(t, execution)
}

func TestExecutionRepository_SaveExecution(t *testing.T) {
	p, mock := newMockPersistence(t)

	execution := &models.JourneyExecution{
		ID:         "exec-1",
		JourneyID:  "j1",
		CustomerID: "cust-1",
		Status:     models.ExecutionStatusActive,
		StartedAt:  time.Now(),
	}

	mock.ExpectExec("INSERT INTO journey_executions").
		WithArgs("exec-1", "j1", 0, "cust-1", "", models.ExecutionStatusActive, []byte(`[]`), []byte(`{}`),
			"", "", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.SaveExecution(t.Context(), execution)
	require.NoError(t, err)
}

func TestExecutionRepository_SaveExecutionAfterFinish(t *testing.T) {
	p, mock := newMockPersistence(t)

	execution := &models.JourneyExecution{
		ID:            "exec-1",
		JourneyID:     "j1",
		CustomerID:    "cust-1",
		CurrentNodeID: "push",
		Status:        models.ExecutionStatusActive,
		StartedAt:     time.Now(),
	}

	mock.ExpectExec(`WHERE journey_executions.status = 'active'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.SaveExecution(t.Context(), execution)
	require.ErrorIs(t, err, persistence.ErrExecutionFinished)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepository_DeliveryEventsByJourney(t *testing.T) {
	p, mock := newMockPersistence(t)
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM delivery_events").WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "journey_id", "execution_id", "node_id", "customer_id", "channel", "event_type", "message_id", "occurred_at",
		}).
			AddRow("d1", "j1", "e1", "push", "c1", "push", "sent", "m1", at).
			AddRow("d2", "j1", "e1", "push", "c1", "push", "opened", "m1", at.Add(time.Minute)))

	events, err := p.DeliveryEventsByJourney(t.Context(), "j1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.ChannelPush, events[0].Channel)
	assert.Equal(t, models.DeliveryOpened, events[1].Type)
}

func TestApprovalRepository_ApprovalByIDNotFound(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectQuery("FROM approval_requests").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := p.ApprovalByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrApprovalNotFound)
}

func TestScheduleRepository_DueSchedules(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM journey_schedules").WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "journey_id", "cron_expression", "segment_id", "next_due_at", "last_run_at", "active", "created_at", "updated_at",
		}).AddRow("s1", "j1", "0 9 * * *", "vip", now, nil, true, now, now))

	schedules, err := p.DueSchedules(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "vip", schedules[0].SegmentID)
	assert.Nil(t, schedules[0].LastRunAt)
}

func TestPersistence_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	p := postgresql.NewPersistenceWithDB(db, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mock.ExpectPing()
	assert.NoError(t, p.HealthCheck(t.Context()))

	mock.ExpectClose()
	assert.NoError(t, p.Close(t.Context()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
