package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/graph"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/nodeconfig"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/dukex/journeys/pkg/triggers"
	"github.com/dukex/journeys/pkg/validation"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// transitions lists the statuses each journey status may move to.
var transitions = map[models.JourneyStatus][]models.JourneyStatus{
	models.JourneyStatusDraft:     {models.JourneyStatusActive, models.JourneyStatusArchived},
	models.JourneyStatusActive:    {models.JourneyStatusPaused, models.JourneyStatusCompleted, models.JourneyStatusArchived},
	models.JourneyStatusPaused:    {models.JourneyStatusActive, models.JourneyStatusCompleted, models.JourneyStatusArchived},
	models.JourneyStatusCompleted: {models.JourneyStatusArchived},
	models.JourneyStatusArchived:  {},
}

// Journey manages journey definitions and their lifecycle.
type Journey struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewJourney creates a journey service. publisher may be nil when no worker listens.
func NewJourney(
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Journey {
	return &Journey{
		persistence: persistence,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("module", "journey_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (j *Journey) HealthCheck(ctx context.Context) (string, bool) {
	if j.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := j.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns journeys, filtered by status unless status is empty.
func (j *Journey) List(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error) {
	if status != "" {
		if _, known := transitions[status]; !known {
			return nil, NewValidationError("List", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", status), ErrInvalidStatus)
		}
	}

	journeys, err := j.persistence.Journeys(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	return journeys, nil
}

// FetchByID retrieves a journey by its ID.
func (j *Journey) FetchByID(ctx context.Context, id string) (*models.Journey, error) {
	return j.persistence.JourneyByID(ctx, id)
}

// Version retrieves the immutable snapshot of a journey version.
func (j *Journey) Version(ctx context.Context, id string, version int) (*models.Journey, error) {
	return j.persistence.JourneyVersion(ctx, id, version)
}

// Create stores a new draft journey. Drafts may be incomplete; only their field shapes are checked.
func (j *Journey) Create(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	if journey == nil {
		return nil, NewValidationError("Create", "INVALID_REQUEST", "journey is required", ErrInvalidRequest)
	}

	now := j.clock.Now().UTC()

	if journey.ID == "" {
		journey.ID = uuid.New().String()
	}

	journey.Status = models.JourneyStatusDraft
	journey.Version = 1
	journey.CreatedAt = now
	journey.UpdatedAt = now
	journey.PublishedAt = nil
	journey.Analytics = nil

	err := checkDraft("Create", journey)
	if err != nil {
		return nil, err
	}

	err = j.persistence.SaveJourney(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to create journey: %w", err)
	}

	j.logger.InfoContext(ctx, "Journey created", "journey_id", journey.ID, "name", journey.Name)

	return journey, nil
}

// Update replaces the editable fields of a journey. Structural changes (trigger or nodes) bump the
// version; an active journey must stay valid and gets a new snapshot so new executions run the
// edit while running ones keep their version.
func (j *Journey) Update(ctx context.Context, id string, journey *models.Journey) (*models.Journey, error) {
	existing, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.JourneyStatusArchived {
		return nil, NewConflictError("Update", fmt.Sprintf("journey %s is archived", id), ErrCannotModifyArchived)
	}

	structural, err := structurallyDifferent(existing, journey)
	if err != nil {
		return nil, err
	}

	journey.ID = id
	journey.Status = existing.Status
	journey.Version = existing.Version
	journey.CreatedAt = existing.CreatedAt
	journey.CreatedBy = existing.CreatedBy
	journey.PublishedAt = existing.PublishedAt
	journey.Analytics = existing.Analytics
	journey.UpdatedAt = j.clock.Now().UTC()

	if structural {
		journey.Version++
	}

	return j.save(ctx, "Update", journey, structural)
}

// ApplyEdit applies one editor edit to the journey graph and stores the resulting nodes.
func (j *Journey) ApplyEdit(ctx context.Context, id string, edit graph.Edit) (*models.Journey, error) {
	journey, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, NewConflictError("ApplyEdit", fmt.Sprintf("journey %s is archived", id), ErrCannotModifyArchived)
	}

	store, err := graph.NewStoreFromJourney(journey)
	if err != nil {
		return nil, err
	}

	version, err := store.Apply(edit)
	if err != nil {
		return nil, err
	}

	nodes, err := store.Nodes()
	if err != nil {
		return nil, err
	}

	// Moves and layouts only touch editor metadata.
	structural := edit.Name() != (graph.MoveNode{}).Name() && edit.Name() != (graph.AutoLayout{}).Name()

	journey.Nodes = nodes
	journey.UpdatedAt = j.clock.Now().UTC()

	if structural {
		journey.Version = version
	}

	j.logger.DebugContext(ctx, "Graph edit applied", "journey_id", id, "edit", edit.Name(), "version", journey.Version)

	return j.save(ctx, "ApplyEdit", journey, structural)
}

// Graph returns the editor graph of a journey.
func (j *Journey) Graph(ctx context.Context, id string) (*models.Graph, error) {
	journey, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return graph.ToGraph(journey)
}

// Variables lists the personalization variables available to a journey's messages.
func (j *Journey) Variables(ctx context.Context, id string) ([]models.Variable, error) {
	journey, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return nodeconfig.AvailableVariables(journey.CustomVariables), nil
}

// Validate checks a stored journey without changing it.
func (j *Journey) Validate(ctx context.Context, id string) (validation.Errors, error) {
	journey, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return validation.Validate(journey), nil
}

// Schedule returns the persisted schedule of a schedule-triggered journey.
func (j *Journey) Schedule(ctx context.Context, id string) (*models.Schedule, error) {
	return j.persistence.ScheduleByJourney(ctx, id)
}

// Publish makes a draft or paused journey active. Invalid journeys are rejected with their
// validation errors.
func (j *Journey) Publish(ctx context.Context, id string) (*models.Journey, error) {
	return j.transition(ctx, "Publish", id, models.JourneyStatusActive)
}

// Pause stops triggers from starting new executions; running executions continue.
func (j *Journey) Pause(ctx context.Context, id string) (*models.Journey, error) {
	return j.transition(ctx, "Pause", id, models.JourneyStatusPaused)
}

// Resume re-activates a paused journey.
func (j *Journey) Resume(ctx context.Context, id string) (*models.Journey, error) {
	return j.transition(ctx, "Resume", id, models.JourneyStatusActive)
}

// Complete closes a journey to new entries for good.
func (j *Journey) Complete(ctx context.Context, id string) (*models.Journey, error) {
	return j.transition(ctx, "Complete", id, models.JourneyStatusCompleted)
}

// Archive retires a journey; archived journeys are read-only.
func (j *Journey) Archive(ctx context.Context, id string) (*models.Journey, error) {
	return j.transition(ctx, "Archive", id, models.JourneyStatusArchived)
}

// Delete removes a journey that is not live. Version snapshots stay so past executions remain readable.
func (j *Journey) Delete(ctx context.Context, id string) error {
	existing, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return err
	}

	if existing.Status == models.JourneyStatusActive || existing.Status == models.JourneyStatusPaused {
		return NewConflictError("Delete", fmt.Sprintf("journey %s is %s", id, existing.Status), ErrCannotDeleteActive)
	}

	err = j.persistence.DeleteSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete journey schedule: %w", err)
	}

	err = j.persistence.DeleteJourney(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete journey: %w", err)
	}

	j.logger.InfoContext(ctx, "Journey deleted", "journey_id", id)

	return nil
}

func (j *Journey) transition(ctx context.Context, op, id string, target models.JourneyStatus) (*models.Journey, error) {
	journey, err := j.persistence.JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(transitions[journey.Status], target) {
		return nil, NewConflictError(op,
			fmt.Sprintf("journey %s cannot move from %s to %s", id, journey.Status, target),
			ErrInvalidTransition)
	}

	now := j.clock.Now().UTC()
	journey.Status = target
	journey.UpdatedAt = now

	if target == models.JourneyStatusActive {
		errs := validation.Validate(journey)
		if !errs.OK() {
			return nil, &ServiceError{Op: op, Code: "VALIDATION_FAILED", Err: fmt.Errorf("%w: %w", ErrValidationFailed, errs)}
		}

		if journey.PublishedAt == nil {
			journey.PublishedAt = &now
		}

		// Executions load the snapshot of the version they start under.
		err = j.persistence.SaveJourneyVersion(ctx, journey)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot journey: %w", err)
		}
	}

	err = j.persistence.SaveJourney(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	err = triggers.SyncSchedule(ctx, j.persistence, journey, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sync journey schedule: %w", err)
	}

	j.announce(ctx, journey)

	j.logger.InfoContext(ctx, "Journey status changed", "journey_id", id, "status", target, "version", journey.Version)

	return journey, nil
}

func (j *Journey) save(ctx context.Context, op string, journey *models.Journey, structural bool) (*models.Journey, error) {
	// Paused journeys may be edited into an invalid state; Resume validates them again.
	live := journey.Status == models.JourneyStatusActive

	if live {
		errs := validation.Validate(journey)
		if !errs.OK() {
			return nil, &ServiceError{Op: op, Code: "VALIDATION_FAILED", Err: fmt.Errorf("%w: %w", ErrValidationFailed, errs)}
		}
	} else {
		err := checkDraft(op, journey)
		if err != nil {
			return nil, err
		}
	}

	if live && structural {
		err := j.persistence.SaveJourneyVersion(ctx, journey)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot journey: %w", err)
		}
	}

	err := j.persistence.SaveJourney(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	if live {
		err = triggers.SyncSchedule(ctx, j.persistence, journey, journey.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to sync journey schedule: %w", err)
		}

		if structural {
			j.announce(ctx, journey)
		}
	}

	return journey, nil
}

// announce tells workers to refresh their trigger index.
func (j *Journey) announce(ctx context.Context, journey *models.Journey) {
	if j.publisher == nil {
		return
	}

	event := events.JourneyPublished{
		BaseEvent: events.NewBaseEvent(events.JourneyPublishedType, journey.ID),
		Version:   journey.Version,
		Status:    journey.Status,
	}

	err := j.publisher.Publish(ctx, journey.ID, event)
	if err != nil {
		j.logger.WarnContext(ctx, "Failed to announce journey change", "journey_id", journey.ID, "error", err)
	}
}

// checkDraft rejects drafts with malformed journey fields or clashing node ids but tolerates an
// unfinished graph.
func checkDraft(op string, journey *models.Journey) error {
	var shape validation.Errors

	for _, fieldErr := range validation.Validate(journey) {
		graphField := strings.HasPrefix(fieldErr.Field, "nodes") || strings.HasPrefix(fieldErr.Field, "trigger")
		if fieldErr.Code == validation.CodeDuplicateID || !graphField {
			shape = append(shape, fieldErr)
		}
	}

	if !shape.OK() {
		return &ServiceError{Op: op, Code: "VALIDATION_FAILED", Err: fmt.Errorf("%w: %w", ErrValidationFailed, shape)}
	}

	return nil
}

// nodeShape is the part of a node that affects execution; names and positions are editor metadata.
type nodeShape struct {
	ID     string            `json:"id"`
	Type   models.NodeType   `json:"type"`
	Config models.NodeConfig `json:"config"`
	Next   []string          `json:"next"`
}

func structurallyDifferent(before, after *models.Journey) (bool, error) {
	left, err := structure(before)
	if err != nil {
		return false, err
	}

	right, err := structure(after)
	if err != nil {
		return false, NewValidationError("Update", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	return !bytes.Equal(left, right), nil
}

func structure(journey *models.Journey) ([]byte, error) {
	nodes := make([]nodeShape, 0, len(journey.Nodes))

	for _, node := range journey.Nodes {
		if node == nil {
			continue
		}

		nodes = append(nodes, nodeShape{ID: node.ID, Type: node.Type, Config: node.Config, Next: node.Next})
	}

	return json.Marshal(struct {
		Trigger         models.JourneyTrigger `json:"trigger"`
		Nodes           []nodeShape           `json:"nodes"`
		CustomVariables map[string]string     `json:"custom_variables"`
	}{journey.Trigger, nodes, journey.CustomVariables})
}
