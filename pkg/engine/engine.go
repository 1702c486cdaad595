// Package engine advances customers through journeys.
//
// Every active execution is owned by one goroutine. The goroutine walks the journey snapshot the
// execution started under, persists the execution after every transition and parks on a timer, a
// customer event or an approval decision at suspension points. Whichever resumption source fires
// first wins; the others are discarded.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dukex/journeys/pkg/customers"
	"github.com/dukex/journeys/pkg/dispatch"
	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/lock"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Execution context keys.
const (
	ContextCustomerKey = "customer"
	ContextTriggerKey  = "trigger"
	ContextEventKey    = "event"
)

// ReasonUnsubscribed is the failure reason of executions whose customer opted out.
const ReasonUnsubscribed = "customer unsubscribed"

// DefaultLockTTL bounds how long a start may hold the customer lock.
const DefaultLockTTL = 30 * time.Second

// Store is the persistence the engine needs.
type Store interface {
	persistence.ExecutionRepository
	persistence.DeliveryRepository

	JourneyVersion(ctx context.Context, id string, version int) (*models.Journey, error)
}

// Approvals records approval requests for actions that require one.
type Approvals interface {
	RequestApproval(ctx context.Context, request *models.ApprovalRequest) error
	Get(ctx context.Context, id string) (*models.ApprovalRequest, error)
}

// Suspension names what a parked execution waits for.
type Suspension string

const (
	NotSuspended      Suspension = ""
	SuspendedTimer    Suspension = "timer"
	SuspendedEvent    Suspension = "event"
	SuspendedApproval Suspension = "approval"
)

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRandom sets the source of split draws; tests pass a seeded source.
func WithRandom(random RandomSource) Option {
	return func(e *Engine) { e.random = random }
}

func WithLocker(locker lock.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithApprovals(approvals Approvals) Option {
	return func(e *Engine) { e.approvals = approvals }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithWorkerID(workerID string) Option {
	return func(e *Engine) { e.workerID = workerID }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.lockTTL = ttl }
}

// Engine runs journey executions.
type Engine struct {
	store      Store
	customers  customers.Provider
	dispatcher dispatch.Dispatcher
	approvals  Approvals
	locker     lock.Locker
	publisher  eventbus.EventPublisher
	clock      clockwork.Clock
	tracer     trace.Tracer
	logger     *slog.Logger
	workerID   string
	lockTTL    time.Duration

	randMu sync.Mutex
	random RandomSource

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*run
}

// New creates an engine. Without options it uses the real clock, an in-memory customer lock and
// a time-seeded random source.
func New(
	store Store,
	provider customers.Provider,
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	ctx, stop := context.WithCancel(context.Background())

	seed := uint64(time.Now().UnixNano())

	engine := &Engine{
		store:      store,
		customers:  provider,
		dispatcher: dispatcher,
		clock:      clockwork.NewRealClock(),
		tracer:     otel.Tracer("github.com/dukex/journeys/pkg/engine"),
		logger:     logger.With("module", "journey_engine"),
		lockTTL:    DefaultLockTTL,
		random:     rand.New(rand.NewPCG(seed, seed>>1)),
		ctx:        ctx,
		stop:       stop,
		runs:       make(map[string]*run),
	}

	for _, opt := range opts {
		opt(engine)
	}

	if engine.locker == nil {
		engine.locker = lock.NewMemoryLocker(engine.clock)
	}

	return engine
}

// Start creates an execution of journey for the customer and runs it in the background.
// The journey is snapshotted, so later edits never alter the path of this execution.
func (e *Engine) Start(
	ctx context.Context,
	journey *models.Journey,
	customerID string,
	trigger map[string]any,
) (*models.JourneyExecution, error) {
	if !journey.IsExecutable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJourneyNotExecutable, journey.ID, journey.Status)
	}

	triggerNode, ok := journey.TriggerNode()
	if !ok || len(triggerNode.Next) == 0 {
		return nil, fmt.Errorf("%w: journey %s has no entry node", ErrInvalidJourney, journey.ID)
	}

	definition, err := journey.Clone()
	if err != nil {
		return nil, err
	}

	held, err := e.locker.Obtain(ctx, lock.ExecutionKey(journey.ID, customerID), e.lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: journey %s customer %s", ErrAlreadyActive, journey.ID, customerID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to lock customer %s: %w", customerID, err)
	}

	defer func() {
		err := held.Release(context.WithoutCancel(ctx))
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to release customer lock", "customer_id", customerID, "error", err)
		}
	}()

	active, err := e.store.ActiveExecution(ctx, journey.ID, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active executions: %w", err)
	}

	if active != nil {
		return nil, fmt.Errorf("%w: execution %s", ErrAlreadyActive, active.ID)
	}

	attributes, err := e.customers.Attributes(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %s: %w", customerID, err)
	}

	if trigger == nil {
		trigger = map[string]any{}
	}

	now := e.clock.Now().UTC()
	execution := &models.JourneyExecution{
		ID:             uuid.NewString(),
		JourneyID:      journey.ID,
		JourneyVersion: journey.Version,
		CustomerID:     customerID,
		CurrentNodeID:  triggerNode.Next[0],
		Status:         models.ExecutionStatusActive,
		StartedAt:      now,
		History: []models.HistoryEntry{{
			NodeID:    triggerNode.ID,
			NodeType:  models.NodeTypeTrigger,
			EnteredAt: now,
			ExitedAt:  &now,
			Outcome:   models.OutcomeCompleted,
		}},
		Context: map[string]any{
			ContextCustomerKey: attributes,
			ContextTriggerKey:  trigger,
		},
	}

	err = e.store.SaveExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Execution started",
		"journey_id", journey.ID,
		"journey_version", journey.Version,
		"execution_id", execution.ID,
		"customer_id", customerID,
	)

	e.publish(ctx, customerID, events.ExecutionStarted{
		BaseEvent:      e.baseEvent(events.ExecutionStartedType, journey.ID),
		ExecutionID:    execution.ID,
		CustomerID:     customerID,
		JourneyVersion: journey.Version,
	})

	snapshot := cloneExecution(execution)
	e.launch(definition, execution)

	return snapshot, nil
}

// Recover resumes every active execution found in persistence that this engine does not run yet,
// re-parking each at its current suspension point with the remaining wait time.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	executions, err := e.store.ActiveExecutions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active executions: %w", err)
	}

	var (
		resumed int
		errs    []error
	)

	for _, execution := range executions {
		journey, err := e.store.JourneyVersion(ctx, execution.JourneyID, execution.JourneyVersion)
		if err != nil {
			errs = append(errs, fmt.Errorf("execution %s: %w", execution.ID, err))

			continue
		}

		if e.launch(journey, execution) {
			resumed++
		}
	}

	e.logger.InfoContext(ctx, "Recovered executions", "resumed", resumed, "failed", len(errs))

	return resumed, errors.Join(errs...)
}

// Close stops every run without changing its status; Recover resumes them later.
func (e *Engine) Close() {
	e.stop()
	e.wg.Wait()
}

// Running returns how many executions this engine currently runs.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.runs)
}

// Snapshot returns a copy of a running execution.
func (e *Engine) Snapshot(executionID string) (*models.JourneyExecution, bool) {
	r, ok := e.lookup(executionID)
	if !ok {
		return nil, false
	}

	return r.snapshot(), true
}

// Suspension reports what a running execution is parked on.
func (e *Engine) Suspension(executionID string) Suspension {
	r, ok := e.lookup(executionID)
	if !ok {
		return NotSuspended
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.suspension
}

// Wait blocks until the execution stops running on this engine, then returns its persisted state.
func (e *Engine) Wait(ctx context.Context, executionID string) (*models.JourneyExecution, error) {
	r, ok := e.lookup(executionID)
	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return e.store.ExecutionByID(ctx, executionID)
}

func (e *Engine) launch(journey *models.Journey, execution *models.JourneyExecution) bool {
	e.mu.Lock()

	if _, running := e.runs[execution.ID]; running {
		e.mu.Unlock()

		return false
	}

	r := newRun(e, journey, execution)
	e.runs[execution.ID] = r
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		r.loop(e.ctx)
		e.forget(execution.ID)
		close(r.done)
	}()

	return true
}

func (e *Engine) lookup(executionID string) (*run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.runs[executionID]

	return r, ok
}

func (e *Engine) forget(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.runs, executionID)
}

func (e *Engine) draw() float64 {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	return e.random.Float64()
}

func (e *Engine) baseEvent(eventType events.EventType, journeyID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, journeyID)
	base.Timestamp = e.clock.Now().UTC()
	base.WorkerID = e.workerID

	return base
}

// publish is best effort: lifecycle notifications never block an execution.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func cloneExecution(execution *models.JourneyExecution) *models.JourneyExecution {
	clone := *execution
	clone.History = append([]models.HistoryEntry(nil), execution.History...)
	clone.Context = maps.Clone(execution.Context)

	return &clone
}
