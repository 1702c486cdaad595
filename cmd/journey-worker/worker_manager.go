package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/journeys/pkg/approval"
	"github.com/dukex/journeys/pkg/cmd"
	"github.com/dukex/journeys/pkg/dispatch"
	"github.com/dukex/journeys/pkg/engine"
	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/lock"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/otelhelper"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/dukex/journeys/pkg/services"
	"github.com/dukex/journeys/pkg/triggers"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// WorkerConfig carries the collaborators a worker runs with.
type WorkerConfig struct {
	Persistence  persistence.Persistence
	EventBus     eventbus.EventBus
	Customers    cmd.Customers
	Dispatcher   dispatch.Dispatcher
	Locker       lock.Locker
	Tracer       trace.Tracer
	Clock        clockwork.Clock
	PollInterval time.Duration
}

// WorkerManager owns the engine of one worker process and wires it to the event bus, the trigger
// router and the schedule poller.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	engine      *engine.Engine
	executions  *services.Execution
	router      *triggers.Router
	scheduler   *triggers.Scheduler
}

func NewWorkerManager(id string, config WorkerConfig, logger *slog.Logger) *WorkerManager {
	logger = logger.With("module", "journey-worker", "worker_id", id)

	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	approvals := approval.NewQueue(config.Persistence, config.Clock, logger)

	opts := []engine.Option{
		engine.WithClock(config.Clock),
		engine.WithPublisher(config.EventBus),
		engine.WithApprovals(approvals),
		engine.WithWorkerID(id),
	}

	if config.Locker != nil {
		opts = append(opts, engine.WithLocker(config.Locker))
	}

	if config.Tracer != nil {
		opts = append(opts, engine.WithTracer(config.Tracer))
	}

	journeyEngine := engine.New(config.Persistence, config.Customers, config.Dispatcher, logger, opts...)

	approvals.OnDecision(func(ctx context.Context, request *models.ApprovalRequest) error {
		return journeyEngine.Approve(ctx, request.ExecutionID, request.Status == models.ApprovalStatusApproved)
	})

	// Scheduled starts go through the bus so they land on the worker that owns the customer key.
	var scheduled triggers.Starter = journeyEngine
	if config.EventBus != nil {
		scheduled = triggers.NewBusStarter(config.EventBus, logger)
	}

	return &WorkerManager{
		id:          id,
		logger:      logger,
		persistence: config.Persistence,
		eventBus:    config.EventBus,
		engine:      journeyEngine,
		executions:  services.NewExecution(config.Persistence, journeyEngine, config.EventBus, config.Clock, logger),
		router:      triggers.NewRouter(config.Persistence, journeyEngine, journeyEngine, logger),
		scheduler: triggers.NewScheduler(
			config.Persistence,
			config.Persistence,
			config.Customers,
			scheduled,
			config.Clock,
			config.PollInterval,
			logger,
		),
	}
}

// Setup registers every bus handler, resumes persisted executions, subscribes to the bus and
// starts the schedule poller. It returns once the worker is serving.
func (w *WorkerManager) Setup(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.router.Refresh(ctx)
	if err != nil {
		return err
	}

	err = w.router.Register(w.eventBus)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ExecutionStartRequestedType, w.handleStartRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ExecutionCancelRequestedType, w.handleCancelRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ApprovalDecidedType, w.handleApprovalDecided)
	if err != nil {
		return err
	}

	resumed, err := w.engine.Recover(ctx)
	if err != nil {
		// Executions that could not be reloaded stay active in persistence for the next start.
		w.logger.ErrorContext(ctx, "Some executions could not be recovered", "error", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	go w.scheduler.Run(ctx)

	w.logger.InfoContext(ctx, "Worker started successfully", "resumed_executions", resumed)

	return nil
}

// Start serves until SIGINT or SIGTERM, then stops every run without changing its status.
func (w *WorkerManager) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := w.Setup(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	w.logger.Info("Shutting down worker...")

	w.Stop()

	return nil
}

func (w *WorkerManager) Stop() {
	w.engine.Close()

	err := otelhelper.Shutdown(context.Background())
	if err != nil {
		w.logger.Error("Failed to flush traces", "error", err)
	}
}

func (w *WorkerManager) handleStartRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionStartRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionStartRequested")

		return nil
	}

	return w.executions.HandleStartRequested(ctx, request)
}

func (w *WorkerManager) handleCancelRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionCancelRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionCancelRequested")

		return nil
	}

	return w.executions.HandleCancelRequested(ctx, request)
}

func (w *WorkerManager) handleApprovalDecided(ctx context.Context, event any) error {
	decided, ok := event.(*events.ApprovalDecided)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ApprovalDecided")

		return nil
	}

	err := w.engine.Approve(ctx, decided.ExecutionID, decided.Approved)

	switch {
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, engine.ErrNotAwaitingApproval):
		// The decision is persisted; the owning engine reads it when it parks or recovers.
		w.logger.DebugContext(ctx, "Approval decision not for this worker", "execution_id", decided.ExecutionID, "reason", err.Error())

		return nil
	case err != nil:
		return fmt.Errorf("failed to deliver approval decision: %w", err)
	}

	return nil
}
