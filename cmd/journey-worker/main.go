package main

import (
	"context"
	"os"

	"github.com/dukex/journeys/pkg/cmd"
	"github.com/dukex/journeys/pkg/log"
	"github.com/dukex/journeys/pkg/triggers"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:                  "journey-worker",
		EnableShellCompletion: true,
		Usage:                 "Run customer journey executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://... or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL guarding one active execution per customer across workers",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "customers-url",
				Usage:   "Base URL of the customer attribute and segment service",
				Sources: cli.EnvVars("CUSTOMERS_URL"),
			},
			&cli.StringFlag{
				Name:    "dispatch-url",
				Usage:   "Webhook receiving resolved messages (messages are logged when empty)",
				Sources: cli.EnvVars("DISPATCH_URL"),
			},
			&cli.StringSliceFlag{
				Name:    "http-header",
				Usage:   "Header sent to the customer and dispatch services, as 'Name: value'",
				Sources: cli.EnvVars("HTTP_HEADERS"),
			},
			&cli.DurationFlag{
				Name:    "schedule-poll-interval",
				Usage:   "How often scheduled journeys are checked",
				Value:   triggers.DefaultPollInterval,
				Sources: cli.EnvVars("SCHEDULE_POLL_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export execution traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("journey-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing journey worker")

			clock := clockwork.NewRealClock()
			headers := command.StringSlice("http-header")

			eventBus := cmd.NewEventBus(command.String("event-bus"), "journey-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			worker := NewWorkerManager(workerID, WorkerConfig{
				Persistence:  persistence,
				EventBus:     eventBus,
				Customers:    cmd.NewCustomers(command.String("customers-url"), headers),
				Dispatcher:   cmd.NewDispatcher(command.String("dispatch-url"), headers, logger),
				Locker:       cmd.NewLocker(command.String("redis-url"), clock, logger),
				Tracer:       cmd.NewTracer(ctx, command.Bool("otel-enabled"), "journey-worker", logger),
				Clock:        clock,
				PollInterval: command.Duration("schedule-poll-interval"),
			}, logger)

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start journey worker", "error", err)
			}

			return err
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
