// Package main provides the journey API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/journeys/pkg/approval"
	"github.com/dukex/journeys/pkg/eventbus"
	"github.com/dukex/journeys/pkg/events"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
	"github.com/dukex/journeys/pkg/services"
	"github.com/dukex/journeys/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/jonboulle/clockwork"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	clock       clockwork.Clock
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	clock clockwork.Clock,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		clock:       clock,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	journeyService := services.NewJourney(a.persistence, a.eventBus, a.clock, a.logger)
	executionService := services.NewExecution(a.persistence, nil, a.eventBus, a.clock, a.logger)
	analyticsService := services.NewAnalytics(a.persistence, a.clock, a.logger)

	approvals := approval.NewQueue(a.persistence, a.clock, a.logger)
	approvals.OnDecision(a.forwardDecision)

	handlers := web.NewAPIHandlers(journeyService, executionService, analyticsService, approvals, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Journey API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

// forwardDecision hands an approval decision to the worker that parks the execution.
func (a *API) forwardDecision(ctx context.Context, request *models.ApprovalRequest) error {
	decided := events.ApprovalDecided{
		BaseEvent:   events.NewBaseEvent(events.ApprovalDecidedType, request.JourneyID),
		ExecutionID: request.ExecutionID,
		NodeID:      request.NodeID,
		Approved:    request.Status == models.ApprovalStatusApproved,
		DecidedBy:   request.DecidedBy,
	}

	return a.eventBus.Publish(ctx, request.CustomerID, decided)
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
