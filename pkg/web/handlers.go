package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/journeys/pkg/approval"
	"github.com/dukex/journeys/pkg/definition"
	"github.com/dukex/journeys/pkg/graph"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/services"
	"github.com/dukex/journeys/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	journeys   *services.Journey
	executions *services.Execution
	analytics  *services.Analytics
	approvals  *approval.Queue
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(
	journeys *services.Journey,
	executions *services.Execution,
	analytics *services.Analytics,
	approvals *approval.Queue,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		journeys:   journeys,
		executions: executions,
		analytics:  analytics,
		approvals:  approvals,
		validator:  validator,
		logger:     logger.With("module", "web"),
	}
}

// RegisterRoutes mounts every journey API endpoint on router.
func RegisterRoutes(router fiber.Router, h *APIHandlers) {
	router.Get("/health", h.HealthCheck)

	j := router.Group("/journeys")
	j.Get("/", h.GetJourneys)
	j.Post("/", h.CreateJourney)
	j.Post("/validate", h.ValidateDefinition)
	j.Get("/:id", h.GetJourney)
	j.Put("/:id", h.UpdateJourney)
	j.Delete("/:id", h.DeleteJourney)
	j.Post("/:id/publish", h.PublishJourney)
	j.Post("/:id/pause", h.PauseJourney)
	j.Post("/:id/resume", h.ResumeJourney)
	j.Post("/:id/complete", h.CompleteJourney)
	j.Post("/:id/archive", h.ArchiveJourney)
	j.Get("/:id/validate", h.ValidateJourney)
	j.Get("/:id/versions/:version", h.GetJourneyVersion)
	j.Get("/:id/graph", h.GetGraph)
	j.Post("/:id/graph/edits", h.ApplyGraphEdit)
	j.Get("/:id/variables", h.GetVariables)
	j.Get("/:id/schedule", h.GetSchedule)
	j.Get("/:id/analytics", h.GetAnalytics)
	j.Get("/:id/executions", h.GetExecutions)
	j.Post("/:id/executions", h.StartExecution)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)

	a := router.Group("/approvals")
	a.Get("/", h.GetApprovals)
	a.Get("/:id", h.GetApproval)
	a.Post("/:id/decision", h.DecideApproval)

	router.Post("/delivery-events", h.RecordDeliveryEvent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.journeys.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Journey API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Journey API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	journeys, err := h.journeys.List(c.Context(), models.JourneyStatus(c.Query("status")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journeys)
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	journey, err := h.journeys.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	journey, err := readJourney(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeys.Create(c.Context(), journey)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateJourney(c fiber.Ctx) error {
	journey, err := readJourney(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.journeys.Update(c.Context(), c.Params("id"), journey)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteJourney(c fiber.Ctx) error {
	err := h.journeys.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishJourney(c fiber.Ctx) error {
	return h.changeStatus(c, h.journeys.Publish)
}

func (h *APIHandlers) PauseJourney(c fiber.Ctx) error {
	return h.changeStatus(c, h.journeys.Pause)
}

func (h *APIHandlers) ResumeJourney(c fiber.Ctx) error {
	return h.changeStatus(c, h.journeys.Resume)
}

func (h *APIHandlers) CompleteJourney(c fiber.Ctx) error {
	return h.changeStatus(c, h.journeys.Complete)
}

func (h *APIHandlers) ArchiveJourney(c fiber.Ctx) error {
	return h.changeStatus(c, h.journeys.Archive)
}

func (h *APIHandlers) changeStatus(
	c fiber.Ctx,
	change func(ctx context.Context, id string) (*models.Journey, error),
) error {
	journey, err := change(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

// ValidateDefinition validates a journey definition without storing it.
func (h *APIHandlers) ValidateDefinition(c fiber.Ctx) error {
	journey, err := readJourney(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(newValidationResponse(validation.Validate(journey)))
}

func (h *APIHandlers) ValidateJourney(c fiber.Ctx) error {
	errs, err := h.journeys.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newValidationResponse(errs))
}

func (h *APIHandlers) GetJourneyVersion(c fiber.Ctx) error {
	version, err := strconv.Atoi(c.Params("version"))
	if err != nil || version < 1 {
		return badRequest(c, "version must be a positive integer")
	}

	journey, err := h.journeys.Version(c.Context(), c.Params("id"), version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	result, err := h.journeys.Graph(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ApplyGraphEdit(c fiber.Ctx) error {
	edit, err := graph.DecodeEdit(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	journey, err := h.journeys.ApplyEdit(c.Context(), c.Params("id"), edit)
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := graph.ToGraph(journey)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"version": journey.Version, "graph": result})
}

func (h *APIHandlers) GetVariables(c fiber.Ctx) error {
	variables, err := h.journeys.Variables(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(variables)
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	schedule, err := h.journeys.Schedule(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) GetAnalytics(c fiber.Ctx) error {
	result, err := h.analytics.Compute(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.executions.List(c.Context(), c.Params("id"), models.ExecutionStatus(c.Query("status")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

// StartExecution enters a customer into a journey by hand. It answers 201 with the execution when
// started in-process and 202 when the start was queued for a worker.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	journeyID := c.Params("id")

	execution, err := h.executions.StartManual(c.Context(), journeyID, req.CustomerID, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	if execution == nil {
		return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
			Status:     "accepted",
			JourneyID:  journeyID,
			CustomerID: req.CustomerID,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	execution, cancelled, err := h.executions.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !cancelled {
		return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
			Status:      "accepted",
			ExecutionID: execution.ID,
			CustomerID:  execution.CustomerID,
		})
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetApprovals(c fiber.Ctx) error {
	status := models.ApprovalStatus(c.Query("status"))

	switch status {
	case "", models.ApprovalStatusPending, models.ApprovalStatusApproved, models.ApprovalStatusRejected:
	default:
		return badRequest(c, "invalid approval status '"+string(status)+"'")
	}

	requests, err := h.approvals.List(c.Context(), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(requests)
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	request, err := h.approvals.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	var req DecideApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.approvals.Decide(c.Context(), c.Params("id"), *req.Approved, req.DecidedBy)

	switch {
	case err == nil:
		return c.JSON(request)
	case request != nil && !errors.Is(err, approval.ErrAlreadyDecided):
		// Recorded, but the executions could not be signalled; workers pick it up on recovery.
		h.logger.ErrorContext(c.Context(), "Approval decision not delivered", "approval_id", request.ID, "error", err)

		return c.JSON(request)
	default:
		return handleServiceError(c, err)
	}
}

func (h *APIHandlers) RecordDeliveryEvent(c fiber.Ctx) error {
	var event models.DeliveryEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	recorded, err := h.executions.RecordDelivery(c.Context(), &event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(recorded)
}

// readJourney decodes a journey definition body, as YAML when the content type says so.
func readJourney(c fiber.Ctx) (*models.Journey, error) {
	format := definition.FormatJSON
	if strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
		format = definition.FormatYAML
	}

	return definition.Decode(c.Body(), format)
}
