// Package web provides the REST API for publishing definitions, running
// approval instances, and recording decisions.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/machshop/approvalflow/pkg/engine"
	"github.com/machshop/approvalflow/pkg/history"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/registry"
)

type APIHandlers struct {
	engine      *engine.Engine
	registry    *registry.Registry
	recorder    *history.Recorder
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	eng *engine.Engine,
	reg *registry.Registry,
	recorder *history.Recorder,
	persist persistence.Persistence,
) *APIHandlers {
	return &APIHandlers{
		engine:      eng,
		registry:    reg,
		recorder:    recorder,
		persistence: persist,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts all API routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	d := app.Group("/definitions")
	d.Post("/", h.PublishDefinition)
	d.Get("/", h.ListDefinitions)
	d.Get("/:id", h.GetDefinition)
	d.Delete("/:id", h.DeactivateDefinition)
	d.Post("/:id/deactivate", h.DeactivateDefinition)

	i := app.Group("/instances")
	i.Post("/", h.StartInstance)
	i.Get("/:id", h.GetInstance)
	i.Post("/:id/cancel", h.CancelInstance)
	i.Get("/:id/history", h.GetInstanceHistory)

	a := app.Group("/assignments")
	a.Get("/", h.ListOpenAssignments)
	a.Post("/:id/action", h.RecordAction)
	a.Post("/:id/delegate", h.Delegate)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) PublishDefinition(c fiber.Ctx) error {
	var definition models.WorkflowDefinition
	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	id, err := h.registry.Publish(c.Context(), &definition)
	if err != nil {
		if registry.IsValidationError(err) {
			return badRequest(c, err.Error())
		}

		if persistence.IsDefinitionAlreadyExists(err) {
			return conflict(c, err.Error())
		}

		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(PublishDefinitionResponse{ID: id})
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.registry.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": definitions,
		"total_count": len(definitions),
	})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.registry.Get(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return notFound(c, "workflow definition not found")
		}

		return internalError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) DeactivateDefinition(c fiber.Ctx) error {
	err := h.registry.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return notFound(c, "workflow definition not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req engine.StartRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(h.instanceResponse(c, instance))
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.Instance(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(h.instanceResponse(c, instance))
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Cancel(c.Context(), c.Params("id"), req.Reason, req.Actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(h.instanceResponse(c, instance))
}

func (h *APIHandlers) GetInstanceHistory(c fiber.Ctx) error {
	id := c.Params("id")

	// A missing instance is a 404, not an empty history.
	if _, err := h.engine.Instance(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	list, err := h.recorder.List(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"instance_id": id,
		"events":      list,
		"total_count": len(list),
	})
}

func (h *APIHandlers) RecordAction(c fiber.Ctx) error {
	var req RecordActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.RecordAction(c.Context(), engine.ActionRequest{
		AssignmentID: c.Params("id"),
		Action:       req.Action,
		Comments:     req.Comments,
		SignatureRef: req.SignatureRef,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(h.instanceResponse(c, instance))
}

func (h *APIHandlers) Delegate(c fiber.Ctx) error {
	var req DelegateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Delegate(c.Context(), engine.DelegateRequest{
		AssignmentID: c.Params("id"),
		To:           req.To,
		Reason:       req.Reason,
		Expiry:       req.Expiry,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(h.instanceResponse(c, instance))
}

func (h *APIHandlers) ListOpenAssignments(c fiber.Ctx) error {
	assignee := c.Query("assignee")
	if assignee == "" {
		return badRequest(c, "assignee query parameter is required")
	}

	assignments, err := h.engine.OpenAssignments(c.Context(), assignee)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"assignee":    assignee,
		"assignments": assignments,
		"total_count": len(assignments),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// instanceResponse decorates an instance with its progress percentage. A
// missing definition only degrades progress, never the response.
func (h *APIHandlers) instanceResponse(c fiber.Ctx, instance *models.WorkflowInstance) InstanceResponse {
	progress := 0.0

	definition, err := h.registry.Get(c.Context(), instance.DefinitionID)
	if err == nil {
		progress = instance.Progress(len(definition.Stages)) * 100
	}

	return InstanceResponse{WorkflowInstance: instance, Progress: progress}
}
