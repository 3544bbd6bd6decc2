package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/machshop/approvalflow/pkg/engine"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/registry"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and persistence errors onto problem
// responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case engine.IsValidationError(err) || registry.IsValidationError(err):
		return badRequest(c, err.Error())

	case engine.IsTerminalStateError(err) || engine.IsConflictError(err):
		return conflict(c, err.Error())

	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "workflow definition not found")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")

	case persistence.IsAssignmentNotFound(err):
		return notFound(c, "assignment not found")

	case engine.IsResolutionError(err):
		// The instance moved to errored; tell the caller the start was
		// accepted but could not proceed.
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("resolution_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	default:
		return internalError(c, err)
	}
}
