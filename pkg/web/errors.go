package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/runner"
)

// validationProblem is an RFC 7807 problem extended with the per-field
// violation list surfaced to the authoring UI.
type validationProblem struct {
	*problems.Problem

	Errors []FieldError `json:"errors"`
}

func invalidDefinition(c fiber.Ctx, fieldErrors []FieldError) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("invalid_definition").
		WithDetail("workflow definition failed validation")

	return c.Status(fiber.StatusBadRequest).JSON(validationProblem{
		Problem: problem,
		Errors:         fieldErrors,
	})
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleRunnerError maps runner and persistence errors to problem responses.
func handleRunnerError(c fiber.Ctx, err error) error {
	var invalid *runner.DefinitionInvalidError

	switch {
	case errors.Is(err, runner.ErrConflict):
		return conflict(c, "a concurrent submission won; re-read the instance and retry")
	case errors.Is(err, runner.ErrInstanceNotActive):
		return conflict(c, err.Error())
	case errors.Is(err, runner.ErrCannotSkip), errors.Is(err, runner.ErrDefinitionNotActive):
		return badRequest(c, err.Error())
	case errors.As(err, &invalid):
		fieldErrors := make([]FieldError, 0, len(invalid.Violations))
		for _, violation := range invalid.Violations {
			fieldErrors = append(fieldErrors, FieldError{
				StepCode: violation.StepCode,
				Field:    violation.Field,
				Message:  violation.Message,
			})
		}

		return invalidDefinition(c, fieldErrors)
	case persistence.IsNotFound(err):
		return notFound(c, err.Error())
	default:
		return internalError(c, err)
	}
}
