package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/runner"
)

type APIHandlers struct {
	persistence persistence.Persistence
	runner      *runner.WorkflowRunner
	definitions *DefinitionValidator
	validator   *validator.Validate
}

func NewAPIHandlers(p persistence.Persistence, r *runner.WorkflowRunner, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		runner:      r,
		definitions: NewDefinitionValidator(),
		validator:   validate,
	}
}

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	definitions, err := h.persistence.DefinitionRepository().Definitions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	if definitions == nil {
		definitions = []*models.WorkflowDefinition{}
	}

	return c.JSON(definitions)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	definition := &models.WorkflowDefinition{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Code:          req.Code,
		Category:      req.Category,
		TriggerEntity: req.TriggerEntity,
		TriggerEvent:  req.TriggerEvent,
		Status:        models.DefinitionStatusDraft,
		Steps:         req.Steps,
		Owner:         req.Owner,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if fieldErrors := h.definitions.Validate(definition); len(fieldErrors) > 0 {
		return invalidDefinition(c, fieldErrors)
	}

	if err := h.persistence.DefinitionRepository().SaveDefinition(c.Context(), definition); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(definition)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.persistence.DefinitionRepository().DefinitionByID(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow definition not found")
		}

		return internalError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	err := h.persistence.DefinitionRepository().DeleteDefinition(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow definition not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ActivateDefinition is the validation gate: a definition only becomes
// startable after every graph and action-config check passes.
func (h *APIHandlers) ActivateDefinition(c fiber.Ctx) error {
	definition, err := h.persistence.DefinitionRepository().DefinitionByID(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow definition not found")
		}

		return internalError(c, err)
	}

	if fieldErrors := h.definitions.Validate(definition); len(fieldErrors) > 0 {
		return invalidDefinition(c, fieldErrors)
	}

	now := time.Now().UTC()
	definition.Status = models.DefinitionStatusActive
	definition.ActivatedAt = &now
	definition.UpdatedAt = now

	if err := h.persistence.DefinitionRepository().SaveDefinition(c.Context(), definition); err != nil {
		return internalError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.runner.Start(c.Context(), req.WorkflowDefinitionID, req.Context)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.persistence.InstanceRepository().InstanceByID(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) SubmitOutcome(c fiber.Ctx) error {
	var req SubmitOutcomeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instanceID := c.Params("id")
	if err := h.runner.SubmitOutcome(c.Context(), instanceID, req.Outcome, req.ContextPatch); err != nil {
		return handleRunnerError(c, err)
	}

	instance, err := h.persistence.InstanceRepository().InstanceByID(c.Context(), instanceID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	instanceID := c.Params("id")
	if err := h.runner.Cancel(c.Context(), instanceID); err != nil {
		return handleRunnerError(c, err)
	}

	instance, err := h.persistence.InstanceRepository().InstanceByID(c.Context(), instanceID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	history, err := h.runner.History(c.Context(), c.Params("id"))
	if err != nil {
		return handleRunnerError(c, err)
	}

	if history == nil {
		history = []models.HistoryEntry{}
	}

	return c.JSON(history)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
