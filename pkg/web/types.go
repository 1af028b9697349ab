// Package web provides the HTTP surface of the workflow engine: definition
// authoring, the validation gate, and the instance lifecycle operations.
package web

import "github.com/dukex/stepflow/pkg/models"

// CreateDefinitionRequest is the authoring contract: a full definition
// snapshot produced by the external editor. Definitions always arrive as
// drafts; activation is a separate, gated call.
type CreateDefinitionRequest struct {
	Name          string                 `json:"name"          validate:"required,min=3"`
	Code          string                 `json:"code"          validate:"required,lowercase"`
	Category      string                 `json:"category"`
	TriggerEntity string                 `json:"triggerEntity"`
	TriggerEvent  models.TriggerEvent    `json:"triggerEvent"  validate:"required,oneof=manual on_entity_create on_entity_update scheduled"`
	Owner         string                 `json:"owner"`
	Steps         []*models.WorkflowStep `json:"steps"         validate:"dive"`
}

// StartInstanceRequest starts a run of an active definition.
type StartInstanceRequest struct {
	WorkflowDefinitionID string         `json:"workflowDefinitionId" validate:"required"`
	Context              map[string]any `json:"context"`
}

// SubmitOutcomeRequest reports the actor's outcome for the instance's
// current step. ContextPatch is merged into the instance context before the
// transition.
type SubmitOutcomeRequest struct {
	Outcome      models.Outcome `json:"outcome"      validate:"required,oneof=complete fail approve reject skip"`
	ContextPatch map[string]any `json:"contextPatch"`
}

// FieldError pinpoints one offending step/field in a definition.
type FieldError struct {
	StepCode string `json:"stepCode,omitempty"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}
