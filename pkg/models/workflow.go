// Package models defines the core domain models for step-based workflow automation.
package models

import "time"

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft    DefinitionStatus = "draft"    // Editable, not executable
	DefinitionStatusActive   DefinitionStatus = "active"   // Validated, instances may be started
	DefinitionStatusArchived DefinitionStatus = "archived" // Historical, not executable
)

// TriggerEvent describes how a run of a workflow definition is started.
type TriggerEvent string

const (
	TriggerEventManual         TriggerEvent = "manual"
	TriggerEventOnEntityCreate TriggerEvent = "on_entity_create"
	TriggerEventOnEntityUpdate TriggerEvent = "on_entity_update"
	TriggerEventScheduled      TriggerEvent = "scheduled"
)

// WorkflowDefinition is the immutable template a run executes against. Once a
// definition is active the engine only ever reads it; editing produces a new
// version, it never retargets running instances.
type WorkflowDefinition struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"          validate:"required,min=3"`
	Code          string           `json:"code"          validate:"required,lowercase"`
	Category      string           `json:"category"`
	TriggerEntity string           `json:"triggerEntity"`
	TriggerEvent  TriggerEvent     `json:"triggerEvent"  validate:"required,oneof=manual on_entity_create on_entity_update scheduled"`
	Status        DefinitionStatus `json:"status"`
	Steps         []*WorkflowStep  `json:"steps"         validate:"dive"`
	Owner         string           `json:"owner"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	ActivatedAt   *time.Time       `json:"activatedAt,omitempty"`
}
