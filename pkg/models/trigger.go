package models

// StepEvent is a step lifecycle event that triggers react to.
type StepEvent string

const (
	StepEventStart     StepEvent = "on_step_start"
	StepEventComplete  StepEvent = "on_step_complete"
	StepEventFail      StepEvent = "on_step_fail"
	StepEventApproval  StepEvent = "on_approval"
	StepEventRejection StepEvent = "on_rejection"
	StepEventOverdue   StepEvent = "on_overdue"
)

// Trigger is an event-scoped bundle of actions attached to a step. Inactive
// triggers are skipped entirely, not evaluated. A trigger is owned by exactly
// one step and shares its lifecycle.
type Trigger struct {
	TriggerID string    `json:"triggerId" validate:"required"`
	Event     StepEvent `json:"event"     validate:"required,oneof=on_step_start on_step_complete on_step_fail on_approval on_rejection on_overdue"`
	IsActive  bool      `json:"isActive"`
	Actions   []*Action `json:"actions"   validate:"dive"`
}

// Matches reports whether this trigger should fire for the given event.
func (t *Trigger) Matches(event StepEvent) bool {
	return t.IsActive && t.Event == event
}
