package models

// StepType classifies what a step asks of its assignee.
type StepType string

const (
	StepTypeTask      StepType = "task"
	StepTypeForm      StepType = "form"
	StepTypeChecklist StepType = "checklist"
	StepTypeDecision  StepType = "decision"
	StepTypeApproval  StepType = "approval"
)

// AssigneeType describes the policy used to resolve who works a step.
type AssigneeType string

const (
	AssigneeTypeUser      AssigneeType = "user"
	AssigneeTypeRole      AssigneeType = "role"
	AssigneeTypeTeam      AssigneeType = "team"
	AssigneeTypeAuto      AssigneeType = "auto"
	AssigneeTypeRequester AssigneeType = "requester"
)

// NextStepAuto is the sentinel meaning "advance by step number".
const NextStepAuto = "auto"

// WorkflowStep is one named unit of work in a definition. Step codes are the
// only valid transition targets and must be unique across the owning workflow.
type WorkflowStep struct {
	ID                     string           `json:"id"`
	WorkflowID             string           `json:"workflowId"`
	Name                   string           `json:"name"       validate:"required"`
	Code                   string           `json:"code"       validate:"required,lowercase"`
	StepNumber             int              `json:"stepNumber" validate:"required,min=1"`
	StepType               StepType         `json:"stepType"   validate:"required,oneof=task form checklist decision approval"`
	AssigneeType           AssigneeType     `json:"assigneeType" validate:"omitempty,oneof=user role team auto requester"`
	AssigneeValue          string           `json:"assigneeValue"`
	IsRequired             bool             `json:"isRequired"`
	CanSkip                bool             `json:"canSkip"`
	EstimatedDurationHours float64          `json:"estimatedDurationHours"`
	FormTemplateID         string           `json:"formTemplateId,omitempty"`
	ChecklistTemplateID    string           `json:"checklistTemplateId,omitempty"`
	DecisionOptions        []DecisionOption `json:"decisionOptions,omitempty"`
	NextStepOnComplete     string           `json:"nextStepOnComplete,omitempty"`
	Triggers               []*Trigger       `json:"triggers,omitempty" validate:"dive"`
	Instructions           string           `json:"instructions,omitempty"`
	Description            string           `json:"description,omitempty"`
}

// IsDecision reports whether transitions out of this step are governed by its
// decision options rather than sequence order or an explicit override.
func (s *WorkflowStep) IsDecision() bool {
	return s.StepType == StepTypeDecision
}

// ExplicitNext returns the authored transition override, if any. The "auto"
// sentinel and the empty string both mean "no override".
func (s *WorkflowStep) ExplicitNext() (string, bool) {
	if s.NextStepOnComplete == "" || s.NextStepOnComplete == NextStepAuto {
		return "", false
	}

	return s.NextStepOnComplete, true
}

// DecisionOption is one branch of a decision step. Options are evaluated in
// authored order; the order is load-bearing and must be preserved.
type DecisionOption struct {
	Label     string `json:"label"    validate:"required"`
	NextStep  string `json:"nextStep" validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// HasCondition reports whether the option carries a predicate. Options
// without one are presented to the actor for manual choice.
func (o DecisionOption) HasCondition() bool {
	return o.Condition != ""
}
