package models

import "time"

// InstanceStatus is the lifecycle state of a running workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "pending"
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusBlocked   InstanceStatus = "blocked" // Decision resolved to no option; needs manual intervention
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Outcome is the result an actor reports for the current step.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeFail     Outcome = "fail"
	OutcomeApprove  Outcome = "approve"
	OutcomeReject   Outcome = "reject"
	OutcomeSkip     Outcome = "skip"
)

// Event returns the step lifecycle event fired for this outcome.
func (o Outcome) Event() StepEvent {
	switch o {
	case OutcomeFail:
		return StepEventFail
	case OutcomeApprove:
		return StepEventApproval
	case OutcomeReject:
		return StepEventRejection
	case OutcomeComplete, OutcomeSkip:
		return StepEventComplete
	default:
		return StepEventComplete
	}
}

// WorkflowInstance is one running execution of a definition. It pins the
// definition version it started with; only the runner mutates it, under the
// per-instance lock. Version implements optimistic concurrency: a save with a
// stale version is rejected.
type WorkflowInstance struct {
	ID                   string         `json:"id"`
	WorkflowDefinitionID string         `json:"workflowDefinitionId"`
	CurrentStepCode      string         `json:"currentStepCode"`
	Status               InstanceStatus `json:"status"`
	Context              map[string]any `json:"context"`
	History              []HistoryEntry `json:"history"`
	Version              int64          `json:"version"`
	CurrentStepStartedAt time.Time      `json:"currentStepStartedAt"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Terminal reports whether the instance can no longer advance.
func (i *WorkflowInstance) Terminal() bool {
	switch i.Status {
	case InstanceStatusCompleted, InstanceStatusFailed, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// HistoryKind distinguishes transition records from action warnings.
type HistoryKind string

const (
	HistoryKindTransition    HistoryKind = "transition"
	HistoryKindActionWarning HistoryKind = "action_warning"
)

// HistoryEntry is one record in the instance's ordered audit log.
type HistoryEntry struct {
	Kind     HistoryKind `json:"kind"`
	StepCode string      `json:"stepCode"`
	Event    StepEvent   `json:"event,omitempty"`
	Outcome  Outcome     `json:"outcome,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	At       time.Time   `json:"at"`
}
