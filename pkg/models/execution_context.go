package models

// ExecutionContext is the snapshot handed to action executors when a trigger
// fires. Context carries the instance context tree (assignee, requester,
// entity snapshot, per-step outputs) used for template resolution.
type ExecutionContext struct {
	InstanceID           string         `json:"instanceId"`
	WorkflowDefinitionID string         `json:"workflowDefinitionId"`
	StepCode             string         `json:"stepCode"`
	Event                StepEvent      `json:"event"`
	Context              map[string]any `json:"context"`
}
