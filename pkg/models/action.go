package models

// ActionType identifies one of the closed set of action executors.
type ActionType string

const (
	ActionTypeSendEmail        ActionType = "send_email"
	ActionTypeSendNotification ActionType = "send_notification"
	ActionTypeCreateTask       ActionType = "create_task"
	ActionTypeUpdateEntity     ActionType = "update_entity"
	ActionTypeScheduleReminder ActionType = "schedule_reminder"
	ActionTypeWebhook          ActionType = "webhook"
)

// ActionTypes lists every registered action type, in a stable order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionTypeSendEmail,
		ActionTypeSendNotification,
		ActionTypeCreateTask,
		ActionTypeUpdateEntity,
		ActionTypeScheduleReminder,
		ActionTypeWebhook,
	}
}

// Action is a single typed, template-parameterized side effect. Config values
// may contain {{...}} placeholders resolved at fire time against the current
// instance context.
type Action struct {
	ActionID string         `json:"actionId" validate:"required"`
	Type     ActionType     `json:"type"     validate:"required,oneof=send_email send_notification create_task update_entity schedule_reminder webhook"`
	Config   map[string]any `json:"config"`
}

// ActionStatus is the terminal state of a single action invocation.
type ActionStatus string

const (
	ActionStatusOK      ActionStatus = "ok"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusSkipped ActionStatus = "skipped"
)

// ActionResult records the outcome of one action invocation. Failures are
// best-effort warnings; they never block a step transition.
type ActionResult struct {
	ActionID  string         `json:"actionId"`
	Type      ActionType     `json:"type"`
	Status    ActionStatus   `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// Failed reports whether the invocation ended in failure.
func (r ActionResult) Failed() bool {
	return r.Status == ActionStatusFailed
}
