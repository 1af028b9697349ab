package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/stepflow/pkg/actions"
)

// Deliveries bundles the outbound collaborators the action executors need.
// Real gateways are wired by the embedding deployment; the defaults log each
// delivery so the engine is fully runnable on its own.
type Deliveries struct {
	Email         actions.EmailSender
	Notifications actions.NotificationSender
	Tasks         actions.TaskCreator
	Entities      actions.EntityUpdater
	Reminders     actions.ReminderScheduler
}

// NewLogDeliveries returns Deliveries that record every side effect to the
// log instead of an external system.
func NewLogDeliveries(logger *slog.Logger) Deliveries {
	logger = logger.With("module", "delivery")

	return Deliveries{
		Email:         &logEmailSender{logger: logger},
		Notifications: &logNotificationSender{logger: logger},
		Tasks:         &logTaskCreator{logger: logger},
		Entities:      &logEntityUpdater{logger: logger},
		Reminders:     &logReminderScheduler{logger: logger},
	}
}

type logEmailSender struct {
	logger *slog.Logger
}

func (d *logEmailSender) Send(ctx context.Context, to, subject, _ string) error {
	d.logger.InfoContext(ctx, "Email sent", "to", to, "subject", subject)

	return nil
}

type logNotificationSender struct {
	logger *slog.Logger
}

func (d *logNotificationSender) Send(ctx context.Context, recipients []string, message string) error {
	d.logger.InfoContext(ctx, "Notification sent", "recipients", recipients, "message", message)

	return nil
}

type logTaskCreator struct {
	logger *slog.Logger
}

func (d *logTaskCreator) Create(ctx context.Context, task actions.FollowUpTask) error {
	d.logger.InfoContext(ctx, "Task created", "title", task.Title, "assign_to", task.AssignTo, "due_at", task.DueAt)

	return nil
}

type logEntityUpdater struct {
	logger *slog.Logger
}

func (d *logEntityUpdater) Update(ctx context.Context, entityType, field string, value any) error {
	d.logger.InfoContext(ctx, "Entity updated", "entity_type", entityType, "field", field, "value", value)

	return nil
}

type logReminderScheduler struct {
	logger *slog.Logger
}

func (d *logReminderScheduler) Schedule(ctx context.Context, reminder actions.Reminder) error {
	d.logger.InfoContext(ctx, "Reminder scheduled", "instance_id", reminder.InstanceID, "fire_at", reminder.FireAt)

	return nil
}
