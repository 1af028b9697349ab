package actions

import (
	"context"
	"time"
)

// Delivery mechanisms are external collaborators. The executors only need
// these narrow ports; wiring a real SMTP gateway, push service or task store
// is the embedding application's concern.

// EmailSender dispatches a single email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotificationSender pushes an in-app or channel notification.
type NotificationSender interface {
	Send(ctx context.Context, recipients []string, message string) error
}

// FollowUpTask is a task entity created as a side effect of a trigger.
type FollowUpTask struct {
	Title      string
	AssignTo   string
	InstanceID string
	DueAt      time.Time
}

// TaskCreator creates a follow-up task entity.
type TaskCreator interface {
	Create(ctx context.Context, task FollowUpTask) error
}

// EntityUpdater applies a single-field update to a business entity.
type EntityUpdater interface {
	Update(ctx context.Context, entityType, field string, value any) error
}

// Reminder is a deferred notification, fired at FireAt.
type Reminder struct {
	InstanceID string
	StepCode   string
	Message    string
	FireAt     time.Time
}

// ReminderScheduler stores reminders for later delivery.
type ReminderScheduler interface {
	Schedule(ctx context.Context, reminder Reminder) error
}
