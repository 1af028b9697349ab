// Package reminder provides the schedule_reminder action executor.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
)

type ActionFactory struct {
	scheduler actions.ReminderScheduler
}

func NewActionFactory(scheduler actions.ReminderScheduler) *ActionFactory {
	return &ActionFactory{scheduler: scheduler}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeScheduleReminder
}

func (f *ActionFactory) Create(config map[string]any) (actions.Executor, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, errors.New("schedule_reminder requires 'message'")
	}

	delayHours, ok := asInt(config["delayHours"])
	if !ok || delayHours <= 0 {
		return nil, errors.New("schedule_reminder requires a positive integer 'delayHours'")
	}

	return &ScheduleReminderAction{
		DelayHours: delayHours,
		Message:    message,
		scheduler:  f.scheduler,
	}, nil
}

// ScheduleReminderAction stores a deferred notification that fires delayHours
// after trigger time. Delivery is the reminder monitor's job.
type ScheduleReminderAction struct {
	DelayHours int
	Message    string

	scheduler actions.ReminderScheduler
}

func (a *ScheduleReminderAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "schedule_reminder", "delay_hours", a.DelayHours)

	fireAt := time.Now().UTC().Add(time.Duration(a.DelayHours) * time.Hour)

	err := a.scheduler.Schedule(ctx, actions.Reminder{
		InstanceID: executionCtx.InstanceID,
		StepCode:   executionCtx.StepCode,
		Message:    a.Message,
		FireAt:     fireAt,
	})
	if err != nil {
		return nil, actions.Transient(fmt.Errorf("failed to schedule reminder: %w", err))
	}

	logger.Info("Reminder scheduled", "fire_at", fireAt)

	return map[string]any{"fireAt": fireAt.Format(time.RFC3339)}, nil
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
