// Package overdue polls running instances and flags steps that have been
// open longer than their estimated duration. The same tick drains due
// reminders and pushes them through the notification sender.
package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/runner"
	"github.com/dukex/stepflow/pkg/template"
)

const defaultSchedule = "@every 1m"

// ReminderSource supplies reminders whose fire time has passed.
type ReminderSource interface {
	Due(ctx context.Context, now time.Time) ([]actions.Reminder, error)
}

// Monitor drives overdue detection on a cron schedule. The runner decides
// whether a given instance's step is actually overdue; the monitor only
// enumerates candidates.
type Monitor struct {
	runner        *runner.WorkflowRunner
	persistence   persistence.Persistence
	reminders     ReminderSource
	notifications actions.NotificationSender
	logger        *slog.Logger
	schedule      string
	cron          *cron.Cron
}

func NewMonitor(r *runner.WorkflowRunner, p persistence.Persistence, logger *slog.Logger) *Monitor {
	return &Monitor{
		runner:      r,
		persistence: p,
		logger:      logger.With("module", "overdue"),
		schedule:    defaultSchedule,
	}
}

// WithSchedule overrides the default one-minute tick.
func (m *Monitor) WithSchedule(schedule string) *Monitor {
	m.schedule = schedule

	return m
}

// WithReminders wires a reminder source and the sender that delivers them.
func (m *Monitor) WithReminders(source ReminderSource, sender actions.NotificationSender) *Monitor {
	m.reminders = source
	m.notifications = sender

	return m
}

// Start schedules the tick and returns. Stop with Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := m.cron.AddFunc(m.schedule, func() {
		m.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule overdue monitor: %w", err)
	}

	m.cron.Start()
	m.logger.InfoContext(ctx, "Overdue monitor started", "schedule", m.schedule)

	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Tick runs one scan. Exported so tests and operators can trigger a scan
// without waiting for the schedule.
func (m *Monitor) Tick(ctx context.Context) {
	m.scanInstances(ctx)
	m.drainReminders(ctx)
}

func (m *Monitor) scanInstances(ctx context.Context) {
	instances, err := m.persistence.InstanceRepository().RunningInstances(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to list running instances", "error", err)

		return
	}

	for _, instance := range instances {
		if err := m.runner.OnOverdueTick(ctx, instance.ID); err != nil {
			m.logger.ErrorContext(ctx, "Overdue check failed",
				"error", err,
				"instance_id", instance.ID)
		}
	}
}

func (m *Monitor) drainReminders(ctx context.Context) {
	if m.reminders == nil || m.notifications == nil {
		return
	}

	due, err := m.reminders.Due(ctx, time.Now().UTC())
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to drain reminders", "error", err)

		return
	}

	for _, reminder := range due {
		// Reminders for instances that stopped running are dropped.
		instance, err := m.persistence.InstanceRepository().InstanceByID(ctx, reminder.InstanceID)
		if err != nil || instance.Status != models.InstanceStatusRunning {
			continue
		}

		err = m.notifications.Send(ctx, recipientsFor(instance), reminder.Message)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to deliver reminder",
				"error", err,
				"instance_id", reminder.InstanceID,
				"step_code", reminder.StepCode)
		}
	}
}

// recipientsFor resolves the reminder's audience from the instance context,
// preferring the assignee's email over their ID.
func recipientsFor(instance *models.WorkflowInstance) []string {
	for _, path := range []string{"assignee.email", "assignee.id"} {
		if value, ok := template.Lookup(instance.Context, path); ok {
			if s, ok := value.(string); ok && s != "" {
				return []string{s}
			}
		}
	}

	return nil
}
