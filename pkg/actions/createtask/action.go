// Package createtask provides the create_task action executor.
package createtask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

type ActionFactory struct {
	creator actions.TaskCreator
}

func NewActionFactory(creator actions.TaskCreator) *ActionFactory {
	return &ActionFactory{creator: creator}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeCreateTask
}

func (f *ActionFactory) Create(config map[string]any) (actions.Executor, error) {
	title, _ := config["title"].(string)
	assignTo, _ := config["assignTo"].(string)

	if title == "" {
		return nil, errors.New("create_task requires 'title'")
	}

	switch assignTo {
	case "same", "requester", "manager":
	default:
		return nil, fmt.Errorf("create_task assignTo must be same, requester or manager, got %q", assignTo)
	}

	dueInDays, ok := asInt(config["dueInDays"])
	if !ok || dueInDays < 0 {
		return nil, errors.New("create_task requires a non-negative integer 'dueInDays'")
	}

	return &CreateTaskAction{
		Title:     title,
		AssignTo:  assignTo,
		DueInDays: dueInDays,
		creator:   f.creator,
	}, nil
}

// CreateTaskAction creates a follow-up task entity due dueInDays from now.
type CreateTaskAction struct {
	Title     string
	AssignTo  string
	DueInDays int

	creator actions.TaskCreator
}

func (a *CreateTaskAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "create_task", "assign_to", a.AssignTo)

	task := actions.FollowUpTask{
		Title:      a.Title,
		AssignTo:   a.resolveAssignee(executionCtx.Context),
		InstanceID: executionCtx.InstanceID,
		DueAt:      time.Now().UTC().Add(time.Duration(a.DueInDays) * 24 * time.Hour),
	}

	if err := a.creator.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("task creation failed: %w", err)
	}

	logger.Info("Follow-up task created", "due_at", task.DueAt)

	return map[string]any{"title": task.Title, "assignTo": task.AssignTo, "dueAt": task.DueAt.Format(time.RFC3339)}, nil
}

func (a *CreateTaskAction) resolveAssignee(instanceContext map[string]any) string {
	var path string

	switch a.AssignTo {
	case "same":
		path = "assignee.id"
	case "requester":
		path = "requester.id"
	case "manager":
		path = "assignee.manager"
	}

	if value, ok := template.Lookup(instanceContext, path); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}

	return a.AssignTo
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
