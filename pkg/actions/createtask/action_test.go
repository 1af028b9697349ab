package createtask

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	task actions.FollowUpTask
}

func (f *fakeCreator) Create(_ context.Context, task actions.FollowUpTask) error {
	f.task = task

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFactoryCreateValidation(t *testing.T) {
	factory := NewActionFactory(&fakeCreator{})

	_, err := factory.Create(map[string]any{"assignTo": "same", "dueInDays": 1.0})
	assert.Error(t, err, "missing title")

	_, err = factory.Create(map[string]any{"title": "t", "assignTo": "someone", "dueInDays": 1.0})
	assert.Error(t, err, "unknown assignTo")

	_, err = factory.Create(map[string]any{"title": "t", "assignTo": "same", "dueInDays": "soon"})
	assert.Error(t, err, "non-numeric dueInDays")

	// JSON decoding yields float64 for numbers.
	executor, err := factory.Create(map[string]any{"title": "t", "assignTo": "same", "dueInDays": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 3, executor.(*CreateTaskAction).DueInDays)
}

func TestExecuteCreatesTaskWithDueDate(t *testing.T) {
	creator := &fakeCreator{}
	executor, err := NewActionFactory(creator).Create(map[string]any{
		"title":     "Review contract",
		"assignTo":  "requester",
		"dueInDays": 2.0,
	})
	require.NoError(t, err)

	execCtx := models.ExecutionContext{
		InstanceID: "inst-7",
		Context: map[string]any{
			"requester": map[string]any{"id": "user-3"},
		},
	}

	before := time.Now().UTC()

	_, err = executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "Review contract", creator.task.Title)
	assert.Equal(t, "user-3", creator.task.AssignTo)
	assert.Equal(t, "inst-7", creator.task.InstanceID)
	assert.WithinDuration(t, before.Add(48*time.Hour), creator.task.DueAt, time.Minute)
}

func TestExecuteManagerResolution(t *testing.T) {
	creator := &fakeCreator{}
	executor, err := NewActionFactory(creator).Create(map[string]any{
		"title":     "Escalation",
		"assignTo":  "manager",
		"dueInDays": 1.0,
	})
	require.NoError(t, err)

	execCtx := models.ExecutionContext{
		Context: map[string]any{
			"assignee": map[string]any{"id": "user-1", "manager": "user-boss"},
		},
	}

	_, err = executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "user-boss", creator.task.AssignTo)
}
