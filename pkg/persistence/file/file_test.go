package file

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p
}

func sampleDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:           "def-1",
		Name:         "Purchase approval",
		Code:         "purchase_approval",
		TriggerEvent: models.TriggerEventManual,
		Status:       models.DefinitionStatusActive,
		Steps: []*models.WorkflowStep{
			{Code: "intake", StepNumber: 1, StepType: models.StepTypeTask, Name: "Intake"},
			{Code: "close", StepNumber: 2, StepType: models.StepTypeTask, Name: "Close"},
		},
	}
}

func TestDefinitionRoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.DefinitionRepository().SaveDefinition(ctx, sampleDefinition()))

	loaded, err := p.DefinitionRepository().DefinitionByID(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, "purchase_approval", loaded.Code)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "intake", loaded.Steps[0].Code)

	all, err := p.DefinitionRepository().Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDefinitionNotFound(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.DefinitionRepository().DefinitionByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestInstanceVersionConflict(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	repo := p.InstanceRepository()

	instance := &models.WorkflowInstance{
		ID:                   "inst-1",
		WorkflowDefinitionID: "def-1",
		CurrentStepCode:      "intake",
		Status:               models.InstanceStatusRunning,
		CreatedAt:            time.Now().UTC(),
	}
	require.NoError(t, repo.SaveInstance(ctx, instance))
	assert.Equal(t, int64(1), instance.Version)

	// Simulate two readers of the same version.
	first, err := repo.InstanceByID(ctx, "inst-1")
	require.NoError(t, err)

	second, err := repo.InstanceByID(ctx, "inst-1")
	require.NoError(t, err)

	first.CurrentStepCode = "close"
	require.NoError(t, repo.SaveInstance(ctx, first))

	second.CurrentStepCode = "somewhere-else"
	err = repo.SaveInstance(ctx, second)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)

	// The retrying caller observes the advanced state.
	current, err := repo.InstanceByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "close", current.CurrentStepCode)
}

func TestAppendHistoryWithoutVersionBump(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	repo := p.InstanceRepository()

	instance := &models.WorkflowInstance{ID: "inst-2", Status: models.InstanceStatusRunning}
	require.NoError(t, repo.SaveInstance(ctx, instance))

	entry := models.HistoryEntry{
		Kind:     models.HistoryKindActionWarning,
		StepCode: "intake",
		Detail:   "webhook failed",
		At:       time.Now().UTC(),
	}
	require.NoError(t, repo.AppendHistory(ctx, "inst-2", entry))

	loaded, err := repo.InstanceByID(ctx, "inst-2")
	require.NoError(t, err)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, models.HistoryKindActionWarning, loaded.History[0].Kind)
	assert.Equal(t, instance.Version, loaded.Version, "history append must not bump the version")
}

func TestRunningInstances(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	repo := p.InstanceRepository()

	for _, tc := range []struct {
		id     string
		status models.InstanceStatus
	}{
		{"a", models.InstanceStatusRunning},
		{"b", models.InstanceStatusCompleted},
		{"c", models.InstanceStatusBlocked},
		{"d", models.InstanceStatusCancelled},
	} {
		require.NoError(t, repo.SaveInstance(ctx, &models.WorkflowInstance{ID: tc.id, Status: tc.status}))
	}

	running, err := repo.RunningInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, running, 2)
}
