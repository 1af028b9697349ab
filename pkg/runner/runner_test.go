package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/dispatch"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/file"
)

// capturePublisher records every published step event.
type capturePublisher struct {
	mu       sync.Mutex
	messages []models.ExecutionContext
}

func (p *capturePublisher) Publish(_ string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, msg := range messages {
		var executionCtx models.ExecutionContext
		if err := json.Unmarshal(msg.Payload, &executionCtx); err != nil {
			return err
		}

		p.messages = append(p.messages, executionCtx)
	}

	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) events() []models.ExecutionContext {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]models.ExecutionContext(nil), p.messages...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T) (*WorkflowRunner, *file.Persistence, *capturePublisher) {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	publisher := &capturePublisher{}
	dispatcher := dispatch.NewDispatcher(publisher, testLogger())

	return NewWorkflowRunner(p, dispatcher, nil, testLogger()), p, publisher
}

func saveDefinition(t *testing.T, p *file.Persistence, definition *models.WorkflowDefinition) {
	t.Helper()
	require.NoError(t, p.DefinitionRepository().SaveDefinition(context.Background(), definition))
}

// threeStepDefinition builds the task -> decision -> task shape: the
// decision routes high amounts to a manager approval, everything else to
// fulfilment.
func threeStepDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:           "def-1",
		Name:         "Purchase approval",
		Code:         "purchase_approval",
		TriggerEvent: models.TriggerEventManual,
		Status:       models.DefinitionStatusActive,
		Steps: []*models.WorkflowStep{
			{Code: "intake", StepNumber: 1, StepType: models.StepTypeTask, IsRequired: true},
			{
				Code:       "route",
				StepNumber: 2,
				StepType:   models.StepTypeDecision,
				DecisionOptions: []models.DecisionOption{
					{Label: "Needs approval", NextStep: "manager_approval", Condition: "amount > 100"},
					{Label: "Auto fulfil", NextStep: "fulfil"},
				},
			},
			{Code: "manager_approval", StepNumber: 3, StepType: models.StepTypeApproval, NextStepOnComplete: "fulfil"},
			{Code: "fulfil", StepNumber: 4, StepType: models.StepTypeTask},
		},
	}
}

func TestStartCreatesInstanceAtEntryStep(t *testing.T) {
	r, p, publisher := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": 150})
	require.NoError(t, err)

	assert.Equal(t, "intake", instance.CurrentStepCode)
	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	require.Len(t, instance.History, 1)
	assert.Equal(t, models.StepEventStart, instance.History[0].Event)

	events := publisher.events()
	require.Len(t, events, 1)
	assert.Equal(t, models.StepEventStart, events[0].Event)
	assert.Equal(t, "intake", events[0].StepCode)
}

func TestStartRejectsInactiveDefinition(t *testing.T) {
	r, p, _ := newTestRunner(t)

	definition := threeStepDefinition()
	definition.Status = models.DefinitionStatusDraft
	saveDefinition(t, p, definition)

	_, err := r.Start(context.Background(), "def-1", nil)
	assert.ErrorIs(t, err, ErrDefinitionNotActive)
}

func TestStartRejectsInvalidGraph(t *testing.T) {
	r, p, _ := newTestRunner(t)

	definition := threeStepDefinition()
	definition.Steps[0].NextStepOnComplete = "nowhere"
	saveDefinition(t, p, definition)

	_, err := r.Start(context.Background(), "def-1", nil)

	var invalid *DefinitionInvalidError

	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Violations)
}

func TestSubmitOutcomeRoutesDecisionByAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   int
		wantStep string
	}{
		{"high amount goes to approval", 150, "manager_approval"},
		{"low amount falls through to fulfilment", 50, "fulfil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, p, _ := newTestRunner(t)
			saveDefinition(t, p, threeStepDefinition())

			instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": tt.amount})
			require.NoError(t, err)

			// intake -> route
			require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))
			// route -> decision target
			require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))

			current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStep, current.CurrentStepCode)
			assert.Equal(t, models.InstanceStatusRunning, current.Status)
		})
	}
}

func TestSubmitOutcomeCompletesAtLastStep(t *testing.T) {
	r, p, publisher := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": 50})
	require.NoError(t, err)

	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))
	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))
	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, current.Status)

	var completeEvents int

	for _, event := range publisher.events() {
		if event.Event == models.StepEventComplete {
			completeEvents++
		}
	}

	assert.Equal(t, 3, completeEvents)

	err = r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil)
	assert.ErrorIs(t, err, ErrInstanceNotActive)
}

func TestSubmitOutcomeExplicitOverride(t *testing.T) {
	r, p, _ := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": 150})
	require.NoError(t, err)

	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))
	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))

	// manager_approval declares nextStepOnComplete = fulfil, skipping nothing
	// here but exercising the override path.
	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeApprove, nil))

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "fulfil", current.CurrentStepCode)
}

func TestSubmitOutcomeRequiredFailureTerminates(t *testing.T) {
	r, p, publisher := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", nil)
	require.NoError(t, err)

	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeFail, nil))

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, current.Status)
	assert.Equal(t, "intake", current.CurrentStepCode)

	var failEvents int

	for _, event := range publisher.events() {
		if event.Event == models.StepEventFail {
			failEvents++
		}
	}

	assert.Equal(t, 1, failEvents, "on_step_fail must still fire for the failing step")
}

func TestSubmitOutcomeNonRequiredFailureAdvances(t *testing.T) {
	r, p, _ := newTestRunner(t)

	definition := &models.WorkflowDefinition{
		ID:           "def-2",
		Name:         "Optional chores",
		Code:         "optional_chores",
		TriggerEvent: models.TriggerEventManual,
		Status:       models.DefinitionStatusActive,
		Steps: []*models.WorkflowStep{
			{Code: "optional", StepNumber: 1, StepType: models.StepTypeTask, IsRequired: false},
			{Code: "wrap_up", StepNumber: 2, StepType: models.StepTypeTask},
		},
	}
	saveDefinition(t, p, definition)

	instance, err := r.Start(context.Background(), "def-2", nil)
	require.NoError(t, err)

	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeFail, nil))

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "wrap_up", current.CurrentStepCode)
	assert.Equal(t, models.InstanceStatusRunning, current.Status)
}

func TestSubmitOutcomeSkipRequiresCanSkip(t *testing.T) {
	r, p, _ := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", nil)
	require.NoError(t, err)

	err = r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeSkip, nil)
	assert.ErrorIs(t, err, ErrCannotSkip)
}

func TestSubmitOutcomeBlocksOnUnresolvableDecision(t *testing.T) {
	r, p, _ := newTestRunner(t)

	definition := threeStepDefinition()
	// Both options conditioned, neither matches an empty context.
	definition.Steps[1].DecisionOptions = []models.DecisionOption{
		{Label: "High", NextStep: "manager_approval", Condition: "amount > 100"},
		{Label: "Low", NextStep: "fulfil", Condition: "amount < 0"},
	}
	saveDefinition(t, p, definition)

	instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": 50})
	require.NoError(t, err)

	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))
	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusBlocked, current.Status)
	assert.Equal(t, "route", current.CurrentStepCode, "a blocked instance stays at the decision step")

	// Manual intervention: patch the context so an option matches and
	// resubmit.
	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, map[string]any{"amount": 200}))

	current, err = p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, current.Status)
	assert.Equal(t, "manager_approval", current.CurrentStepCode)
}

func TestSubmitOutcomeMergesContextPatch(t *testing.T) {
	r, p, _ := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", map[string]any{
		"amount":    50,
		"requester": map[string]any{"email": "a@b.c"},
	})
	require.NoError(t, err)

	err = r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, map[string]any{
		"amount": 150,
		"notes":  "urgent",
	})
	require.NoError(t, err)

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(150), current.Context["amount"], "the patch overrides existing keys")
	assert.Equal(t, "urgent", current.Context["notes"])
	assert.NotNil(t, current.Context["requester"], "untouched keys survive the merge")
}

func TestConcurrentSubmissionsConflict(t *testing.T) {
	r, p, _ := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": 50})
	require.NoError(t, err)

	const submitters = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		finished  int
	)

	for range submitters {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			case errors.Is(err, ErrInstanceNotActive):
				// The workflow completed under earlier submissions.
				finished++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, submitters, succeeded+conflicts+finished)

	// The loser re-reads and observes the advanced state.
	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "intake", current.CurrentStepCode)
}

func TestCancelStopsInstance(t *testing.T) {
	r, p, _ := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", nil)
	require.NoError(t, err)

	require.NoError(t, r.Cancel(context.Background(), instance.ID))

	current, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, current.Status)

	err = r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil)
	assert.ErrorIs(t, err, ErrInstanceNotActive)

	err = r.Cancel(context.Background(), instance.ID)
	assert.ErrorIs(t, err, ErrInstanceNotActive)
}

func TestHistoryAccumulatesTransitions(t *testing.T) {
	r, p, _ := newTestRunner(t)
	saveDefinition(t, p, threeStepDefinition())

	instance, err := r.Start(context.Background(), "def-1", map[string]any{"amount": 50})
	require.NoError(t, err)

	require.NoError(t, r.SubmitOutcome(context.Background(), instance.ID, models.OutcomeComplete, nil))

	history, err := r.History(context.Background(), instance.ID)
	require.NoError(t, err)
	// start(intake), complete(intake), start(route)
	require.Len(t, history, 3)
	assert.Equal(t, "intake", history[0].StepCode)
	assert.Equal(t, models.StepEventStart, history[0].Event)
	assert.Equal(t, models.OutcomeComplete, history[1].Outcome)
	assert.Equal(t, "route", history[2].StepCode)
}

func TestOnOverdueTickFiresWhenEstimateExceeded(t *testing.T) {
	r, p, publisher := newTestRunner(t)

	definition := threeStepDefinition()
	definition.Steps[0].EstimatedDurationHours = 1
	saveDefinition(t, p, definition)

	instance, err := r.Start(context.Background(), "def-1", nil)
	require.NoError(t, err)

	// Not overdue yet.
	require.NoError(t, r.OnOverdueTick(context.Background(), instance.ID))
	assert.Len(t, publisher.events(), 1, "only the start event so far")

	// Backdate the step start past the estimate.
	stored, err := p.InstanceRepository().InstanceByID(context.Background(), instance.ID)
	require.NoError(t, err)
	stored.CurrentStepStartedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, p.InstanceRepository().SaveInstance(context.Background(), stored))

	require.NoError(t, r.OnOverdueTick(context.Background(), instance.ID))

	events := publisher.events()
	require.Len(t, events, 2)
	assert.Equal(t, models.StepEventOverdue, events[1].Event)
	assert.Equal(t, "intake", events[1].StepCode)
}
