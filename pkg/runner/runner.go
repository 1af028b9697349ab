// Package runner drives workflow instances through their step graph. It is
// the only writer of instance state: every transition happens under a
// per-instance lock and an optimistic version check at save time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dukex/stepflow/pkg/decision"
	"github.com/dukex/stepflow/pkg/dispatch"
	"github.com/dukex/stepflow/pkg/graph"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
)

var (
	// ErrConflict is returned when an outcome submission loses the race for
	// an instance. The caller must re-read the instance and decide whether
	// its outcome still applies.
	ErrConflict = errors.New("concurrent modification of workflow instance")

	// ErrInstanceNotActive is returned for outcome submissions against
	// completed, failed or cancelled instances.
	ErrInstanceNotActive = errors.New("workflow instance is not active")

	// ErrDefinitionNotActive is returned when starting an instance of a
	// draft or archived definition.
	ErrDefinitionNotActive = errors.New("workflow definition is not active")

	// ErrCannotSkip is returned for a skip outcome on a step that does not
	// allow skipping.
	ErrCannotSkip = errors.New("step does not allow skipping")
)

// DefinitionInvalidError carries the graph violations that blocked a start.
type DefinitionInvalidError struct {
	DefinitionID string
	Violations   []graph.ValidationError
}

func (e *DefinitionInvalidError) Error() string {
	return fmt.Sprintf("definition %s has %d graph violations", e.DefinitionID, len(e.Violations))
}

// WorkflowRunner advances instances through their definitions. Trigger
// actions are published to the dispatcher and run elsewhere; the runner
// never waits for them.
type WorkflowRunner struct {
	persistence persistence.Persistence
	dispatcher  *dispatch.Dispatcher
	decisions   *decision.Resolver
	locks       *instanceLocks
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewWorkflowRunner(p persistence.Persistence, dispatcher *dispatch.Dispatcher, tracer trace.Tracer, logger *slog.Logger) *WorkflowRunner {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("stepflow")
	}

	return &WorkflowRunner{
		persistence: p,
		dispatcher:  dispatcher,
		decisions:   decision.NewResolver(logger),
		locks:       newInstanceLocks(),
		tracer:      tracer,
		logger:      logger.With("module", "runner"),
	}
}

// Start creates an instance of an active definition at its entry step and
// fires on_step_start. A definition whose graph does not validate cannot be
// started.
func (r *WorkflowRunner) Start(ctx context.Context, definitionID string, initialContext map[string]any) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.start",
		attribute.String(otelhelper.DefinitionIDKey, definitionID))
	defer span.End()

	definition, err := r.persistence.DefinitionRepository().DefinitionByID(ctx, definitionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if definition.Status != models.DefinitionStatusActive {
		return nil, fmt.Errorf("definition %s: %w", definitionID, ErrDefinitionNotActive)
	}

	stepGraph := graph.New(definition.Steps)
	if violations := stepGraph.Validate(); len(violations) > 0 {
		err := &DefinitionInvalidError{DefinitionID: definitionID, Violations: violations}
		otelhelper.SetError(span, err)

		return nil, err
	}

	entry, ok := stepGraph.Entry()
	if !ok {
		return nil, fmt.Errorf("definition %s has no entry step", definitionID)
	}

	if initialContext == nil {
		initialContext = map[string]any{}
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:                   uuid.NewString(),
		WorkflowDefinitionID: definitionID,
		CurrentStepCode:      entry.Code,
		Status:               models.InstanceStatusRunning,
		Context:              initialContext,
		History: []models.HistoryEntry{{
			Kind:     models.HistoryKindTransition,
			StepCode: entry.Code,
			Event:    models.StepEventStart,
			At:       now,
		}},
		CurrentStepStartedAt: now,
		CreatedAt:            now,
	}

	if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))
	r.logger.InfoContext(ctx, "Workflow instance started",
		"instance_id", instance.ID,
		"definition_id", definitionID,
		"entry_step", entry.Code)

	r.publish(ctx, instance, entry.Code, models.StepEventStart)

	return instance, nil
}

// SubmitOutcome records the actor's outcome for the instance's current step
// and advances the instance. Concurrent submissions for the same instance
// are rejected with ErrConflict.
func (r *WorkflowRunner) SubmitOutcome(ctx context.Context, instanceID string, outcome models.Outcome, contextPatch map[string]any) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.submit_outcome",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.OutcomeKey, string(outcome)))
	defer span.End()

	unlock, ok := r.locks.tryLock(instanceID)
	if !ok {
		otelhelper.SetError(span, ErrConflict)

		return fmt.Errorf("instance %s: %w", instanceID, ErrConflict)
	}
	defer unlock()

	err := r.submitOutcome(ctx, instanceID, outcome, contextPatch)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			err = fmt.Errorf("instance %s: %w", instanceID, ErrConflict)
		}

		otelhelper.SetError(span, err)
	}

	return err
}

func (r *WorkflowRunner) submitOutcome(ctx context.Context, instanceID string, outcome models.Outcome, contextPatch map[string]any) error {
	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Terminal() {
		return fmt.Errorf("instance %s is %s: %w", instanceID, instance.Status, ErrInstanceNotActive)
	}

	definition, stepGraph, err := r.loadGraph(ctx, instance.WorkflowDefinitionID)
	if err != nil {
		return err
	}

	step, ok := stepGraph.Step(instance.CurrentStepCode)
	if !ok {
		return fmt.Errorf("step %s not found in definition %s", instance.CurrentStepCode, definition.ID)
	}

	if outcome == models.OutcomeSkip && !step.CanSkip {
		return fmt.Errorf("step %s: %w", step.Code, ErrCannotSkip)
	}

	if contextPatch != nil {
		if instance.Context == nil {
			instance.Context = map[string]any{}
		}

		if err := mergo.Merge(&instance.Context, contextPatch, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge context patch: %w", err)
		}
	}

	now := time.Now().UTC()
	event := outcome.Event()
	currentStep := instance.CurrentStepCode

	instance.History = append(instance.History, models.HistoryEntry{
		Kind:     models.HistoryKindTransition,
		StepCode: currentStep,
		Event:    event,
		Outcome:  outcome,
		At:       now,
	})

	logger := r.logger.With("instance_id", instanceID, "step_code", currentStep, "outcome", outcome)

	// Required failures terminate the instance.
	if outcome == models.OutcomeFail && step.IsRequired && !step.CanSkip {
		instance.Status = models.InstanceStatusFailed

		if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
			return err
		}

		logger.WarnContext(ctx, "Workflow instance failed on required step")
		r.publish(ctx, instance, currentStep, event)

		return nil
	}

	next, blocked, err := r.nextStep(ctx, step, stepGraph, instance)
	if err != nil {
		return err
	}

	if blocked != nil {
		instance.Status = models.InstanceStatusBlocked
		instance.History = append(instance.History, models.HistoryEntry{
			Kind:     models.HistoryKindTransition,
			StepCode: currentStep,
			Detail:   blocked.Error(),
			At:       now,
		})

		if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
			return err
		}

		logger.WarnContext(ctx, "Workflow instance blocked", "reason", blocked)
		r.publish(ctx, instance, currentStep, event)

		return nil
	}

	if next == "" {
		instance.Status = models.InstanceStatusCompleted

		if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
			return err
		}

		logger.InfoContext(ctx, "Workflow instance completed")
		r.publish(ctx, instance, currentStep, event)

		return nil
	}

	instance.Status = models.InstanceStatusRunning
	instance.CurrentStepCode = next
	instance.CurrentStepStartedAt = now
	instance.History = append(instance.History, models.HistoryEntry{
		Kind:     models.HistoryKindTransition,
		StepCode: next,
		Event:    models.StepEventStart,
		At:       now,
	})

	if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Workflow instance advanced", "next_step", next)

	r.publish(ctx, instance, currentStep, event)
	r.publish(ctx, instance, next, models.StepEventStart)

	return nil
}

// nextStep resolves the outgoing transition of the current step. An empty
// code with no error means the workflow is finished. A non-nil blocked error
// means the instance cannot advance without manual intervention.
func (r *WorkflowRunner) nextStep(ctx context.Context, step *models.WorkflowStep, stepGraph *graph.StepGraph, instance *models.WorkflowInstance) (next string, blocked error, err error) {
	if step.IsDecision() {
		target, option, resolveErr := r.decisions.Resolve(step, instance.Context)

		var manual *decision.ManualChoiceError

		switch {
		case errors.Is(resolveErr, decision.ErrNoMatch), errors.As(resolveErr, &manual):
			return "", resolveErr, nil
		case resolveErr != nil:
			return "", nil, resolveErr
		}

		r.logger.DebugContext(ctx, "Decision resolved",
			"instance_id", instance.ID,
			"step_code", step.Code,
			"option", option.Label)

		if target != models.NextStepAuto {
			return target, nil, nil
		}

		next, _ := stepGraph.NextAuto(step.Code)

		return next, nil, nil
	}

	if target, ok := step.ExplicitNext(); ok {
		return target, nil, nil
	}

	next, _ = stepGraph.NextAuto(step.Code)

	return next, nil, nil
}

// OnOverdueTick fires on_overdue for the instance's current step when the
// step has been open longer than its estimated duration. The instance does
// not move.
func (r *WorkflowRunner) OnOverdueTick(ctx context.Context, instanceID string) error {
	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status != models.InstanceStatusRunning {
		return nil
	}

	_, stepGraph, err := r.loadGraph(ctx, instance.WorkflowDefinitionID)
	if err != nil {
		return err
	}

	step, ok := stepGraph.Step(instance.CurrentStepCode)
	if !ok {
		return fmt.Errorf("step %s not found in definition %s", instance.CurrentStepCode, instance.WorkflowDefinitionID)
	}

	if step.EstimatedDurationHours <= 0 {
		return nil
	}

	deadline := instance.CurrentStepStartedAt.Add(time.Duration(step.EstimatedDurationHours) * time.Hour)
	if time.Now().UTC().Before(deadline) {
		return nil
	}

	r.logger.InfoContext(ctx, "Step overdue",
		"instance_id", instanceID,
		"step_code", step.Code,
		"started_at", instance.CurrentStepStartedAt)

	r.publish(ctx, instance, step.Code, models.StepEventOverdue)

	return nil
}

// Cancel marks the instance cancelled. In-flight actions are left to finish;
// their results are discarded by the dispatch worker once the status is
// terminal.
func (r *WorkflowRunner) Cancel(ctx context.Context, instanceID string) error {
	unlock, ok := r.locks.tryLock(instanceID)
	if !ok {
		return fmt.Errorf("instance %s: %w", instanceID, ErrConflict)
	}
	defer unlock()

	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Terminal() {
		return fmt.Errorf("instance %s is %s: %w", instanceID, instance.Status, ErrInstanceNotActive)
	}

	instance.Status = models.InstanceStatusCancelled
	instance.History = append(instance.History, models.HistoryEntry{
		Kind:     models.HistoryKindTransition,
		StepCode: instance.CurrentStepCode,
		Detail:   "cancelled",
		At:       time.Now().UTC(),
	})

	if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
		if persistence.IsVersionConflict(err) {
			return fmt.Errorf("instance %s: %w", instanceID, ErrConflict)
		}

		return err
	}

	r.logger.InfoContext(ctx, "Workflow instance cancelled", "instance_id", instanceID)

	return nil
}

// History returns the instance's ordered audit log.
func (r *WorkflowRunner) History(ctx context.Context, instanceID string) ([]models.HistoryEntry, error) {
	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	return instance.History, nil
}

func (r *WorkflowRunner) loadGraph(ctx context.Context, definitionID string) (*models.WorkflowDefinition, *graph.StepGraph, error) {
	definition, err := r.persistence.DefinitionRepository().DefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, nil, err
	}

	return definition, graph.New(definition.Steps), nil
}

func (r *WorkflowRunner) publish(ctx context.Context, instance *models.WorkflowInstance, stepCode string, event models.StepEvent) {
	if r.dispatcher == nil {
		return
	}

	err := r.dispatcher.Publish(ctx, models.ExecutionContext{
		InstanceID:           instance.ID,
		WorkflowDefinitionID: instance.WorkflowDefinitionID,
		StepCode:             stepCode,
		Event:                event,
		Context:              instance.Context,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish step event",
			"error", err,
			"instance_id", instance.ID,
			"step_code", stepCode,
			"event", event)
	}
}
