// Package triggers selects the triggers matching a step lifecycle event and
// dispatches their actions through the action registry.
package triggers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/template"
)

const defaultActionTimeout = 30 * time.Second

// Evaluator fires the active triggers of a step for one event. Actions run
// in authored order and are independent side effects: a failure is recorded
// in the result list and never stops the remaining actions.
type Evaluator struct {
	registry      *registry.Registry
	logger        *slog.Logger
	actionTimeout time.Duration
}

func NewEvaluator(reg *registry.Registry, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		registry:      reg,
		logger:        logger.With("module", "trigger_evaluator"),
		actionTimeout: defaultActionTimeout,
	}
}

// Fire executes every action of every active trigger on step whose event
// matches. Inactive triggers are skipped entirely. Config strings are
// template-resolved against the instance context before dispatch.
func (e *Evaluator) Fire(ctx context.Context, step *models.WorkflowStep, event models.StepEvent, executionCtx models.ExecutionContext) []models.ActionResult {
	var results []models.ActionResult

	for _, trigger := range step.Triggers {
		if !trigger.Matches(event) {
			continue
		}

		logger := e.logger.With(
			"trigger_id", trigger.TriggerID,
			"step_code", step.Code,
			"event", event,
			"instance_id", executionCtx.InstanceID,
		)
		logger.Info("Firing trigger", "action_count", len(trigger.Actions))

		for _, action := range trigger.Actions {
			results = append(results, e.dispatch(ctx, action, executionCtx, logger))
		}
	}

	return results
}

func (e *Evaluator) dispatch(ctx context.Context, action *models.Action, executionCtx models.ExecutionContext, logger *slog.Logger) models.ActionResult {
	logger = logger.With("action_id", action.ActionID, "action_type", action.Type)

	result := models.ActionResult{
		ActionID: action.ActionID,
		Type:     action.Type,
	}

	config := template.ResolveConfig(action.Config, executionCtx.Context)

	executor, err := e.registry.CreateAction(action.Type, config)
	if err != nil {
		logger.Warn("Failed to create action executor", "error", err)
		result.Status = models.ActionStatusFailed
		result.Error = err.Error()

		return result
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	output, err := executor.Execute(actionCtx, executionCtx, logger)
	if err != nil {
		logger.Warn("Action failed", "error", err)
		result.Status = models.ActionStatusFailed
		result.Error = err.Error()
		result.Retryable = isRetryable(err)

		return result
	}

	logger.Info("Action completed")
	result.Status = models.ActionStatusOK
	result.Output = output

	return result
}
