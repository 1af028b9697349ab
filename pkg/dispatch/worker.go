package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/triggers"
)

// Worker consumes step events and fires the matching triggers. Action
// failures are recorded on the instance history as warnings; they never
// affect the instance's step position.
type Worker struct {
	subscriber  message.Subscriber
	persistence persistence.Persistence
	evaluator   *triggers.Evaluator
	logger      *slog.Logger
}

func NewWorker(subscriber message.Subscriber, p persistence.Persistence, evaluator *triggers.Evaluator, logger *slog.Logger) *Worker {
	return &Worker{
		subscriber:  subscriber,
		persistence: p,
		evaluator:   evaluator,
		logger:      logger.With("module", "dispatch-worker"),
	}
}

// Start subscribes to the step events topic and processes messages until the
// context is cancelled. Every message is acked: a step event that cannot be
// processed is logged and dropped rather than redelivered forever.
func (w *Worker) Start(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, StepEventsTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", StepEventsTopic, err)
	}

	w.logger.InfoContext(ctx, "Step event worker started", "topic", StepEventsTopic)

	go func() {
		for msg := range messages {
			w.handle(ctx, msg)
			msg.Ack()
		}
	}()

	return nil
}

func (w *Worker) handle(ctx context.Context, msg *message.Message) {
	var executionCtx models.ExecutionContext
	if err := json.Unmarshal(msg.Payload, &executionCtx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to unmarshal step event", "error", err, "message_id", msg.UUID)

		return
	}

	logger := w.logger.With(
		"instance_id", executionCtx.InstanceID,
		"step_code", executionCtx.StepCode,
		"event", executionCtx.Event,
	)

	instance, err := w.persistence.InstanceRepository().InstanceByID(ctx, executionCtx.InstanceID)
	if err != nil {
		logger.WarnContext(ctx, "Dropping step event for unknown instance", "error", err)

		return
	}

	if instance.Terminal() {
		logger.DebugContext(ctx, "Dropping step event for terminal instance", "status", instance.Status)

		return
	}

	step, err := w.lookupStep(ctx, executionCtx)
	if err != nil {
		logger.WarnContext(ctx, "Dropping step event", "error", err)

		return
	}

	results := w.evaluator.Fire(ctx, step, executionCtx.Event, executionCtx)

	for _, result := range results {
		if !result.Failed() {
			continue
		}

		entry := models.HistoryEntry{
			Kind:     models.HistoryKindActionWarning,
			StepCode: executionCtx.StepCode,
			Event:    executionCtx.Event,
			Detail:   fmt.Sprintf("action %s (%s) failed: %s", result.ActionID, result.Type, result.Error),
			At:       time.Now().UTC(),
		}

		if err := w.persistence.InstanceRepository().AppendHistory(ctx, executionCtx.InstanceID, entry); err != nil {
			logger.ErrorContext(ctx, "Failed to record action warning", "error", err, "action_id", result.ActionID)
		}
	}
}

func (w *Worker) lookupStep(ctx context.Context, executionCtx models.ExecutionContext) (*models.WorkflowStep, error) {
	definition, err := w.persistence.DefinitionRepository().DefinitionByID(ctx, executionCtx.WorkflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", executionCtx.WorkflowDefinitionID, err)
	}

	for _, step := range definition.Steps {
		if step.Code == executionCtx.StepCode {
			return step, nil
		}
	}

	return nil, fmt.Errorf("step %s not found in definition %s", executionCtx.StepCode, definition.ID)
}
