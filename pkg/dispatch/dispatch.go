// Package dispatch moves step events from the workflow runner to the action
// workers over a message channel. Action execution never blocks a step
// transition: the runner publishes and moves on, the worker fires the
// triggers.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/stepflow/pkg/models"
)

// StepEventsTopic carries one message per step lifecycle event.
const StepEventsTopic = "stepflow.step-events"

// Dispatcher publishes step events for asynchronous trigger evaluation.
type Dispatcher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewDispatcher(publisher message.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logger.With("module", "dispatch"),
	}
}

// Publish serializes the execution context and hands it to the channel. A
// publish failure is surfaced to the caller but must not fail the step
// transition that produced it.
func (d *Dispatcher) Publish(ctx context.Context, executionCtx models.ExecutionContext) error {
	payload, err := json.Marshal(executionCtx)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("key", executionCtx.InstanceID) // Kafka partitioning key
	msg.Metadata.Set("instance_id", executionCtx.InstanceID)
	msg.Metadata.Set("step_code", executionCtx.StepCode)
	msg.Metadata.Set("event", string(executionCtx.Event))

	d.logger.DebugContext(ctx, "Publishing step event",
		"instance_id", executionCtx.InstanceID,
		"step_code", executionCtx.StepCode,
		"event", executionCtx.Event)

	return d.publisher.Publish(StepEventsTopic, msg)
}
