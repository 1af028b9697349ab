// Package updateentity provides the update_entity action executor.
package updateentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
)

type ActionFactory struct {
	updater actions.EntityUpdater
}

func NewActionFactory(updater actions.EntityUpdater) *ActionFactory {
	return &ActionFactory{updater: updater}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeUpdateEntity
}

func (f *ActionFactory) Create(config map[string]any) (actions.Executor, error) {
	entityType, _ := config["entityType"].(string)
	field, _ := config["field"].(string)

	if entityType == "" {
		return nil, errors.New("update_entity requires 'entityType'")
	}

	if field == "" {
		return nil, errors.New("update_entity requires 'field'")
	}

	value, ok := config["value"]
	if !ok {
		return nil, errors.New("update_entity requires 'value'")
	}

	return &UpdateEntityAction{
		EntityType: entityType,
		Field:      field,
		Value:      value,
		updater:    f.updater,
	}, nil
}

// UpdateEntityAction applies a single-field update to a referenced business
// entity through the updater port.
type UpdateEntityAction struct {
	EntityType string
	Field      string
	Value      any

	updater actions.EntityUpdater
}

func (a *UpdateEntityAction) Execute(ctx context.Context, _ models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "update_entity", "entity_type", a.EntityType, "field", a.Field)

	if err := a.updater.Update(ctx, a.EntityType, a.Field, a.Value); err != nil {
		return nil, fmt.Errorf("entity update failed: %w", err)
	}

	logger.Info("Entity field updated")

	return map[string]any{"entityType": a.EntityType, "field": a.Field}, nil
}
