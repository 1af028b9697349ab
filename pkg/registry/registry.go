// Package registry holds the action executor factories. The set of action
// types is closed; factories are registered once at startup and resolved per
// invocation.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.ActionType]actions.Factory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[models.ActionType]actions.Factory),
	}
}

// RegisterAction registers a factory under its action type. Registering the
// same type twice replaces the earlier factory.
func (r *Registry) RegisterAction(factory actions.Factory) {
	r.factories[factory.ID()] = factory
	r.logger.Debug("Registered action factory", "action_type", factory.ID())
}

// CreateAction builds an executor for actionType with the given (already
// template-resolved) config.
func (r *Registry) CreateAction(actionType models.ActionType, config map[string]any) (actions.Executor, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type %q not registered", actionType)
	}

	return factory.Create(config)
}

// IsRegistered reports whether an executor exists for actionType.
func (r *Registry) IsRegistered(actionType models.ActionType) bool {
	_, ok := r.factories[actionType]

	return ok
}
