// Package persistence provides the storage abstraction for workflow
// definitions and instances.
package persistence

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// DefinitionRepository stores workflow definitions. Definitions are only
// written by the authoring surface; the engine reads committed versions.
type DefinitionRepository interface {
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error
	DeleteDefinition(ctx context.Context, id string) error
}

// InstanceRepository stores workflow instances. SaveInstance enforces
// optimistic concurrency: the write succeeds only when the stored version
// matches the version the caller loaded; the stored version is then
// incremented. AppendHistory adds an audit record without a version bump so
// the async action path never races the runner.
type InstanceRepository interface {
	Instances(ctx context.Context) ([]*models.WorkflowInstance, error)
	InstanceByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	RunningInstances(ctx context.Context) ([]*models.WorkflowInstance, error)
	SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error
	AppendHistory(ctx context.Context, instanceID string, entry models.HistoryEntry) error
}

// Persistence aggregates the repositories of one backend.
type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
