package file

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// InstanceRepository stores one JSON file per workflow instance. The
// repository mutex makes the version check and write atomic within this
// process, which is the scope a file backend serves.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (r *InstanceRepository) path(id string) string {
	return filepath.Join(instancesDir(r.root), id+".json")
}

func (r *InstanceRepository) Instances(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.readAll()
}

func (r *InstanceRepository) InstanceByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read(id)
}

func (r *InstanceRepository) RunningInstances(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances, err := r.readAll()
	if err != nil {
		return nil, err
	}

	running := make([]*models.WorkflowInstance, 0, len(instances))

	for _, instance := range instances {
		if instance.Status == models.InstanceStatusRunning || instance.Status == models.InstanceStatusBlocked {
			running = append(running, instance)
		}
	}

	return running, nil
}

// SaveInstance writes the instance if the stored version matches the version
// the caller loaded, then increments it. A mismatch returns
// persistence.ErrVersionConflict.
func (r *InstanceRepository) SaveInstance(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(instance.ID)

	switch {
	case err == nil:
		if stored.Version != instance.Version {
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
		}
	case errors.Is(err, persistence.ErrInstanceNotFound):
		// First write.
	default:
		return err
	}

	instance.Version++
	instance.UpdatedAt = time.Now().UTC()

	return r.write(instance)
}

func (r *InstanceRepository) AppendHistory(_ context.Context, instanceID string, entry models.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.read(instanceID)
	if err != nil {
		return err
	}

	instance.History = append(instance.History, entry)
	instance.UpdatedAt = time.Now().UTC()

	return r.write(instance)
}

func (r *InstanceRepository) read(id string) (*models.WorkflowInstance, error) {
	data, err := os.ReadFile(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewStoreError("InstanceByID", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, err
	}

	var instance models.WorkflowInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, persistence.NewStoreError("InstanceByID", id, err)
	}

	return &instance, nil
}

func (r *InstanceRepository) readAll() ([]*models.WorkflowInstance, error) {
	entries, err := os.ReadDir(instancesDir(r.root))
	if err != nil {
		return nil, persistence.NewStoreError("Instances", "", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		instance, err := r.read(entry.Name()[:len(entry.Name())-len(".json")])
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	return instances, nil
}

func (r *InstanceRepository) write(instance *models.WorkflowInstance) error {
	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return persistence.NewStoreError("SaveInstance", instance.ID, err)
	}

	if err := os.WriteFile(r.path(instance.ID), data, 0o644); err != nil {
		return persistence.NewStoreError("SaveInstance", instance.ID, err)
	}

	return nil
}
