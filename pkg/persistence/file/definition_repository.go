package file

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// DefinitionRepository stores one JSON file per workflow definition.
type DefinitionRepository struct {
	root string
	mu   sync.RWMutex
}

func NewDefinitionRepository(root string) *DefinitionRepository {
	return &DefinitionRepository{root: root}
}

func (r *DefinitionRepository) path(id string) string {
	return filepath.Join(definitionsDir(r.root), id+".json")
}

func (r *DefinitionRepository) Definitions(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(definitionsDir(r.root))
	if err != nil {
		return nil, persistence.NewStoreError("Definitions", "", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		definition, err := readDefinition(filepath.Join(definitionsDir(r.root), entry.Name()))
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	return definitions, nil
}

func (r *DefinitionRepository) DefinitionByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definition, err := readDefinition(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewStoreError("DefinitionByID", id, persistence.ErrDefinitionNotFound)
	}

	return definition, err
}

func (r *DefinitionRepository) SaveDefinition(_ context.Context, definition *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(definition, "", "  ")
	if err != nil {
		return persistence.NewStoreError("SaveDefinition", definition.ID, err)
	}

	if err := os.WriteFile(r.path(definition.ID), data, 0o644); err != nil {
		return persistence.NewStoreError("SaveDefinition", definition.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) DeleteDefinition(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewStoreError("DeleteDefinition", id, persistence.ErrDefinitionNotFound)
	}

	return err
}

func readDefinition(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var definition models.WorkflowDefinition
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, persistence.NewStoreError("readDefinition", path, err)
	}

	return &definition, nil
}
