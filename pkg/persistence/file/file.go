// Package file provides file-based persistence for workflow definitions and
// instances. It is meant for development and tests, not for shared
// deployments.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/stepflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory tree:
// <root>/definitions/<id>.json and <root>/instances/<id>.json.
type Persistence struct {
	root           string
	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
}

// NewPersistence creates a file persistence rooted at root. A "file://"
// prefix is tolerated.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{definitionsDir(cleanRoot), instancesDir(cleanRoot)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return &Persistence{
		root:           cleanRoot,
		definitionRepo: NewDefinitionRepository(cleanRoot),
		instanceRepo:   NewInstanceRepository(cleanRoot),
	}, nil
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func definitionsDir(root string) string {
	return root + "/definitions"
}

func instancesDir(root string) string {
	return root + "/instances"
}
