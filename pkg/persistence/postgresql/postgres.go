// Package postgresql provides PostgreSQL persistence for workflow
// definitions and instances.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
)

var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS workflow_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			trigger_entity TEXT NOT NULL DEFAULT '',
			trigger_event TEXT NOT NULL,
			status TEXT NOT NULL,
			steps JSONB NOT NULL DEFAULT '[]',
			owner TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			activated_at TIMESTAMP WITH TIME ZONE
		);

		CREATE TABLE IF NOT EXISTS workflow_instances (
			id TEXT PRIMARY KEY,
			workflow_definition_id TEXT NOT NULL,
			current_step_code TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			context JSONB NOT NULL DEFAULT '{}',
			history JSONB NOT NULL DEFAULT '[]',
			version BIGINT NOT NULL DEFAULT 0,
			current_step_started_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_workflow_instances_status
			ON workflow_instances (status);
	`,
}

// Persistence implements persistence.Persistence backed by PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
}

// NewPersistence opens the database, runs migrations and returns the backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := sqlbase.NewMigrationManager(logger, db, migrations)
	if err := manager.RunMigrations(ctx); err != nil {
		return nil, err
	}

	return &Persistence{
		db:             db,
		logger:         logger.With("module", "postgresql"),
		definitionRepo: &DefinitionRepository{db: db},
		instanceRepo:   &InstanceRepository{db: db},
	}, nil
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}
