package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// DefinitionRepository stores workflow definitions with their steps embedded
// as a JSONB document, preserving authored order.
type DefinitionRepository struct {
	db *sql.DB
}

const definitionColumns = `id, name, code, category, trigger_entity, trigger_event, status, steps, owner, created_at, updated_at, activated_at`

func (r *DefinitionRepository) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions ORDER BY created_at`)
	if err != nil {
		return nil, persistence.NewStoreError("Definitions", "", err)
	}
	defer rows.Close()

	var definitions []*models.WorkflowDefinition

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	return definitions, rows.Err()
}

func (r *DefinitionRepository) DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions WHERE id = $1`, id)

	definition, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("DefinitionByID", id, persistence.ErrDefinitionNotFound)
	}

	return definition, err
}

func (r *DefinitionRepository) SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error {
	steps, err := json.Marshal(definition.Steps)
	if err != nil {
		return persistence.NewStoreError("SaveDefinition", definition.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			category = EXCLUDED.category,
			trigger_entity = EXCLUDED.trigger_entity,
			trigger_event = EXCLUDED.trigger_event,
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			activated_at = EXCLUDED.activated_at`,
		definition.ID,
		definition.Name,
		definition.Code,
		definition.Category,
		definition.TriggerEntity,
		definition.TriggerEvent,
		definition.Status,
		steps,
		definition.Owner,
		definition.CreatedAt,
		definition.UpdatedAt,
		definition.ActivatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("SaveDefinition", definition.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) DeleteDefinition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("DeleteDefinition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("DeleteDefinition", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("DeleteDefinition", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		definition  models.WorkflowDefinition
		steps       []byte
		activatedAt sql.NullTime
	)

	err := row.Scan(
		&definition.ID,
		&definition.Name,
		&definition.Code,
		&definition.Category,
		&definition.TriggerEntity,
		&definition.TriggerEvent,
		&definition.Status,
		&steps,
		&definition.Owner,
		&definition.CreatedAt,
		&definition.UpdatedAt,
		&activatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &definition.Steps); err != nil {
		return nil, persistence.NewStoreError("scanDefinition", definition.ID, err)
	}

	if activatedAt.Valid {
		t := activatedAt.Time.UTC()
		definition.ActivatedAt = &t
	}

	definition.CreatedAt = definition.CreatedAt.UTC()
	definition.UpdatedAt = definition.UpdatedAt.UTC()

	return &definition, nil
}
