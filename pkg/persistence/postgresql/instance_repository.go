package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// InstanceRepository stores workflow instances. The optimistic version check
// rides on the UPDATE's WHERE clause, so concurrent writers are serialized by
// the database itself.
type InstanceRepository struct {
	db *sql.DB
}

const instanceColumns = `id, workflow_definition_id, current_step_code, status, context, history, version, current_step_started_at, created_at, updated_at`

func (r *InstanceRepository) Instances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, `SELECT `+instanceColumns+` FROM workflow_instances ORDER BY created_at`)
}

func (r *InstanceRepository) RunningInstances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, `SELECT `+instanceColumns+` FROM workflow_instances WHERE status IN ('running', 'blocked') ORDER BY created_at`)
}

func (r *InstanceRepository) InstanceByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM workflow_instances WHERE id = $1`, id)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("InstanceByID", id, persistence.ErrInstanceNotFound)
	}

	return instance, err
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	contextJSON, historyJSON, err := marshalInstance(instance)
	if err != nil {
		return persistence.NewStoreError("SaveInstance", instance.ID, err)
	}

	now := time.Now().UTC()

	if instance.Version == 0 {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO workflow_instances (`+instanceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $9)`,
			instance.ID,
			instance.WorkflowDefinitionID,
			instance.CurrentStepCode,
			instance.Status,
			contextJSON,
			historyJSON,
			instance.CurrentStepStartedAt,
			instance.CreatedAt,
			now,
		)
		if err != nil {
			return persistence.NewStoreError("SaveInstance", instance.ID, err)
		}

		instance.Version = 1
		instance.UpdatedAt = now

		return nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_instances SET
			current_step_code = $3,
			status = $4,
			context = $5,
			history = $6,
			version = version + 1,
			current_step_started_at = $7,
			updated_at = $8
		WHERE id = $1 AND version = $2`,
		instance.ID,
		instance.Version,
		instance.CurrentStepCode,
		instance.Status,
		contextJSON,
		historyJSON,
		instance.CurrentStepStartedAt,
		now,
	)
	if err != nil {
		return persistence.NewStoreError("SaveInstance", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("SaveInstance", instance.ID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
	}

	instance.Version++
	instance.UpdatedAt = now

	return nil
}

func (r *InstanceRepository) AppendHistory(ctx context.Context, instanceID string, entry models.HistoryEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return persistence.NewStoreError("AppendHistory", instanceID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_instances SET
			history = history || $2::jsonb,
			updated_at = NOW()
		WHERE id = $1`,
		instanceID, entryJSON)
	if err != nil {
		return persistence.NewStoreError("AppendHistory", instanceID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("AppendHistory", instanceID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("AppendHistory", instanceID, persistence.ErrInstanceNotFound)
	}

	return nil
}

func (r *InstanceRepository) query(ctx context.Context, queryString string) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, queryString)
	if err != nil {
		return nil, persistence.NewStoreError("Instances", "", err)
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

func marshalInstance(instance *models.WorkflowInstance) ([]byte, []byte, error) {
	instanceContext := instance.Context
	if instanceContext == nil {
		instanceContext = map[string]any{}
	}

	contextJSON, err := json.Marshal(instanceContext)
	if err != nil {
		return nil, nil, err
	}

	history := instance.History
	if history == nil {
		history = []models.HistoryEntry{}
	}

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, nil, err
	}

	return contextJSON, historyJSON, nil
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance    models.WorkflowInstance
		contextJSON []byte
		historyJSON []byte
		startedAt   sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowDefinitionID,
		&instance.CurrentStepCode,
		&instance.Status,
		&contextJSON,
		&historyJSON,
		&instance.Version,
		&startedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contextJSON, &instance.Context); err != nil {
		return nil, persistence.NewStoreError("scanInstance", instance.ID, err)
	}

	if err := json.Unmarshal(historyJSON, &instance.History); err != nil {
		return nil, persistence.NewStoreError("scanInstance", instance.ID, err)
	}

	if startedAt.Valid {
		instance.CurrentStepStartedAt = startedAt.Time.UTC()
	}

	instance.CreatedAt = instance.CreatedAt.UTC()
	instance.UpdatedAt = instance.UpdatedAt.UTC()

	return &instance, nil
}
