package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
)

// InstanceRepository stores each workflow instance as one JSONB aggregate so
// the stage and assignment state always changes atomically with the
// instance. The approval_assignments projection is rewritten in the same
// transaction.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	previous := instance.Version
	instance.Version++

	document, err := json.Marshal(instance)
	if err != nil {
		instance.Version = previous

		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		instance.Version = previous

		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			instance.Version = previous

			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	if previous == 0 {
		insert := `
			INSERT INTO workflow_instances (id, workflow_name, entity_type, entity_id, status, version, document, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

		_, err = tx.ExecContext(ctx, insert,
			instance.ID,
			instance.WorkflowName,
			instance.EntityType,
			instance.EntityID,
			instance.Status,
			instance.Version,
			document,
			instance.CreatedAt,
			now,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				err = fmt.Errorf("%w: %s/%s", persistence.ErrDuplicateActiveInstance, instance.EntityType, instance.EntityID)
			}

			return err
		}
	} else {
		update := `
			UPDATE workflow_instances
			SET status = $1, version = $2, document = $3, updated_at = $4
			WHERE id = $5 AND version = $6
		`

		var result sql.Result

		result, err = tx.ExecContext(ctx, update,
			instance.Status,
			instance.Version,
			document,
			now,
			instance.ID,
			previous,
		)
		if err != nil {
			return fmt.Errorf("failed to update instance: %w", err)
		}

		var affected int64

		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if affected == 0 {
			err = persistence.NewInstanceError("Save", instance.ID, persistence.ErrStaleVersion)

			return err
		}
	}

	err = r.projectAssignments(ctx, tx, instance)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit instance save: %w", err)
	}

	return nil
}

func (r *InstanceRepository) projectAssignments(ctx context.Context, tx *sql.Tx, instance *models.WorkflowInstance) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM approval_assignments WHERE instance_id = $1", instance.ID)
	if err != nil {
		return fmt.Errorf("failed to clear assignment projection: %w", err)
	}

	insert := `
		INSERT INTO approval_assignments (id, instance_id, assignee, action, due_at, document)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, stage := range instance.Stages {
		for _, assignment := range stage.Assignments {
			document, err := json.Marshal(assignment)
			if err != nil {
				return fmt.Errorf("failed to marshal assignment: %w", err)
			}

			var action any
			if assignment.Action != "" {
				action = string(assignment.Action)
			}

			_, err = tx.ExecContext(ctx, insert,
				assignment.ID,
				instance.ID,
				assignment.Assignee,
				action,
				assignment.DueAt,
				document,
			)
			if err != nil {
				return fmt.Errorf("failed to project assignment: %w", err)
			}
		}
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, "SELECT document FROM workflow_instances WHERE id = $1", id)

	return scanInstance(row, id)
}

func (r *InstanceRepository) FindActiveByEntity(ctx context.Context, workflowName, entityType, entityID string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT document FROM workflow_instances
		 WHERE workflow_name = $1 AND entity_type = $2 AND entity_id = $3 AND status = 'active'`,
		workflowName, entityType, entityID)

	return scanInstance(row, entityType+"/"+entityID)
}

func (r *InstanceRepository) FindByAssignment(ctx context.Context, assignmentID string) (*models.WorkflowInstance, error) {
	var instanceID string

	err := r.db.QueryRowContext(ctx,
		"SELECT instance_id FROM approval_assignments WHERE id = $1", assignmentID).Scan(&instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrAssignmentNotFound, assignmentID)
		}

		return nil, fmt.Errorf("failed to look up assignment owner: %w", err)
	}

	return r.GetByID(ctx, instanceID)
}

func (r *InstanceRepository) ListWithOverdueAssignments(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT DISTINCT i.document
		FROM workflow_instances i
		JOIN approval_assignments a ON a.instance_id = i.id
		WHERE i.status = 'active'
		  AND a.action IS NULL
		  AND a.due_at IS NOT NULL
		  AND a.due_at < $1
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		var instance models.WorkflowInstance

		if err := json.Unmarshal(document, &instance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
		}

		instances = append(instances, &instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overdue instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) CountOpenAssignments(ctx context.Context, assignee string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM approval_assignments a
		JOIN workflow_instances i ON i.id = a.instance_id
		WHERE a.assignee = $1 AND a.action IS NULL AND i.status = 'active'
	`

	var count int

	err := r.db.QueryRowContext(ctx, query, assignee).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open assignments: %w", err)
	}

	return count, nil
}

func (r *InstanceRepository) ListOpenAssignments(ctx context.Context, assignee string) ([]*models.Assignment, error) {
	query := `
		SELECT a.document
		FROM approval_assignments a
		JOIN workflow_instances i ON i.id = a.instance_id
		WHERE a.assignee = $1 AND a.action IS NULL AND i.status = 'active'
		ORDER BY a.due_at NULLS LAST, a.id
	`

	rows, err := r.db.QueryContext(ctx, query, assignee)
	if err != nil {
		return nil, fmt.Errorf("failed to query open assignments: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	assignments := make([]*models.Assignment, 0)

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		var assignment models.Assignment

		if err := json.Unmarshal(document, &assignment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
		}

		assignments = append(assignments, &assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open assignments: %w", err)
	}

	return assignments, nil
}

func scanInstance(row *sql.Row, ref string) (*models.WorkflowInstance, error) {
	var document []byte

	err := row.Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrInstanceNotFound, ref)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	var instance models.WorkflowInstance

	if err := json.Unmarshal(document, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return &instance, nil
}
