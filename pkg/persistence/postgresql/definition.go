package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
)

const uniqueViolation = "23505"

// DefinitionRepository stores workflow definitions as JSONB documents with
// the lookup columns lifted out.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	document, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (id, name, version, active, document, created_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.ID,
		definition.Name,
		definition.Version,
		definition.Active,
		document,
		definition.CreatedAt,
		definition.PublishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s v%d", persistence.ErrDefinitionAlreadyExists, definition.Name, definition.Version)
		}

		return fmt.Errorf("failed to save definition: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT document, active FROM workflow_definitions WHERE id = $1", id)

	return r.scanDefinition(row, id)
}

func (r *DefinitionRepository) GetByNameVersion(ctx context.Context, name string, version int) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT document, active FROM workflow_definitions WHERE name = $1 AND version = $2", name, version)

	return r.scanDefinition(row, fmt.Sprintf("%s v%d", name, version))
}

func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT document, active FROM workflow_definitions ORDER BY name, version")
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var (
			document []byte
			active   bool
		)

		if err := rows.Scan(&document, &active); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		definition, err := unmarshalDefinition(document, active)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return definitions, nil
}

func (r *DefinitionRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_definitions
		 SET active = FALSE, document = jsonb_set(document, '{active}', 'false')
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrDefinitionNotFound, id)
	}

	return nil
}

func (r *DefinitionRepository) scanDefinition(row *sql.Row, ref string) (*models.WorkflowDefinition, error) {
	var (
		document []byte
		active   bool
	)

	err := row.Scan(&document, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrDefinitionNotFound, ref)
		}

		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	return unmarshalDefinition(document, active)
}

func unmarshalDefinition(document []byte, active bool) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition

	if err := json.Unmarshal(document, &definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}

	// The column wins over a stale document copy.
	definition.Active = active

	return &definition, nil
}
