package postgresql

import (
	"context"
	"database/sql"
	"fmt"
)

// CursorRepository persists round-robin rotation cursors. The upsert makes
// the increment atomic across processes.
type CursorRepository struct {
	db *sql.DB
}

func (r *CursorRepository) Next(ctx context.Context, definitionID, role string, poolSize int) (int, error) {
	if poolSize <= 0 {
		return 0, fmt.Errorf("pool size must be positive, got %d", poolSize)
	}

	query := `
		INSERT INTO assignment_cursors (definition_id, role, cursor)
		VALUES ($1, $2, 1)
		ON CONFLICT (definition_id, role)
		DO UPDATE SET cursor = assignment_cursors.cursor + 1
		RETURNING cursor
	`

	var cursor int64

	err := r.db.QueryRowContext(ctx, query, definitionID, role).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to advance cursor: %w", err)
	}

	return int((cursor - 1) % int64(poolSize)), nil
}
