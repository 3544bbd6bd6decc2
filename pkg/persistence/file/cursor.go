package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// CursorRepository persists round-robin cursors in a single JSON map keyed
// by definition and role.
type CursorRepository struct {
	p *Persistence
}

func (r *CursorRepository) path() string {
	return filepath.Join(r.p.root, "cursors.json")
}

func (r *CursorRepository) Next(_ context.Context, definitionID, role string, poolSize int) (int, error) {
	if poolSize <= 0 {
		return 0, fmt.Errorf("round-robin pool for role %s is empty", role)
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	cursors := make(map[string]int)

	err := readJSON(r.path(), &cursors)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read cursors: %w", err)
	}

	key := definitionID + "/" + role
	index := cursors[key] % poolSize
	cursors[key] = index + 1

	err = writeJSON(r.path(), cursors)
	if err != nil {
		return 0, err
	}

	return index, nil
}
