package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
)

// DefinitionRepository stores workflow definitions as one JSON file per
// definition ID.
type DefinitionRepository struct {
	p *Persistence
}

func (r *DefinitionRepository) path(id string) string {
	return filepath.Join(r.p.dir("definitions"), id+".json")
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, err := r.GetByNameVersion(ctx, definition.Name, definition.Version)
	if err != nil && !persistence.IsDefinitionNotFound(err) {
		return err
	}

	if existing != nil && existing.ID != definition.ID {
		return persistence.NewDefinitionError("Save", definition.ID, persistence.ErrDefinitionAlreadyExists)
	}

	return writeJSON(r.path(definition.ID), definition)
}

func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition

	err := readJSON(r.path(id), &definition)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to read definition %s: %w", id, err)
	}

	return &definition, nil
}

func (r *DefinitionRepository) GetByNameVersion(ctx context.Context, name string, version int) (*models.WorkflowDefinition, error) {
	definitions, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range definitions {
		if d.Name == name && d.Version == version {
			return d, nil
		}
	}

	return nil, persistence.NewDefinitionError("GetByNameVersion", name, persistence.ErrDefinitionNotFound)
}

func (r *DefinitionRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	files, err := fs.Glob(os.DirFS(r.p.dir("definitions")), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(files))

	for _, f := range files {
		var definition models.WorkflowDefinition

		err := readJSON(filepath.Join(r.p.dir("definitions"), f), &definition)
		if err != nil {
			return nil, fmt.Errorf("failed to read definition file %s: %w", f, err)
		}

		definitions = append(definitions, &definition)
	}

	sort.Slice(definitions, func(a, b int) bool {
		if definitions[a].Name != definitions[b].Name {
			return definitions[a].Name < definitions[b].Name
		}

		return definitions[a].Version < definitions[b].Version
	})

	return definitions, nil
}

func (r *DefinitionRepository) Deactivate(ctx context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	definition, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	definition.Active = false

	return writeJSON(r.path(id), definition)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"

	err = os.WriteFile(tmp, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
