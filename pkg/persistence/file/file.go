// Package file provides file-based persistence for definitions, instances,
// and history events. It is intended for development and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/machshop/approvalflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents. A single mutex serializes writes; the file backend trades
// throughput for zero dependencies.
type Persistence struct {
	root           string
	mu             sync.Mutex
	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
	historyRepo    *HistoryRepository
	cursorRepo     *CursorRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory, creating it if needed.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.definitionRepo = &DefinitionRepository{p: p}
	p.instanceRepo = &InstanceRepository{p: p}
	p.historyRepo = &HistoryRepository{p: p}
	p.cursorRepo = &CursorRepository{p: p}

	for _, dir := range []string{cleanRoot, p.dir("definitions"), p.dir("instances"), p.dir("history")} {
		_ = os.MkdirAll(dir, 0o755)
	}

	return p
}

func (p *Persistence) dir(kind string) string {
	return p.root + "/" + kind
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) HistoryRepository() persistence.HistoryRepository {
	return p.historyRepo
}

func (p *Persistence) CursorRepository() persistence.CursorRepository {
	return p.cursorRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
