package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/machshop/approvalflow/pkg/events"
)

// HistoryRepository appends history events to one JSON document per
// instance. Events are never mutated or deleted.
type HistoryRepository struct {
	p *Persistence
}

func (r *HistoryRepository) path(instanceID string) string {
	return filepath.Join(r.p.dir("history"), instanceID+".json")
}

func (r *HistoryRepository) Append(_ context.Context, event *events.HistoryEvent) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var list []*events.HistoryEvent

	err := readJSON(r.path(event.InstanceID), &list)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read history for %s: %w", event.InstanceID, err)
	}

	list = append(list, event)

	return writeJSON(r.path(event.InstanceID), list)
}

func (r *HistoryRepository) ListByInstance(_ context.Context, instanceID string) ([]*events.HistoryEvent, error) {
	var list []*events.HistoryEvent

	err := readJSON(r.path(instanceID), &list)
	if err != nil {
		if os.IsNotExist(err) {
			return []*events.HistoryEvent{}, nil
		}

		return nil, fmt.Errorf("failed to read history for %s: %w", instanceID, err)
	}

	sort.SliceStable(list, func(a, b int) bool {
		return list[a].Timestamp.Before(list[b].Timestamp)
	})

	return list, nil
}
