// Package history records every engine state change as an append-only audit
// event and fans it out on the event bus.
package history

import (
	"context"
	"log/slog"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/eventbus"
	"github.com/machshop/approvalflow/pkg/persistence"
)

// Recorder is the single write path for history events. The durable append
// must succeed; bus publication is best effort and only logged on failure so
// a broker outage never blocks an approval.
type Recorder struct {
	repository persistence.HistoryRepository
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
}

func NewRecorder(repository persistence.HistoryRepository, publisher eventbus.EventPublisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		repository: repository,
		publisher:  publisher,
		logger:     logger.With("module", "history"),
	}
}

// Record appends the event to durable history and publishes it.
func (r *Recorder) Record(ctx context.Context, event events.HistoryEvent) error {
	err := r.repository.Append(ctx, &event)
	if err != nil {
		return err
	}

	if r.publisher == nil {
		return nil
	}

	err = r.publisher.Publish(ctx, event.InstanceID, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish history event",
			"event_id", event.ID,
			"event_type", event.Type,
			"instance_id", event.InstanceID,
			"error", err)
	}

	return nil
}

// List returns an instance's events in timestamp order.
func (r *Recorder) List(ctx context.Context, instanceID string) ([]*events.HistoryEvent, error) {
	return r.repository.ListByInstance(ctx, instanceID)
}
