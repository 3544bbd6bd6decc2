// Package eventbus provides the event-driven transport for history events so
// notification dispatch and external consumers never block engine progress.
package eventbus

import (
	"context"

	"github.com/machshop/approvalflow/pkg/events"
)

type EventHandler func(ctx context.Context, event *events.HistoryEvent) error

type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.HistoryEvent) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
