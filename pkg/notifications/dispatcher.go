// Package notifications turns history events into messages for the people
// who need to act on them. It consumes the event bus, so delivery is fully
// decoupled from the approval engine's write path.
package notifications

import (
	"context"
	"log/slog"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/eventbus"
	"github.com/machshop/approvalflow/pkg/template"
)

// Notifier delivers one rendered message to one recipient. Implementations
// wrap email, chat, or anything else downstream.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// LogNotifier writes notifications to the structured log. It is the default
// sink for development and the fallback when no transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifications")}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	n.logger.InfoContext(ctx, "Notification",
		"recipient", recipient,
		"subject", subject,
		"body", body)

	return nil
}

// MessageTemplate is a renderable subject and body pair. RecipientField
// names the event payload key holding the recipient identity.
type MessageTemplate struct {
	RecipientField string
	Subject        string
	Body           string
}

// DefaultTemplates covers the events a person should hear about. Operators
// can override or extend the map before registering the dispatcher.
func DefaultTemplates() map[events.EventType]MessageTemplate {
	return map[events.EventType]MessageTemplate{
		events.AssignmentCreated: {
			RecipientField: "assignee",
			Subject:        "Approval requested on {{.instance_id}}",
			Body:           "You have a pending approval for stage {{.stage_number}}. Assignment {{.assignment_id}}.",
		},
		events.Escalated: {
			RecipientField: "escalate_to",
			Subject:        "Approval escalated to you on {{.instance_id}}",
			Body:           "Stage {{.stage_number}} missed its deadline and was escalated to you (level {{.level}}).",
		},
		events.Delegated: {
			RecipientField: "to",
			Subject:        "Approval delegated to you on {{.instance_id}}",
			Body:           "{{.actor}} delegated their stage {{.stage_number}} approval to you. {{.reason}}",
		},
	}
}

// Dispatcher subscribes to history events and fans rendered messages out to
// the notifier. Delivery failures are logged; the event is still acked so a
// broken transport cannot wedge the history topic.
type Dispatcher struct {
	notifier  Notifier
	templates map[events.EventType]MessageTemplate
	logger    *slog.Logger
}

func NewDispatcher(notifier Notifier, templates map[events.EventType]MessageTemplate, logger *slog.Logger) *Dispatcher {
	if templates == nil {
		templates = DefaultTemplates()
	}

	return &Dispatcher{
		notifier:  notifier,
		templates: templates,
		logger:    logger.With("module", "notifications"),
	}
}

// Register attaches the dispatcher's handlers to the event bus. Call before
// the bus starts consuming.
func (d *Dispatcher) Register(bus eventbus.EventSubscriber) {
	for eventType := range d.templates {
		bus.Handle(eventType, d.handle)
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *events.HistoryEvent) error {
	tmpl, ok := d.templates[event.Type]
	if !ok {
		return nil
	}

	recipient, _ := event.Payload[tmpl.RecipientField].(string)
	if recipient == "" {
		d.logger.WarnContext(ctx, "Notification event has no recipient",
			"event_type", event.Type,
			"instance_id", event.InstanceID,
			"recipient_field", tmpl.RecipientField)

		return nil
	}

	subject, err := template.RenderForEvent(tmpl.Subject, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to render notification subject",
			"event_type", event.Type, "error", err)

		return nil
	}

	body, err := template.RenderForEvent(tmpl.Body, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to render notification body",
			"event_type", event.Type, "error", err)

		return nil
	}

	if err := d.notifier.Notify(ctx, recipient, subject, body); err != nil {
		d.logger.ErrorContext(ctx, "Failed to deliver notification",
			"recipient", recipient,
			"event_type", event.Type,
			"error", err)
	}

	return nil
}
