package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/otelhelper"
)

// WatermillEventBus carries history events over any watermill pub/sub pair
// (kafka in production, gochannel in tests).
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType][]EventHandler
	tracer        trace.Tracer
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType][]EventHandler),
	}
}

// WithTracer enables a span per consumed event.
func (eb *WatermillEventBus) WithTracer(tracer trace.Tracer) *WatermillEventBus {
	eb.tracer = tracer

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event events.HistoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))

	return eb.publisher.Publish(events.Topic, msg)
}

// Handle registers a handler for one event type. Registration must finish
// before Subscribe is called.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.subscriptions[eventType] = append(eb.subscriptions[eventType], handler)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handlers, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			var event events.HistoryEvent

			err := json.Unmarshal(msg.Payload, &event)
			if err != nil {
				msg.Nack()

				continue
			}

			handlerCtx := ctx

			var span trace.Span
			if eb.tracer != nil {
				handlerCtx, span = otelhelper.StartSpan(ctx, eb.tracer, "eventbus consume",
					attribute.String(otelhelper.EventIDKey, event.ID),
					attribute.String(otelhelper.InstanceIDKey, event.InstanceID),
					attribute.String("event.type", string(event.Type)),
				)
			}

			failed := false

			for _, handler := range handlers {
				if err := handler(handlerCtx, &event); err != nil {
					failed = true

					if span != nil {
						otelhelper.SetError(span, err)
					}
				}
			}

			if span != nil {
				span.End()
			}

			if failed {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
