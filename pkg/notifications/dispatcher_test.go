package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/log"
)

type capturedMessage struct {
	recipient string
	subject   string
	body      string
}

type captureNotifier struct {
	messages []capturedMessage
}

func (n *captureNotifier) Notify(_ context.Context, recipient, subject, body string) error {
	n.messages = append(n.messages, capturedMessage{recipient, subject, body})

	return nil
}

func TestHandle_AssignmentCreated(t *testing.T) {
	notifier := &captureNotifier{}
	d := NewDispatcher(notifier, nil, log.WithModule("test"))

	event := events.ForAssignment(events.AssignmentCreated, "inst-1", 1, "asg-1")
	event.Payload["assignee"] = "alice"

	require.NoError(t, d.handle(t.Context(), &event))
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "alice", notifier.messages[0].recipient)
	assert.Contains(t, notifier.messages[0].subject, "inst-1")
	assert.Contains(t, notifier.messages[0].body, "stage 1")
}

func TestHandle_MissingRecipientIsDropped(t *testing.T) {
	notifier := &captureNotifier{}
	d := NewDispatcher(notifier, nil, log.WithModule("test"))

	event := events.ForAssignment(events.Escalated, "inst-1", 1, "asg-1")

	require.NoError(t, d.handle(t.Context(), &event))
	assert.Empty(t, notifier.messages)
}

func TestHandle_UnconfiguredEventType(t *testing.T) {
	notifier := &captureNotifier{}
	d := NewDispatcher(notifier, nil, log.WithModule("test"))

	event := events.New(events.InstanceErrored, "inst-1")

	require.NoError(t, d.handle(t.Context(), &event))
	assert.Empty(t, notifier.messages)
}
