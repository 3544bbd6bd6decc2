// Package events defines the append-only history events emitted by the
// approval engine for audit and notification dispatch.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the event bus topic all history events are published on.
const Topic = "approvalflow.history"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceStarted     EventType = "instance.started"
	InstanceCompleted   EventType = "instance.completed"
	InstanceCancelled   EventType = "instance.cancelled"
	InstanceErrored     EventType = "instance.errored"
	StageActivated      EventType = "stage.activated"
	StageCompleted      EventType = "stage.completed"
	AssignmentCreated   EventType = "assignment.created"
	ActionRecorded      EventType = "action.recorded"
	Escalated           EventType = "escalated"
	EscalationExhausted EventType = "escalation.exhausted"
	Delegated           EventType = "delegated"
)

// HistoryEvent is one append-only audit record. It references instances,
// stages, and assignments weakly; it never owns them and is never mutated.
type HistoryEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	InstanceID   string         `json:"instance_id"`
	StageNumber  *int           `json:"stage_number,omitempty"`
	AssignmentID string         `json:"assignment_id,omitempty"`
	Actor        string         `json:"actor,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (e HistoryEvent) GetType() EventType {
	return e.Type
}

// New builds a history event with a fresh ID and UTC timestamp.
func New(eventType EventType, instanceID string) HistoryEvent {
	return HistoryEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		InstanceID: instanceID,
		Payload:    make(map[string]any),
		Timestamp:  time.Now().UTC(),
	}
}

// ForStage builds a history event scoped to a stage number.
func ForStage(eventType EventType, instanceID string, stageNumber int) HistoryEvent {
	ev := New(eventType, instanceID)
	ev.StageNumber = &stageNumber

	return ev
}

// ForAssignment builds a history event scoped to an assignment.
func ForAssignment(eventType EventType, instanceID string, stageNumber int, assignmentID string) HistoryEvent {
	ev := ForStage(eventType, instanceID, stageNumber)
	ev.AssignmentID = assignmentID

	return ev
}
