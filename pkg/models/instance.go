package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance. All
// states other than active are absorbing.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
	InstanceStatusErrored   InstanceStatus = "errored"
)

// Priority of a workflow instance. Rules may raise or lower it mid-flight.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// WorkflowInstance is one running execution of a workflow definition, bound
// to exactly one (entity type, entity id). It exclusively owns its stage
// instances; only the orchestrator mutates it.
type WorkflowInstance struct {
	ID           string           `json:"id"`
	DefinitionID string           `json:"definition_id" validate:"required"`
	WorkflowName string           `json:"workflow_name"` // definition name, stable across versions
	EntityType   string           `json:"entity_type"   validate:"required"`
	EntityID     string           `json:"entity_id"     validate:"required"`
	Status       InstanceStatus   `json:"status"`
	Result       StageOutcome     `json:"result,omitempty"` // set when status leaves active
	CurrentStage *int             `json:"current_stage,omitempty"`
	Priority     Priority         `json:"priority"`
	Deadline     *time.Time       `json:"deadline,omitempty"`
	Context      map[string]any   `json:"context"` // immutable snapshot of entity fields for rules
	Requester    string           `json:"requester"`
	Stages       []*StageInstance `json:"stages"`
	Version      int64            `json:"version"` // optimistic concurrency token
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CancelReason string           `json:"cancel_reason,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// ActiveStage returns the stage instance for the current stage number while
// the instance is active, or nil.
func (i *WorkflowInstance) ActiveStage() *StageInstance {
	if i.CurrentStage == nil {
		return nil
	}

	// Walk backwards: return-to-stage branching can create several instances
	// for the same stage number and the newest one is authoritative.
	for n := len(i.Stages) - 1; n >= 0; n-- {
		if i.Stages[n].StageNumber == *i.CurrentStage {
			return i.Stages[n]
		}
	}

	return nil
}

// StageByID returns the stage instance with the given ID, or nil.
func (i *WorkflowInstance) StageByID(id string) *StageInstance {
	for _, s := range i.Stages {
		if s.ID == id {
			return s
		}
	}

	return nil
}

// AssignmentByID returns the assignment and its owning stage instance, or
// (nil, nil).
func (i *WorkflowInstance) AssignmentByID(id string) (*Assignment, *StageInstance) {
	for _, s := range i.Stages {
		for _, a := range s.Assignments {
			if a.ID == id {
				return a, s
			}
		}
	}

	return nil, nil
}

// Progress reports completed stages over total stages in the definition.
func (i *WorkflowInstance) Progress(totalStages int) float64 {
	if totalStages == 0 {
		return 0
	}

	done := 0

	for _, s := range i.Stages {
		if s.Status == StageStatusCompleted || s.Status == StageStatusSkipped {
			done++
		}
	}

	return float64(done) / float64(totalStages)
}

// Terminal reports whether the instance has left the active state.
func (i *WorkflowInstance) Terminal() bool {
	return i.Status != InstanceStatusActive
}
