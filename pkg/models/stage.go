package models

import "time"

// StageStatus represents the lifecycle state of one stage execution.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageOutcome is how a stage resolved. Empty until the stage completes.
type StageOutcome string

const (
	OutcomeApproved  StageOutcome = "approved"
	OutcomeRejected  StageOutcome = "rejected"
	OutcomeEscalated StageOutcome = "escalated"
)

// StageInstance is one stage's execution record within a workflow instance.
// Re-entry via return-to-stage branching creates a new StageInstance for the
// same stage number.
type StageInstance struct {
	ID          string       `json:"id"`
	StageNumber int          `json:"stage_number"`
	Status      StageStatus  `json:"status"`
	Outcome     StageOutcome `json:"outcome,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	// InitialAssigneeCount is the quorum denominator, fixed at activation.
	// Escalations and delegate replacements never change it.
	InitialAssigneeCount int           `json:"initial_assignee_count"`
	Notes                string        `json:"notes,omitempty"`
	Assignments          []*Assignment `json:"assignments"`
}

// LiveAssignments returns the assignments that count toward approval
// aggregation: everything except delegated-away originals and exclusively
// escalated originals, whose replacements count instead.
func (s *StageInstance) LiveAssignments() []*Assignment {
	live := make([]*Assignment, 0, len(s.Assignments))

	for _, a := range s.Assignments {
		if a.Action == ActionDelegated || a.Action == ActionEscalated {
			continue
		}

		live = append(live, a)
	}

	return live
}
