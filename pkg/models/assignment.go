package models

import "time"

// AssignmentType distinguishes how an assignment came to exist.
type AssignmentType string

const (
	AssignmentPrimary          AssignmentType = "primary"
	AssignmentDelegate         AssignmentType = "delegate"
	AssignmentEscalationTarget AssignmentType = "escalation_target"
)

// AssignmentAction is the actor's recorded decision. Empty means pending.
type AssignmentAction string

const (
	ActionApproved  AssignmentAction = "approved"
	ActionRejected  AssignmentAction = "rejected"
	ActionDelegated AssignmentAction = "delegated"
	// ActionEscalated closes the original assignment when an exclusive
	// escalation hands the decision to the escalation target.
	ActionEscalated AssignmentAction = "escalated"
)

// Delegation records where a delegate assignment came from.
type Delegation struct {
	From   string     `json:"from"`
	Reason string     `json:"reason,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`
}

// Assignment is one actor's pending or resolved task within a stage
// instance. At most one non-empty action; once actioned it is immutable
// except for escalation bookkeeping.
type Assignment struct {
	ID              string           `json:"id"`
	InstanceID      string           `json:"instance_id"`
	StageInstanceID string           `json:"stage_instance_id"`
	Assignee        string           `json:"assignee" validate:"required"`
	Type            AssignmentType   `json:"type"`
	Action          AssignmentAction `json:"action,omitempty"`
	ActedAt         *time.Time       `json:"acted_at,omitempty"`
	Comments        string           `json:"comments,omitempty"`
	SignatureRef    string           `json:"signature_ref,omitempty"` // opaque, issued externally
	DueAt           *time.Time       `json:"due_at,omitempty"`
	EscalationLevel int              `json:"escalation_level"`
	Delegation      *Delegation      `json:"delegation,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Open reports whether the assignment is still awaiting an action.
func (a *Assignment) Open() bool {
	return a.Action == ""
}

// Overdue reports whether the assignment is open past its due date.
func (a *Assignment) Overdue(now time.Time) bool {
	return a.Open() && a.DueAt != nil && now.After(*a.DueAt)
}
