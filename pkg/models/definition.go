// Package models defines the core domain models for the approval workflow engine.
package models

import "time"

// ApprovalPolicy determines how individual assignment actions combine into a
// stage outcome.
type ApprovalPolicy string

const (
	PolicyAll       ApprovalPolicy = "all"       // Every assignment must act; any rejection rejects
	PolicyAny       ApprovalPolicy = "any"       // First approval approves; all rejections reject
	PolicyThreshold ApprovalPolicy = "threshold" // N approvals required
	PolicyQuorum    ApprovalPolicy = "quorum"    // Percentage of the activation-time assignee count
)

// AssignmentStrategy determines how a stage's role specification is turned
// into concrete assignees.
type AssignmentStrategy string

const (
	StrategyRoleBroadcast AssignmentStrategy = "role_broadcast"
	StrategySpecificUser  AssignmentStrategy = "specific_user"
	StrategyRoundRobin    AssignmentStrategy = "round_robin"
	StrategyLoadBalanced  AssignmentStrategy = "load_balanced"
)

// EscalationStep is one entry in a stage's escalation chain, indexed by the
// assignment's current escalation level.
type EscalationStep struct {
	After      Duration `json:"after"       validate:"required"`
	EscalateTo string   `json:"escalate_to" validate:"required"`
}

// StageSpec is one stage's policy within a workflow definition. Stage numbers
// are unique within a definition and define the default ordering.
type StageSpec struct {
	Number        int                `json:"number"                   validate:"required,min=1"`
	Name          string             `json:"name"                     validate:"required"`
	Policy        ApprovalPolicy     `json:"policy"                   validate:"required,oneof=all any threshold quorum"`
	Threshold     int                `json:"threshold,omitempty"`      // approvals required for PolicyThreshold
	QuorumPercent float64            `json:"quorum_percent,omitempty"` // 0..1, for PolicyQuorum
	RequiredRoles []string           `json:"required_roles"`
	OptionalRoles []string           `json:"optional_roles,omitempty"`
	Strategy      AssignmentStrategy `json:"strategy"                 validate:"required,oneof=role_broadcast specific_user round_robin load_balanced"`
	AssigneeField string             `json:"assignee_field,omitempty"` // context field read by StrategySpecificUser
	Deadline      Duration           `json:"deadline,omitempty"`
	Escalations   []EscalationStep   `json:"escalations,omitempty"`
	// EscalationExclusive closes the original assignment when an escalation
	// fires instead of keeping both open.
	EscalationExclusive bool       `json:"escalation_exclusive,omitempty"`
	AllowDelegation     bool       `json:"allow_delegation,omitempty"`
	AllowSkip           bool       `json:"allow_skip,omitempty"`
	SkipCondition       *Condition `json:"skip_condition,omitempty"`
	RequiresSignature   bool       `json:"requires_signature,omitempty"`
}

// Connection describes a transition between stage numbers. OnOutcome narrows
// the connection to a specific stage outcome; empty means the approval path.
type Connection struct {
	FromStage int          `json:"from_stage" validate:"required,min=1"`
	ToStage   int          `json:"to_stage"   validate:"required,min=1"`
	OnOutcome StageOutcome `json:"on_outcome,omitempty"`
}

// WorkflowDefinition is an immutable, versioned workflow template. A new
// version is a new definition; published definitions are only ever
// deactivated, never changed.
type WorkflowDefinition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"        validate:"required,min=3"`
	Version     int           `json:"version"     validate:"required,min=1"`
	Description string        `json:"description"`
	Active      bool          `json:"active"`
	Stages      []*StageSpec  `json:"stages"      validate:"required,min=1,dive"`
	Connections []*Connection `json:"connections,omitempty" validate:"dive"`
	Rules       []*Rule       `json:"rules,omitempty"       validate:"dive"`
	CreatedAt   time.Time     `json:"created_at"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
}

// Stage returns the StageSpec with the given number, or nil.
func (d *WorkflowDefinition) Stage(number int) *StageSpec {
	for _, s := range d.Stages {
		if s.Number == number {
			return s
		}
	}

	return nil
}

// FirstStage returns the lowest-numbered stage spec. Definitions with no
// stages are rejected at publish time, so a nil result indicates a corrupted
// definition.
func (d *WorkflowDefinition) FirstStage() *StageSpec {
	var first *StageSpec

	for _, s := range d.Stages {
		if first == nil || s.Number < first.Number {
			first = s
		}
	}

	return first
}

// Outgoing returns the connections leaving the given stage that apply to the
// given outcome, in declaration order. An empty OnOutcome matches the
// approval path only.
func (d *WorkflowDefinition) Outgoing(stage int, outcome StageOutcome) []*Connection {
	var out []*Connection

	for _, c := range d.Connections {
		if c.FromStage != stage {
			continue
		}

		if c.OnOutcome == outcome || (c.OnOutcome == "" && outcome == OutcomeApproved) {
			out = append(out, c)
		}
	}

	return out
}
