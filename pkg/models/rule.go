package models

// RuleOperator is one of the closed set of comparison operators a rule
// condition may use.
type RuleOperator string

const (
	OperatorEquals      RuleOperator = "eq"
	OperatorNotEquals   RuleOperator = "neq"
	OperatorGreaterThan RuleOperator = "gt"
	OperatorLessThan    RuleOperator = "lt"
	OperatorGreaterOrEq RuleOperator = "gte"
	OperatorLessOrEq    RuleOperator = "lte"
	OperatorContains    RuleOperator = "contains"
	OperatorIn          RuleOperator = "in"
)

// RuleAction is what a matched rule asks the engine to do.
type RuleAction string

const (
	ActionSkipStage    RuleAction = "skip_stage"
	ActionAutoApprove  RuleAction = "auto_approve"
	ActionRouteToStage RuleAction = "route_to_stage"
	ActionSetPriority  RuleAction = "set_priority"
)

// Condition is a declarative (field, operator, value) predicate evaluated
// against instance context data.
type Condition struct {
	Field    string       `json:"field"    validate:"required"`
	Operator RuleOperator `json:"operator" validate:"required,oneof=eq neq gt lt gte lte contains in"`
	Value    any          `json:"value"`
}

// Rule pairs a condition with an engine action. Priority orders competing
// matches (higher wins); declaration order breaks ties.
type Rule struct {
	ID        string     `json:"id"`
	Condition Condition  `json:"condition"  validate:"required"`
	Action    RuleAction `json:"action"     validate:"required,oneof=skip_stage auto_approve route_to_stage set_priority"`
	// TargetStage names the stage a route_to_stage rule routes to, or the
	// stage a skip_stage rule skips.
	TargetStage int      `json:"target_stage,omitempty"`
	SetPriority Priority `json:"set_priority,omitempty"` // for ActionSetPriority
	Priority    int      `json:"priority"`
	// Active disables the rule when explicitly false. Absent means enabled.
	Active *bool `json:"active,omitempty"`
}

// Enabled reports whether the rule participates in evaluation. A rule is
// enabled unless it was published with "active": false.
func (r *Rule) Enabled() bool {
	return r.Active == nil || *r.Active
}
