// Package rules provides stateless evaluation of declarative rule conditions
// against workflow instance context data.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/machshop/approvalflow/pkg/models"
)

// Match is one rule whose condition held against the context.
type Match struct {
	Rule  *models.Rule
	order int // registration order, for stable tie-breaking
}

// Evaluate applies every active rule's condition against the context and
// returns the matches sorted by rule priority (descending), ties broken by
// registration order. Callers pick the highest-priority match for the action
// kind they care about.
func Evaluate(ruleset []*models.Rule, context map[string]any) ([]Match, error) {
	matches := make([]Match, 0)

	for i, rule := range ruleset {
		if rule == nil || !rule.Enabled() {
			continue
		}

		ok, err := Holds(rule.Condition, context)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		if ok {
			matches = append(matches, Match{Rule: rule, order: i})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Rule.Priority != matches[b].Rule.Priority {
			return matches[a].Rule.Priority > matches[b].Rule.Priority
		}

		return matches[a].order < matches[b].order
	})

	return matches, nil
}

// First returns the highest-priority match with the given action, or nil.
func First(matches []Match, action models.RuleAction) *Match {
	for i := range matches {
		if matches[i].Rule.Action == action {
			return &matches[i]
		}
	}

	return nil
}

// Holds evaluates a single condition against the context. A missing field
// only satisfies the not-equals operator.
func Holds(cond models.Condition, context map[string]any) (bool, error) {
	value, present := context[cond.Field]
	if !present {
		return cond.Operator == models.OperatorNotEquals, nil
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return equal(value, cond.Value), nil
	case models.OperatorNotEquals:
		return !equal(value, cond.Value), nil
	case models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterOrEq, models.OperatorLessOrEq:
		return compare(cond.Operator, value, cond.Value)
	case models.OperatorContains:
		return contains(value, cond.Value)
	case models.OperatorIn:
		return in(value, cond.Value)
	default:
		return false, fmt.Errorf("unsupported operator %q", cond.Operator)
	}
}

func equal(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)

	if aok && bok {
		return fa == fb
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compare(op models.RuleOperator, a, b any) (bool, error) {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)

	if !aok || !bok {
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, a, b)
	}

	switch op {
	case models.OperatorGreaterThan:
		return fa > fb, nil
	case models.OperatorLessThan:
		return fa < fb, nil
	case models.OperatorGreaterOrEq:
		return fa >= fb, nil
	default:
		return fa <= fb, nil
	}
}

func contains(value, needle any) (bool, error) {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", needle)), nil
	case []any:
		for _, item := range v {
			if equal(item, needle) {
				return true, nil
			}
		}

		return false, nil
	case []string:
		for _, item := range v {
			if equal(item, needle) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("contains requires a string or list value, got %T", value)
	}
}

func in(value, set any) (bool, error) {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if equal(value, item) {
				return true, nil
			}
		}

		return false, nil
	case []string:
		for _, item := range s {
			if equal(value, item) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("in requires a list comparison value, got %T", set)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
