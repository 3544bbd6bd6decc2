package rules

import (
	"encoding/json"
	"testing"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolds_Operators(t *testing.T) {
	context := map[string]any{
		"amount":     1500.0,
		"department": "engineering",
		"tags":       []any{"urgent", "capex"},
	}

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals match", models.Condition{Field: "department", Operator: models.OperatorEquals, Value: "engineering"}, true},
		{"equals mismatch", models.Condition{Field: "department", Operator: models.OperatorEquals, Value: "finance"}, false},
		{"not equals", models.Condition{Field: "department", Operator: models.OperatorNotEquals, Value: "finance"}, true},
		{"greater than", models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 1000}, true},
		{"less than", models.Condition{Field: "amount", Operator: models.OperatorLessThan, Value: 1000}, false},
		{"gte at boundary", models.Condition{Field: "amount", Operator: models.OperatorGreaterOrEq, Value: 1500}, true},
		{"lte at boundary", models.Condition{Field: "amount", Operator: models.OperatorLessOrEq, Value: 1500}, true},
		{"contains in list", models.Condition{Field: "tags", Operator: models.OperatorContains, Value: "urgent"}, true},
		{"contains in string", models.Condition{Field: "department", Operator: models.OperatorContains, Value: "engineer"}, true},
		{"in set", models.Condition{Field: "department", Operator: models.OperatorIn, Value: []any{"engineering", "quality"}}, true},
		{"not in set", models.Condition{Field: "department", Operator: models.OperatorIn, Value: []any{"finance"}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Holds(tc.cond, context)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHolds_MissingField(t *testing.T) {
	context := map[string]any{}

	got, err := Holds(models.Condition{Field: "absent", Operator: models.OperatorEquals, Value: "x"}, context)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Holds(models.Condition{Field: "absent", Operator: models.OperatorNotEquals, Value: "x"}, context)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestHolds_NumericCoercion(t *testing.T) {
	// JSON round-trips turn ints into float64; comparisons must still hold.
	context := map[string]any{"amount": 100}

	got, err := Holds(models.Condition{Field: "amount", Operator: models.OperatorEquals, Value: 100.0}, context)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestHolds_TypeErrors(t *testing.T) {
	context := map[string]any{"name": "widget"}

	_, err := Holds(models.Condition{Field: "name", Operator: models.OperatorGreaterThan, Value: 10}, context)
	require.Error(t, err)

	_, err = Holds(models.Condition{Field: "name", Operator: models.OperatorIn, Value: "not-a-list"}, context)
	require.Error(t, err)
}

func TestEvaluate_PriorityOrdering(t *testing.T) {
	context := map[string]any{"amount": 5000.0}

	disabled := false

	ruleset := []*models.Rule{
		{
			ID:        "low-priority",
			Condition: models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100},
			Action:    models.ActionRouteToStage,
			Priority:  1,
		},
		{
			ID:        "high-priority",
			Condition: models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 1000},
			Action:    models.ActionRouteToStage,
			Priority:  10,
		},
		{
			ID:        "inactive",
			Condition: models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 0},
			Action:    models.ActionRouteToStage,
			Priority:  100,
			Active:    &disabled,
		},
	}

	matches, err := Evaluate(ruleset, context)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "high-priority", matches[0].Rule.ID)
	assert.Equal(t, "low-priority", matches[1].Rule.ID)
}

func TestEvaluate_RuleEnabledByDefault(t *testing.T) {
	context := map[string]any{"amount": 5000.0}

	// A rule published without the active field still fires; only an
	// explicit false disables it.
	var ruleset []*models.Rule

	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": "implicit", "condition": {"field": "amount", "operator": "gt", "value": 100}, "action": "set_priority"},
		{"id": "disabled", "condition": {"field": "amount", "operator": "gt", "value": 100}, "action": "set_priority", "active": false}
	]`), &ruleset))

	matches, err := Evaluate(ruleset, context)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "implicit", matches[0].Rule.ID)
}

func TestEvaluate_TieBrokenByRegistrationOrder(t *testing.T) {
	context := map[string]any{"kind": "change_order"}

	ruleset := []*models.Rule{
		{ID: "first", Condition: models.Condition{Field: "kind", Operator: models.OperatorEquals, Value: "change_order"}, Action: models.ActionSetPriority, Priority: 5},
		{ID: "second", Condition: models.Condition{Field: "kind", Operator: models.OperatorEquals, Value: "change_order"}, Action: models.ActionSetPriority, Priority: 5},
	}

	matches, err := Evaluate(ruleset, context)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Rule.ID)
}

func TestFirst_FiltersByAction(t *testing.T) {
	context := map[string]any{"amount": 10.0}

	ruleset := []*models.Rule{
		{ID: "prio", Condition: models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 1}, Action: models.ActionSetPriority, SetPriority: models.PriorityHigh, Priority: 9},
		{ID: "route", Condition: models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 1}, Action: models.ActionRouteToStage, TargetStage: 3, Priority: 1},
	}

	matches, err := Evaluate(ruleset, context)
	require.NoError(t, err)

	route := First(matches, models.ActionRouteToStage)
	require.NotNil(t, route)
	assert.Equal(t, "route", route.Rule.ID)

	assert.Nil(t, First(matches, models.ActionSkipStage))
}
