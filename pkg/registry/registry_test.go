package registry

import (
	"context"
	"testing"

	"github.com/machshop/approvalflow/pkg/log"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return New(p.DefinitionRepository(), log.WithModule("test"))
}

func validDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:    "change-order-approval",
		Version: 1,
		Stages: []*models.StageSpec{
			{Number: 1, Name: "Supervisor Review", Policy: models.PolicyAll, Strategy: models.StrategyRoleBroadcast, RequiredRoles: []string{"supervisor"}},
			{Number: 2, Name: "Engineering Signoff", Policy: models.PolicyAny, Strategy: models.StrategyRoleBroadcast, RequiredRoles: []string{"engineer"}},
		},
		Connections: []*models.Connection{
			{FromStage: 1, ToStage: 2},
		},
	}
}

func TestPublish_Valid(t *testing.T) {
	r := newRegistry(t)

	id, err := r.Publish(t.Context(), validDefinition())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := r.Get(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.NotNil(t, got.PublishedAt)
}

func TestPublish_DuplicateStageNumbers(t *testing.T) {
	r := newRegistry(t)

	definition := validDefinition()
	definition.Stages[1].Number = 1

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrDuplicateStageNumber)
	assert.True(t, IsValidationError(err))
}

func TestPublish_CyclicConnections(t *testing.T) {
	r := newRegistry(t)

	definition := validDefinition()
	definition.Connections = append(definition.Connections, &models.Connection{FromStage: 2, ToStage: 1})

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrCyclicConnections)
}

func TestPublish_ConnectionToUnknownStage(t *testing.T) {
	r := newRegistry(t)

	definition := validDefinition()
	definition.Connections = append(definition.Connections, &models.Connection{FromStage: 2, ToStage: 9})

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrUnknownStage)
}

func TestPublish_RuleRouteToMissingStage(t *testing.T) {
	r := newRegistry(t)

	definition := validDefinition()
	definition.Rules = []*models.Rule{
		{
			ID:          "reroute",
			Condition:   models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 1000},
			Action:      models.ActionRouteToStage,
			TargetStage: 42,
		},
	}

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrUnknownStage)
}

func TestPublish_UnsatisfiableThreshold(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	r := New(p.DefinitionRepository(), log.WithModule("test")).
		WithRoleCounter(func(_ context.Context, role string) (int, error) {
			if role == "supervisor" {
				return 2, nil
			}

			return 0, nil
		})

	definition := validDefinition()
	definition.Stages[0].Policy = models.PolicyThreshold
	definition.Stages[0].Threshold = 3

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrUnsatisfiablePolicy)
}

func TestPublish_InvalidQuorumPercent(t *testing.T) {
	r := newRegistry(t)

	definition := validDefinition()
	definition.Stages[0].Policy = models.PolicyQuorum
	definition.Stages[0].QuorumPercent = 1.5

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrUnsatisfiablePolicy)
}

func TestPublish_SchemaViolation(t *testing.T) {
	r := newRegistry(t)

	definition := validDefinition()
	definition.Name = "ab" // below minimum length

	_, err := r.Publish(t.Context(), definition)
	require.ErrorIs(t, err, ErrSchemaViolation)
}

func TestDeactivate_KeepsDefinitionReadable(t *testing.T) {
	r := newRegistry(t)

	id, err := r.Publish(t.Context(), validDefinition())
	require.NoError(t, err)

	require.NoError(t, r.Deactivate(t.Context(), id))

	got, err := r.Get(t.Context(), id)
	require.NoError(t, err)
	assert.False(t, got.Active)
}
