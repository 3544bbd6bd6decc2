package approval

import (
	"testing"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageWith(actions ...models.AssignmentAction) *models.StageInstance {
	stage := &models.StageInstance{
		InitialAssigneeCount: len(actions),
	}

	for i, action := range actions {
		stage.Assignments = append(stage.Assignments, &models.Assignment{
			ID:     string(rune('a' + i)),
			Action: action,
		})
	}

	return stage
}

const pending = models.AssignmentAction("")

func TestResolve_All(t *testing.T) {
	spec := &models.StageSpec{Policy: models.PolicyAll}

	t.Run("unresolved while any pending", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionApproved, pending))
		assert.False(t, result.Resolved)
	})

	t.Run("approved when all approve", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionApproved, models.ActionApproved))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeApproved, result.Outcome)
	})

	t.Run("rejected immediately on first rejection", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionRejected, pending, pending))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeRejected, result.Outcome)
	})
}

func TestResolve_Any(t *testing.T) {
	spec := &models.StageSpec{Policy: models.PolicyAny}

	t.Run("first rejection does not resolve", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionRejected, pending, pending))
		assert.False(t, result.Resolved)
	})

	t.Run("approval resolves immediately", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionRejected, models.ActionApproved, pending))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeApproved, result.Outcome)
	})

	t.Run("rejected only when everyone rejects", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionRejected, models.ActionRejected))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeRejected, result.Outcome)
	})
}

func TestResolve_Threshold(t *testing.T) {
	spec := &models.StageSpec{Policy: models.PolicyThreshold, Threshold: 2}

	t.Run("approved at threshold", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionApproved, models.ActionApproved, pending))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeApproved, result.Outcome)
	})

	t.Run("rejected once threshold is unreachable", func(t *testing.T) {
		// Two rejections out of three leave only one possible approval.
		result := Resolve(spec, stageWith(models.ActionRejected, models.ActionRejected, pending))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeRejected, result.Outcome)
	})

	t.Run("unreachable even with zero approvals", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionRejected, models.ActionRejected, models.ActionRejected))
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeRejected, result.Outcome)
	})

	t.Run("pending below threshold", func(t *testing.T) {
		result := Resolve(spec, stageWith(models.ActionApproved, pending, pending))
		assert.False(t, result.Resolved)
	})
}

func TestResolve_Quorum(t *testing.T) {
	spec := &models.StageSpec{Policy: models.PolicyQuorum, QuorumPercent: 0.5}

	t.Run("half of four requires two", func(t *testing.T) {
		stage := stageWith(models.ActionApproved, models.ActionApproved, pending, pending)
		result := Resolve(spec, stage)
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeApproved, result.Outcome)
	})

	t.Run("denominator fixed at activation", func(t *testing.T) {
		// An escalation added a fourth assignment after activation with
		// three assignees: quorum target stays ceil(0.5 * 3) = 2.
		stage := stageWith(models.ActionApproved, models.ActionApproved, pending, pending)
		stage.InitialAssigneeCount = 3

		result := Resolve(spec, stage)
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeApproved, result.Outcome)
	})

	t.Run("delegation keeps the denominator", func(t *testing.T) {
		stage := stageWith(models.ActionDelegated, models.ActionApproved, pending)
		stage.InitialAssigneeCount = 3
		// Delegate replacement for the delegated-away original.
		stage.Assignments = append(stage.Assignments, &models.Assignment{
			ID:     "delegate",
			Type:   models.AssignmentDelegate,
			Action: models.ActionApproved,
		})

		result := Resolve(spec, stage)
		require.True(t, result.Resolved)
		assert.Equal(t, models.OutcomeApproved, result.Outcome)
	})
}

func TestResolve_ZeroAssignmentsRejects(t *testing.T) {
	spec := &models.StageSpec{Policy: models.PolicyAll}

	result := Resolve(spec, &models.StageInstance{})
	require.True(t, result.Resolved)
	assert.Equal(t, models.OutcomeRejected, result.Outcome)
	assert.NotEmpty(t, result.Note)
}

func TestResolve_DelegatedExcluded(t *testing.T) {
	spec := &models.StageSpec{Policy: models.PolicyAll}

	stage := stageWith(models.ActionDelegated, models.ActionApproved)
	stage.Assignments = append(stage.Assignments, &models.Assignment{
		ID:     "delegate",
		Type:   models.AssignmentDelegate,
		Action: models.ActionApproved,
	})

	result := Resolve(spec, stage)
	require.True(t, result.Resolved)
	assert.Equal(t, models.OutcomeApproved, result.Outcome)
}

func TestQuorumTarget(t *testing.T) {
	assert.Equal(t, 2, QuorumTarget(0.5, 3))
	assert.Equal(t, 3, QuorumTarget(0.6, 5))
	assert.Equal(t, 5, QuorumTarget(1.0, 5))
	assert.Equal(t, 0, QuorumTarget(0.5, 0))
}
