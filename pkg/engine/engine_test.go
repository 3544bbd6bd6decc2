package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machshop/approvalflow/pkg/history"
	"github.com/machshop/approvalflow/pkg/log"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence/file"
	"github.com/machshop/approvalflow/pkg/resolver"
)

type staticRoster struct {
	roles map[string][]string
}

func (r staticRoster) ResolveRole(_ context.Context, role string) ([]string, error) {
	return r.roles[role], nil
}

func (r staticRoster) OpenAssignmentCount(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func newEngine(t *testing.T) (*Engine, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	roster := staticRoster{roles: map[string][]string{
		"supervisor": {"alice", "bob"},
		"engineer":   {"carol", "dave", "erin"},
		"qa":         {},
	}}

	logger := log.WithModule("test")
	recorder := history.NewRecorder(p.HistoryRepository(), nil, logger)

	return New(p, resolver.New(roster, p.CursorRepository()), recorder, logger), p
}

func publish(t *testing.T, p *file.Persistence, definition *models.WorkflowDefinition) *models.WorkflowDefinition {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	definition.ID = id.String()
	definition.Active = true
	definition.CreatedAt = time.Now().UTC()

	require.NoError(t, p.DefinitionRepository().Save(t.Context(), definition))

	return definition
}

func twoStageDefinition() *models.WorkflowDefinition {
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

func startInstance(t *testing.T, e *Engine, definitionID string, context map[string]any) *models.WorkflowInstance {
	t.Helper()

	instance, err := e.Start(t.Context(), StartRequest{
		DefinitionID: definitionID,
		EntityType:   "change_order",
		EntityID:     "CO-1001",
		Requester:    "frank",
		Context:      context,
	})
	require.NoError(t, err)

	return instance
}

func assignmentOf(t *testing.T, stage *models.StageInstance, assignee string) *models.Assignment {
	t.Helper()

	for _, a := range stage.Assignments {
		if a.Assignee == assignee && a.Open() {
			return a
		}
	}

	t.Fatalf("no open assignment for %s in stage %d", assignee, stage.StageNumber)

	return nil
}

func TestStart_ActivatesFirstStage(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())

	instance := startInstance(t, e, definition.ID, nil)

	assert.Equal(t, models.InstanceStatusActive, instance.Status)
	require.NotNil(t, instance.CurrentStage)
	assert.Equal(t, 1, *instance.CurrentStage)
	assert.Equal(t, models.PriorityNormal, instance.Priority)

	stage := instance.ActiveStage()
	require.NotNil(t, stage)
	assert.Equal(t, models.StageStatusActive, stage.Status)
	assert.Len(t, stage.Assignments, 2)
	assert.Equal(t, 2, stage.InitialAssigneeCount)

	evs, err := p.HistoryRepository().ListByInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	// instance.started, stage.activated, 2x assignment.created
	assert.Len(t, evs, 4)
}

func TestStart_DuplicateActiveInstance(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())

	startInstance(t, e, definition.ID, nil)

	_, err := e.Start(t.Context(), StartRequest{
		DefinitionID: definition.ID,
		EntityType:   "change_order",
		EntityID:     "CO-1001",
	})
	require.ErrorIs(t, err, ErrDuplicateActiveInstance)
	assert.True(t, IsConflictError(err))
}

func TestStart_InactiveDefinition(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	require.NoError(t, p.DefinitionRepository().Deactivate(t.Context(), definition.ID))

	_, err := e.Start(t.Context(), StartRequest{
		DefinitionID: definition.ID,
		EntityType:   "change_order",
		EntityID:     "CO-1001",
	})
	require.ErrorIs(t, err, ErrDefinitionInactive)
}

func TestStart_ResolutionFailureErrorsInstance(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].RequiredRoles = []string{"qa"} // nobody holds qa
	publish(t, p, definition)

	instance, err := e.Start(t.Context(), StartRequest{
		DefinitionID: definition.ID,
		EntityType:   "change_order",
		EntityID:     "CO-1001",
	})
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))

	// The failed instance is persisted in the errored state for audit.
	stored, getErr := e.Instance(t.Context(), instance.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.InstanceStatusErrored, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestStart_SetPriorityRule(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Rules = []*models.Rule{
		{
			ID:          "rush",
			Condition:   models.Condition{Field: "amount", Operator: models.OperatorGreaterThan, Value: 10000},
			Action:      models.ActionSetPriority,
			SetPriority: models.PriorityUrgent,
		},
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, map[string]any{"amount": 25000})
	assert.Equal(t, models.PriorityUrgent, instance.Priority)
}

func TestRecordAction_AllPolicyAdvancesStage(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	stage := instance.ActiveStage()

	updated, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentOf(t, stage, "alice").ID,
		Action:       models.ActionApproved,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentStage)
	assert.Equal(t, 1, *updated.CurrentStage) // bob still pending

	updated, err = e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentOf(t, updated.ActiveStage(), "bob").ID,
		Action:       models.ActionApproved,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentStage)
	assert.Equal(t, 2, *updated.CurrentStage)

	first := updated.Stages[0]
	assert.Equal(t, models.StageStatusCompleted, first.Status)
	assert.Equal(t, models.OutcomeApproved, first.Outcome)

	second := updated.ActiveStage()
	assert.Len(t, second.Assignments, 3)
}

func TestRecordAction_AnyPolicyCompletesInstance(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	// Walk stage 1.
	for _, assignee := range []string{"alice", "bob"} {
		var err error

		instance, err = e.RecordAction(t.Context(), ActionRequest{
			AssignmentID: assignmentOf(t, instance.ActiveStage(), assignee).ID,
			Action:       models.ActionApproved,
		})
		require.NoError(t, err)
	}

	// Stage 2 is any-policy: one approval finishes the whole instance.
	updated, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentOf(t, instance.ActiveStage(), "carol").ID,
		Action:       models.ActionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, updated.Status)
	assert.Equal(t, models.OutcomeApproved, updated.Result)
	assert.Nil(t, updated.CurrentStage)
	require.NotNil(t, updated.CompletedAt)
}

func TestRecordAction_RejectionIsTerminal(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	updated, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentOf(t, instance.ActiveStage(), "alice").ID,
		Action:       models.ActionRejected,
		Comments:     "missing tooling cost breakdown",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, updated.Status)
	assert.Equal(t, models.OutcomeRejected, updated.Result)
}

func TestRecordAction_RejectionPathConnection(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages = append(definition.Stages, &models.StageSpec{
		Number: 3, Name: "Rework Review", Policy: models.PolicyAny,
		Strategy: models.StrategyRoleBroadcast, RequiredRoles: []string{"engineer"},
	})
	definition.Connections = append(definition.Connections, &models.Connection{
		FromStage: 1, ToStage: 3, OnOutcome: models.OutcomeRejected,
	})
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)

	updated, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentOf(t, instance.ActiveStage(), "alice").ID,
		Action:       models.ActionRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, updated.Status)
	require.NotNil(t, updated.CurrentStage)
	assert.Equal(t, 3, *updated.CurrentStage)
}

func TestRecordAction_RouteRuleReroutesRejection(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages = append(definition.Stages, &models.StageSpec{
		Number: 3, Name: "Escalated Review", Policy: models.PolicyAny,
		Strategy: models.StrategyRoleBroadcast, RequiredRoles: []string{"engineer"},
	})
	definition.Rules = []*models.Rule{
		{
			ID:          "reroute-high-value",
			Condition:   models.Condition{Field: "amount", Operator: models.OperatorGreaterOrEq, Value: 5000},
			Action:      models.ActionRouteToStage,
			TargetStage: 3,
		},
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, map[string]any{"amount": 9000})

	updated, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentOf(t, instance.ActiveStage(), "alice").ID,
		Action:       models.ActionRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, updated.Status)
	require.NotNil(t, updated.CurrentStage)
	assert.Equal(t, 3, *updated.CurrentStage)
}

func TestRecordAction_IdempotentReplay(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	assignmentID := assignmentOf(t, instance.ActiveStage(), "alice").ID

	first, err := e.RecordAction(t.Context(), ActionRequest{AssignmentID: assignmentID, Action: models.ActionApproved})
	require.NoError(t, err)

	before, err := p.HistoryRepository().ListByInstance(t.Context(), instance.ID)
	require.NoError(t, err)

	replay, err := e.RecordAction(t.Context(), ActionRequest{AssignmentID: assignmentID, Action: models.ActionApproved})
	require.NoError(t, err)
	assert.Equal(t, first.Version, replay.Version)

	after, err := p.HistoryRepository().ListByInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestRecordAction_ConflictingActionRejected(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	assignmentID := assignmentOf(t, instance.ActiveStage(), "alice").ID

	_, err := e.RecordAction(t.Context(), ActionRequest{AssignmentID: assignmentID, Action: models.ActionApproved})
	require.NoError(t, err)

	_, err = e.RecordAction(t.Context(), ActionRequest{AssignmentID: assignmentID, Action: models.ActionRejected})
	require.ErrorIs(t, err, ErrAssignmentActioned)
	assert.True(t, IsValidationError(err))
}

func TestRecordAction_SignatureRequired(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].RequiresSignature = true
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)
	assignmentID := assignmentOf(t, instance.ActiveStage(), "alice").ID

	_, err := e.RecordAction(t.Context(), ActionRequest{AssignmentID: assignmentID, Action: models.ActionApproved})
	require.ErrorIs(t, err, ErrSignatureRequired)

	_, err = e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentID,
		Action:       models.ActionApproved,
		SignatureRef: "sig-8841",
	})
	require.NoError(t, err)
}

func TestRecordAction_QuorumUsesActivationCount(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0] = &models.StageSpec{
		Number: 1, Name: "Engineering Quorum", Policy: models.PolicyQuorum,
		QuorumPercent: 0.5, Strategy: models.StrategyRoleBroadcast,
		RequiredRoles: []string{"engineer"}, AllowDelegation: true,
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)
	stage := instance.ActiveStage()
	require.Equal(t, 3, stage.InitialAssigneeCount)

	// Delegating does not move the quorum denominator.
	updated, err := e.Delegate(t.Context(), DelegateRequest{
		AssignmentID: assignmentOf(t, stage, "erin").ID,
		To:           "zed",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ActiveStage().InitialAssigneeCount)

	// ceil(0.5 * 3) = 2 approvals resolve the stage.
	for _, assignee := range []string{"carol", "dave"} {
		updated, err = e.RecordAction(t.Context(), ActionRequest{
			AssignmentID: assignmentOf(t, updated.ActiveStage(), assignee).ID,
			Action:       models.ActionApproved,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, models.StageStatusCompleted, updated.Stages[0].Status)
	assert.Equal(t, models.OutcomeApproved, updated.Stages[0].Outcome)
}

func TestStart_SkipConditionShortCircuits(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].AllowSkip = true
	definition.Stages[0].SkipCondition = &models.Condition{
		Field: "amount", Operator: models.OperatorLessThan, Value: 1000,
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, map[string]any{"amount": 250})

	require.NotNil(t, instance.CurrentStage)
	assert.Equal(t, 2, *instance.CurrentStage)

	skipped := instance.Stages[0]
	assert.Equal(t, models.StageStatusSkipped, skipped.Status)
	assert.Equal(t, models.OutcomeApproved, skipped.Outcome)
	assert.Empty(t, skipped.Assignments)
}

func TestStart_AutoApproveRuleCompletesInstance(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Rules = []*models.Rule{
		{
			ID:        "petty-cash",
			Condition: models.Condition{Field: "amount", Operator: models.OperatorLessThan, Value: 100},
			Action:    models.ActionAutoApprove,
		},
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, map[string]any{"amount": 40})

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Equal(t, models.OutcomeApproved, instance.Result)

	for _, stage := range instance.Stages {
		assert.Equal(t, models.StageStatusCompleted, stage.Status)
		assert.Empty(t, stage.Assignments)
	}
}

func TestStart_EmptyOptionalPoolRejects(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].RequiredRoles = nil
	definition.Stages[0].OptionalRoles = []string{"qa"}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Equal(t, models.OutcomeRejected, instance.Result)
	assert.NotEmpty(t, instance.Stages[0].Notes)
}

func TestDelegate_ReplacementCounts(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].AllowDelegation = true
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)

	updated, err := e.Delegate(t.Context(), DelegateRequest{
		AssignmentID: assignmentOf(t, instance.ActiveStage(), "alice").ID,
		To:           "zed",
		Reason:       "on shift handover",
	})
	require.NoError(t, err)

	stage := updated.ActiveStage()
	require.Len(t, stage.Assignments, 3)
	assert.Len(t, stage.LiveAssignments(), 2)

	// All-policy stage resolves once the delegate and the remaining
	// original both approve.
	for _, assignee := range []string{"zed", "bob"} {
		updated, err = e.RecordAction(t.Context(), ActionRequest{
			AssignmentID: assignmentOf(t, updated.ActiveStage(), assignee).ID,
			Action:       models.ActionApproved,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, models.OutcomeApproved, updated.Stages[0].Outcome)
}

func TestDelegate_NotAllowed(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	_, err := e.Delegate(t.Context(), DelegateRequest{
		AssignmentID: assignmentOf(t, instance.ActiveStage(), "alice").ID,
		To:           "zed",
	})
	require.ErrorIs(t, err, ErrDelegationNotAllowed)
}

func TestCancel_StoresLateActionsForAuditOnly(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	assignmentID := assignmentOf(t, instance.ActiveStage(), "alice").ID

	cancelled, err := e.Cancel(t.Context(), instance.ID, "entity withdrawn", "frank")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.CurrentStage)

	stored, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: assignmentID,
		Action:       models.ActionApproved,
	})
	require.ErrorIs(t, err, ErrTerminalState)

	// The action is on the record but the instance stays cancelled.
	assignment, _ := stored.AssignmentByID(assignmentID)
	assert.Equal(t, models.ActionApproved, assignment.Action)
	assert.Equal(t, models.InstanceStatusCancelled, stored.Status)
}

func TestCancel_Twice(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	instance := startInstance(t, e, definition.ID, nil)

	_, err := e.Cancel(t.Context(), instance.ID, "duplicate request", "frank")
	require.NoError(t, err)

	_, err = e.Cancel(t.Context(), instance.ID, "again", "frank")
	require.ErrorIs(t, err, ErrTerminalState)
}

func TestEscalate_ChainThenExhaustion(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].Deadline = models.Duration(time.Hour)
	definition.Stages[0].Escalations = []models.EscalationStep{
		{After: 0, EscalateTo: "plant-manager"},
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)
	overdue := time.Now().UTC().Add(2 * time.Hour)

	require.NoError(t, e.Escalate(t.Context(), instance.ID, overdue))

	updated, err := e.Instance(t.Context(), instance.ID)
	require.NoError(t, err)

	stage := updated.ActiveStage()
	require.Len(t, stage.Assignments, 4) // alice, bob + two escalation targets

	targets := 0

	for _, a := range stage.Assignments {
		if a.Type == models.AssignmentEscalationTarget {
			targets++
			assert.Equal(t, "plant-manager", a.Assignee)
			assert.Equal(t, 1, a.EscalationLevel)
		} else {
			assert.Equal(t, 1, a.EscalationLevel)
		}
	}

	assert.Equal(t, 2, targets)
	assert.Equal(t, 2, stage.InitialAssigneeCount) // quorum denominator untouched

	// Second pass: the one-step chain is exhausted, which is recorded once
	// and the instance stays active.
	require.NoError(t, e.Escalate(t.Context(), instance.ID, overdue.Add(time.Hour)))

	updated, err = e.Instance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, updated.Status)
	assert.Len(t, updated.ActiveStage().Assignments, 4)

	evs, err := p.HistoryRepository().ListByInstance(t.Context(), instance.ID)
	require.NoError(t, err)

	exhausted := 0

	for _, ev := range evs {
		if ev.Type == "escalation.exhausted" {
			exhausted++
		}
	}

	assert.Equal(t, 2, exhausted) // one per original assignment

	// Third pass: nothing left to do.
	before := len(evs)
	require.NoError(t, e.Escalate(t.Context(), instance.ID, overdue.Add(2*time.Hour)))

	evs, err = p.HistoryRepository().ListByInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Len(t, evs, before)
}

func TestEscalate_ExclusiveClosesOriginal(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].Deadline = models.Duration(time.Hour)
	definition.Stages[0].EscalationExclusive = true
	definition.Stages[0].Escalations = []models.EscalationStep{
		{After: 0, EscalateTo: "plant-manager"},
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)
	require.NoError(t, e.Escalate(t.Context(), instance.ID, time.Now().UTC().Add(2*time.Hour)))

	updated, err := e.Instance(t.Context(), instance.ID)
	require.NoError(t, err)

	stage := updated.ActiveStage()
	live := stage.LiveAssignments()
	assert.Len(t, live, 2) // originals escalated away, both targets live

	for _, a := range live {
		assert.Equal(t, models.AssignmentEscalationTarget, a.Type)
	}
}

func TestEscalate_TargetActionResolvesStage(t *testing.T) {
	e, p := newEngine(t)

	definition := twoStageDefinition()
	definition.Stages[0].Policy = models.PolicyAny
	definition.Stages[0].Deadline = models.Duration(time.Hour)
	definition.Stages[0].Escalations = []models.EscalationStep{
		{After: 0, EscalateTo: "plant-manager"},
	}
	publish(t, p, definition)

	instance := startInstance(t, e, definition.ID, nil)
	require.NoError(t, e.Escalate(t.Context(), instance.ID, time.Now().UTC().Add(2*time.Hour)))

	escalated, err := e.Instance(t.Context(), instance.ID)
	require.NoError(t, err)

	target := assignmentOf(t, escalated.ActiveStage(), "plant-manager")
	require.Equal(t, models.AssignmentEscalationTarget, target.Type)

	// The target's approval counts like any other; under any-policy it
	// resolves the stage and the instance moves on.
	updated, err := e.RecordAction(t.Context(), ActionRequest{
		AssignmentID: target.ID,
		Action:       models.ActionApproved,
	})
	require.NoError(t, err)

	first := updated.Stages[0]
	assert.Equal(t, models.StageStatusCompleted, first.Status)
	assert.Equal(t, models.OutcomeApproved, first.Outcome)

	require.NotNil(t, updated.CurrentStage)
	assert.Equal(t, 2, *updated.CurrentStage)
	assert.Equal(t, models.StageStatusActive, updated.ActiveStage().Status)
}

func TestOpenAssignments(t *testing.T) {
	e, p := newEngine(t)
	definition := publish(t, p, twoStageDefinition())
	startInstance(t, e, definition.ID, nil)

	open, err := e.OpenAssignments(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "alice", open[0].Assignee)

	open, err = e.OpenAssignments(t.Context(), "carol")
	require.NoError(t, err)
	assert.Empty(t, open)
}
