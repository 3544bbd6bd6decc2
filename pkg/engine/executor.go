package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/machshop/approvalflow/pkg/approval"
	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/rules"
)

// ActionRequest records one approver's decision on an assignment.
type ActionRequest struct {
	AssignmentID string                  `json:"assignment_id" validate:"required"`
	Action       models.AssignmentAction `json:"action"        validate:"required,oneof=approved rejected"`
	Comments     string                  `json:"comments,omitempty"`
	SignatureRef string                  `json:"signature_ref,omitempty"`
}

// DelegateRequest hands an open assignment to another identity.
type DelegateRequest struct {
	AssignmentID string     `json:"assignment_id" validate:"required"`
	To           string     `json:"to"            validate:"required"`
	Reason       string     `json:"reason,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// RecordAction applies an approval or rejection to an assignment, aggregates
// the stage under its policy, and advances the instance when the stage
// resolves. Replaying the same action on the same assignment is a no-op.
func (e *Engine) RecordAction(ctx context.Context, req ActionRequest) (*models.WorkflowInstance, error) {
	if req.Action != models.ActionApproved && req.Action != models.ActionRejected {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}

	instance, unlock, err := e.lockByAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	assignment, stage := instance.AssignmentByID(req.AssignmentID)
	if assignment == nil {
		return nil, persistence.ErrAssignmentNotFound
	}

	// Idempotent replay: same action on the same assignment changes nothing
	// and emits nothing.
	if assignment.Action == req.Action {
		return instance, nil
	}

	if assignment.Action != "" {
		return nil, fmt.Errorf("%w: %s is already %s", ErrAssignmentActioned, assignment.ID, assignment.Action)
	}

	now := time.Now().UTC()

	// Actions racing a cancellation are stored for audit but never
	// aggregated; the caller still learns the instance is gone.
	if instance.Status == models.InstanceStatusCancelled {
		e.applyAction(assignment, req, now)

		event := e.actionEvent(instance, stage, assignment, req)
		event.Payload["post_cancellation"] = true

		if err := e.commit(ctx, instance, []events.HistoryEvent{event}); err != nil {
			return nil, err
		}

		return instance, fmt.Errorf("%w: instance %s is cancelled", ErrTerminalState, instance.ID)
	}

	if instance.Terminal() {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrTerminalState, instance.ID, instance.Status)
	}

	if stage.Status != models.StageStatusActive {
		return nil, fmt.Errorf("%w: stage %d", ErrStageNotActive, stage.StageNumber)
	}

	definition, err := e.definition(ctx, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	spec := definition.Stage(stage.StageNumber)
	if spec == nil {
		return nil, fmt.Errorf("%w: stage %d missing from definition %s", errCorruptDefinition, stage.StageNumber, definition.ID)
	}

	if spec.RequiresSignature && req.SignatureRef == "" {
		return nil, fmt.Errorf("%w: stage %d", ErrSignatureRequired, stage.StageNumber)
	}

	e.applyAction(assignment, req, now)

	trail := []events.HistoryEvent{e.actionEvent(instance, stage, assignment, req)}

	result := approval.Resolve(spec, stage)
	if result.Resolved {
		e.completeStage(instance, stage, result.Outcome, result.Note, &trail)

		advanceErr := e.advance(ctx, definition, instance, stage, &trail)
		if advanceErr != nil && IsResolutionError(advanceErr) {
			// Instance is errored; persist it below so the failure sticks.
			err = advanceErr
		} else if advanceErr != nil {
			return nil, advanceErr
		}
	}

	if commitErr := e.commit(ctx, instance, trail); commitErr != nil {
		return nil, commitErr
	}

	if err != nil {
		return instance, err
	}

	return instance, nil
}

// Delegate closes the assignment as delegated and opens a replacement for
// the target identity. The live assignment count is unchanged, so the stage
// cannot resolve from a delegation alone.
func (e *Engine) Delegate(ctx context.Context, req DelegateRequest) (*models.WorkflowInstance, error) {
	if req.To == "" {
		return nil, fmt.Errorf("%w: delegation target is required", ErrInvalidDelegate)
	}

	instance, unlock, err := e.lockByAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	assignment, stage := instance.AssignmentByID(req.AssignmentID)
	if assignment == nil {
		return nil, persistence.ErrAssignmentNotFound
	}

	if instance.Terminal() {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrTerminalState, instance.ID, instance.Status)
	}

	if stage.Status != models.StageStatusActive {
		return nil, fmt.Errorf("%w: stage %d", ErrStageNotActive, stage.StageNumber)
	}

	if !assignment.Open() {
		return nil, fmt.Errorf("%w: %s is already %s", ErrAssignmentActioned, assignment.ID, assignment.Action)
	}

	definition, err := e.definition(ctx, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	spec := definition.Stage(stage.StageNumber)
	if spec == nil || !spec.AllowDelegation {
		return nil, fmt.Errorf("%w: stage %d", ErrDelegationNotAllowed, stage.StageNumber)
	}

	now := time.Now().UTC()
	assignment.Action = models.ActionDelegated
	assignment.ActedAt = &now

	replacement, err := e.newAssignment(instance, stage, req.To, models.AssignmentDelegate, assignment.DueAt)
	if err != nil {
		return nil, err
	}

	replacement.EscalationLevel = assignment.EscalationLevel
	replacement.Delegation = &models.Delegation{
		From:   assignment.Assignee,
		Reason: req.Reason,
		Expiry: req.Expiry,
	}

	stage.Assignments = append(stage.Assignments, replacement)

	delegated := events.ForAssignment(events.Delegated, instance.ID, stage.StageNumber, assignment.ID)
	delegated.Actor = assignment.Assignee
	delegated.Payload["to"] = req.To
	delegated.Payload["reason"] = req.Reason

	trail := []events.HistoryEvent{
		delegated,
		e.assignmentCreatedEvent(instance, stage, replacement),
	}

	if err := e.commit(ctx, instance, trail); err != nil {
		return nil, err
	}

	return instance, nil
}

// Escalate fires any due escalations for one instance's active stage. The
// scheduler calls this per instance; state is re-read under the instance
// lock so an action recorded between scan and firing wins.
func (e *Engine) Escalate(ctx context.Context, instanceID string, now time.Time) error {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Terminal() {
		return nil
	}

	stage := instance.ActiveStage()
	if stage == nil || stage.Status != models.StageStatusActive {
		return nil
	}

	definition, err := e.definition(ctx, instance.DefinitionID)
	if err != nil {
		return err
	}

	spec := definition.Stage(stage.StageNumber)
	if spec == nil {
		return fmt.Errorf("%w: stage %d missing from definition %s", errCorruptDefinition, stage.StageNumber, definition.ID)
	}

	var trail []events.HistoryEvent

	for _, assignment := range stage.Assignments {
		if !assignment.Overdue(now) {
			continue
		}

		chain := spec.Escalations

		// Level beyond the chain means exhaustion already fired.
		if assignment.EscalationLevel > len(chain) {
			continue
		}

		if assignment.EscalationLevel == len(chain) {
			// Chain exhausted: one audit event, the instance stays active
			// and waits for a human decision or a cancellation.
			exhausted := events.ForAssignment(events.EscalationExhausted, instance.ID, stage.StageNumber, assignment.ID)
			exhausted.Payload["assignee"] = assignment.Assignee

			trail = append(trail, exhausted)
			assignment.EscalationLevel++

			continue
		}

		step := chain[assignment.EscalationLevel]

		firesAt := assignment.DueAt.Add(step.After.Std())
		if now.Before(firesAt) {
			continue
		}

		var dueAt *time.Time

		if spec.Deadline > 0 {
			due := now.Add(spec.Deadline.Std())
			dueAt = &due
		}

		target, err := e.newAssignment(instance, stage, step.EscalateTo, models.AssignmentEscalationTarget, dueAt)
		if err != nil {
			return err
		}

		target.EscalationLevel = assignment.EscalationLevel + 1
		stage.Assignments = append(stage.Assignments, target)

		assignment.EscalationLevel++

		if spec.EscalationExclusive {
			actedAt := now
			assignment.Action = models.ActionEscalated
			assignment.ActedAt = &actedAt
		}

		escalated := events.ForAssignment(events.Escalated, instance.ID, stage.StageNumber, assignment.ID)
		escalated.Payload["escalate_to"] = step.EscalateTo
		escalated.Payload["level"] = assignment.EscalationLevel
		escalated.Payload["exclusive"] = spec.EscalationExclusive

		trail = append(trail, escalated, e.assignmentCreatedEvent(instance, stage, target))
	}

	if len(trail) == 0 {
		return nil
	}

	return e.commit(ctx, instance, trail)
}

// activate enters a stage: it evaluates skip and auto-approve rules, resolves
// assignees, creates the stage instance with its assignments, and recurses
// through advance when the stage short-circuits. Connection graphs are
// acyclic, so the recursion is bounded by the stage count.
func (e *Engine) activate(ctx context.Context, definition *models.WorkflowDefinition, instance *models.WorkflowInstance, spec *models.StageSpec, trail *[]events.HistoryEvent) error {
	now := time.Now().UTC()

	stageID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate stage instance ID: %w", err)
	}

	stage := &models.StageInstance{
		ID:          stageID.String(),
		StageNumber: spec.Number,
		Status:      models.StageStatusActive,
		StartedAt:   now,
		Assignments: make([]*models.Assignment, 0),
	}

	instance.Stages = append(instance.Stages, stage)
	instance.CurrentStage = &spec.Number

	matches := e.evaluateRules(ctx, definition, instance)

	if e.shouldSkip(spec, matches, instance.Context) {
		stage.Status = models.StageStatusSkipped
		stage.Outcome = models.OutcomeApproved
		stage.CompletedAt = &now
		stage.Notes = "skipped: skip condition held"

		skipped := events.ForStage(events.StageCompleted, instance.ID, spec.Number)
		skipped.Payload["skipped"] = true
		skipped.Payload["outcome"] = string(models.OutcomeApproved)

		*trail = append(*trail, skipped)

		return e.advance(ctx, definition, instance, stage, trail)
	}

	if match := e.autoApproveMatch(spec, matches); match != nil {
		stage.Status = models.StageStatusCompleted
		stage.Outcome = models.OutcomeApproved
		stage.CompletedAt = &now
		stage.Notes = "auto-approved by rule " + match.Rule.ID

		approved := events.ForStage(events.StageCompleted, instance.ID, spec.Number)
		approved.Payload["auto_approved"] = true
		approved.Payload["rule_id"] = match.Rule.ID
		approved.Payload["outcome"] = string(models.OutcomeApproved)

		*trail = append(*trail, approved)

		return e.advance(ctx, definition, instance, stage, trail)
	}

	assignees, err := e.resolver.Resolve(ctx, definition.ID, spec, instance.Context)
	if err != nil {
		if IsResolutionError(err) {
			cause := fmt.Errorf("stage %d assignee resolution failed: %w", spec.Number, err)
			e.fail(instance, cause, trail)

			return cause
		}

		return err
	}

	if spec.Deadline > 0 {
		deadline := now.Add(spec.Deadline.Std())
		stage.Deadline = &deadline
	}

	stage.InitialAssigneeCount = len(assignees)

	activated := events.ForStage(events.StageActivated, instance.ID, spec.Number)
	activated.Payload["stage_name"] = spec.Name
	activated.Payload["assignee_count"] = len(assignees)

	*trail = append(*trail, activated)

	for _, assignee := range assignees {
		assignment, err := e.newAssignment(instance, stage, assignee, models.AssignmentPrimary, stage.Deadline)
		if err != nil {
			return err
		}

		stage.Assignments = append(stage.Assignments, assignment)

		*trail = append(*trail, e.assignmentCreatedEvent(instance, stage, assignment))
	}

	// With no required roles and an empty pool a stage can legally activate
	// with nobody assigned; the policy rejects it right away instead of
	// leaving the instance stuck.
	result := approval.Resolve(spec, stage)
	if result.Resolved {
		e.completeStage(instance, stage, result.Outcome, result.Note, trail)

		return e.advance(ctx, definition, instance, stage, trail)
	}

	return nil
}

func (e *Engine) shouldSkip(spec *models.StageSpec, matches []rules.Match, contextData map[string]any) bool {
	if spec.AllowSkip && spec.SkipCondition != nil {
		held, err := rules.Holds(*spec.SkipCondition, contextData)
		if err == nil && held {
			return true
		}
	}

	for i := range matches {
		rule := matches[i].Rule
		if rule.Action == models.ActionSkipStage && rule.TargetStage == spec.Number {
			return true
		}
	}

	return false
}

// autoApproveMatch returns the auto-approve rule that applies to this stage.
// A zero target stage applies to every stage.
func (e *Engine) autoApproveMatch(spec *models.StageSpec, matches []rules.Match) *rules.Match {
	for i := range matches {
		rule := matches[i].Rule
		if rule.Action == models.ActionAutoApprove && (rule.TargetStage == 0 || rule.TargetStage == spec.Number) {
			return &matches[i]
		}
	}

	return nil
}

func (e *Engine) completeStage(instance *models.WorkflowInstance, stage *models.StageInstance, outcome models.StageOutcome, note string, trail *[]events.HistoryEvent) {
	now := time.Now().UTC()

	stage.Status = models.StageStatusCompleted
	stage.Outcome = outcome
	stage.CompletedAt = &now

	if note != "" {
		stage.Notes = note
	}

	event := events.ForStage(events.StageCompleted, instance.ID, stage.StageNumber)
	event.Payload["outcome"] = string(outcome)

	if note != "" {
		event.Payload["note"] = note
	}

	*trail = append(*trail, event)
}

func (e *Engine) applyAction(assignment *models.Assignment, req ActionRequest, now time.Time) {
	assignment.Action = req.Action
	assignment.ActedAt = &now
	assignment.Comments = req.Comments
	assignment.SignatureRef = req.SignatureRef
}

func (e *Engine) actionEvent(instance *models.WorkflowInstance, stage *models.StageInstance, assignment *models.Assignment, req ActionRequest) events.HistoryEvent {
	event := events.ForAssignment(events.ActionRecorded, instance.ID, stage.StageNumber, assignment.ID)
	event.Actor = assignment.Assignee
	event.Payload["action"] = string(req.Action)

	if req.Comments != "" {
		event.Payload["comments"] = req.Comments
	}

	if req.SignatureRef != "" {
		event.Payload["signature_ref"] = req.SignatureRef
	}

	return event
}

func (e *Engine) assignmentCreatedEvent(instance *models.WorkflowInstance, stage *models.StageInstance, assignment *models.Assignment) events.HistoryEvent {
	event := events.ForAssignment(events.AssignmentCreated, instance.ID, stage.StageNumber, assignment.ID)
	event.Payload["assignee"] = assignment.Assignee
	event.Payload["type"] = string(assignment.Type)

	return event
}

func (e *Engine) newAssignment(instance *models.WorkflowInstance, stage *models.StageInstance, assignee string, kind models.AssignmentType, dueAt *time.Time) (*models.Assignment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate assignment ID: %w", err)
	}

	return &models.Assignment{
		ID:              id.String(),
		InstanceID:      instance.ID,
		StageInstanceID: stage.ID,
		Assignee:        assignee,
		Type:            kind,
		DueAt:           dueAt,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// lockByAssignment finds the owning instance, takes its lock, and re-reads
// the instance under the lock so the caller sees current state.
func (e *Engine) lockByAssignment(ctx context.Context, assignmentID string) (*models.WorkflowInstance, func(), error) {
	owner, err := e.instances.FindByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}

	unlock := e.locks.acquire(owner.ID)

	instance, err := e.instances.GetByID(ctx, owner.ID)
	if err != nil {
		unlock()

		return nil, nil, err
	}

	return instance, unlock, nil
}
