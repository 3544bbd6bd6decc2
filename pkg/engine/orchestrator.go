package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/rules"
)

// StartRequest asks the engine to start a workflow instance for one entity.
type StartRequest struct {
	DefinitionID string          `json:"definition_id" validate:"required"`
	EntityType   string          `json:"entity_type"   validate:"required"`
	EntityID     string          `json:"entity_id"     validate:"required"`
	Requester    string          `json:"requester"`
	Priority     models.Priority `json:"priority,omitempty"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
	Context      map[string]any  `json:"context"`
}

// Start creates and activates a workflow instance. At most one active
// instance may exist per (workflow name, entity type, entity id); a second
// start is rejected with ErrDuplicateActiveInstance.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	definition, err := e.definition(ctx, req.DefinitionID)
	if err != nil {
		return nil, err
	}

	if !definition.Active {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionInactive, definition.ID)
	}

	existing, err := e.instances.FindActiveByEntity(ctx, definition.Name, req.EntityType, req.EntityID)
	if err != nil && !persistence.IsInstanceNotFound(err) {
		return nil, err
	}

	if existing != nil {
		return nil, fmt.Errorf("%w: instance %s is active for %s/%s",
			ErrDuplicateActiveInstance, existing.ID, req.EntityType, req.EntityID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance ID: %w", err)
	}

	contextData := req.Context
	if contextData == nil {
		contextData = make(map[string]any)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	instance := &models.WorkflowInstance{
		ID:           id.String(),
		DefinitionID: definition.ID,
		WorkflowName: definition.Name,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Status:       models.InstanceStatusActive,
		Priority:     priority,
		Deadline:     req.Deadline,
		Context:      contextData,
		Requester:    req.Requester,
		Stages:       make([]*models.StageInstance, 0),
		CreatedAt:    time.Now().UTC(),
	}

	e.applyPriorityRules(ctx, definition, instance)

	started := events.New(events.InstanceStarted, instance.ID)
	started.Actor = req.Requester
	started.Payload["definition_id"] = definition.ID
	started.Payload["workflow_name"] = definition.Name
	started.Payload["entity_type"] = req.EntityType
	started.Payload["entity_id"] = req.EntityID

	trail := []events.HistoryEvent{started}

	first, err := firstStageOf(definition)
	if err != nil {
		return nil, err
	}

	activateErr := e.activate(ctx, definition, instance, first, &trail)
	if activateErr != nil && !IsResolutionError(activateErr) {
		return nil, activateErr
	}

	// A resolution failure already moved the instance to errored; the
	// instance is persisted either way so the failure is auditable.
	err = e.commit(ctx, instance, trail)
	if err != nil {
		return nil, err
	}

	if activateErr != nil {
		return instance, activateErr
	}

	return instance, nil
}

// Cancel terminates an active instance. Open assignments become moot; any
// action recorded against them afterwards is kept for audit only.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason, actor string) (*models.WorkflowInstance, error) {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Terminal() {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrTerminalState, instanceID, instance.Status)
	}

	now := time.Now().UTC()

	if stage := instance.ActiveStage(); stage != nil && stage.Status == models.StageStatusActive {
		stage.Status = models.StageStatusSkipped
		stage.CompletedAt = &now
	}

	instance.Status = models.InstanceStatusCancelled
	instance.CancelReason = reason
	instance.CurrentStage = nil
	instance.CompletedAt = &now

	cancelled := events.New(events.InstanceCancelled, instance.ID)
	cancelled.Actor = actor
	cancelled.Payload["reason"] = reason

	err = e.commit(ctx, instance, []events.HistoryEvent{cancelled})
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// advance moves the instance past a completed stage: it re-evaluates the
// rule set, follows the matching connection (or a rejection reroute), and
// either activates the next stage or completes the instance.
func (e *Engine) advance(ctx context.Context, definition *models.WorkflowDefinition, instance *models.WorkflowInstance, completed *models.StageInstance, trail *[]events.HistoryEvent) error {
	if instance.Terminal() {
		return nil
	}

	matches := e.evaluateRules(ctx, definition, instance)
	e.applyPriorityMatch(instance, matches)

	outcome := completed.Outcome

	// A route rule is the only way out of a rejection besides an explicit
	// rejection-path connection. It never fires on approvals, so a
	// persistently matching rule cannot loop an approved flow.
	if outcome == models.OutcomeRejected {
		if match := rules.First(matches, models.ActionRouteToStage); match != nil {
			next := definition.Stage(match.Rule.TargetStage)
			if next == nil {
				return fmt.Errorf("rule %s routes to unknown stage %d", match.Rule.ID, match.Rule.TargetStage)
			}

			return e.activate(ctx, definition, instance, next, trail)
		}
	}

	connections := definition.Outgoing(completed.StageNumber, outcome)
	if len(connections) == 0 {
		e.complete(instance, outcome, trail)

		return nil
	}

	next := connections[0].ToStage
	for _, connection := range connections[1:] {
		if connection.ToStage < next {
			next = connection.ToStage
		}
	}

	return e.activate(ctx, definition, instance, definition.Stage(next), trail)
}

func (e *Engine) complete(instance *models.WorkflowInstance, result models.StageOutcome, trail *[]events.HistoryEvent) {
	now := time.Now().UTC()

	instance.Status = models.InstanceStatusCompleted
	instance.Result = result
	instance.CurrentStage = nil
	instance.CompletedAt = &now

	event := events.New(events.InstanceCompleted, instance.ID)
	event.Payload["result"] = string(result)

	*trail = append(*trail, event)
}

// fail moves the instance to the errored state. Used for unrecoverable
// conditions such as assignee resolution failures; the instance keeps its
// stage history for diagnosis.
func (e *Engine) fail(instance *models.WorkflowInstance, cause error, trail *[]events.HistoryEvent) {
	now := time.Now().UTC()

	instance.Status = models.InstanceStatusErrored
	instance.ErrorMessage = cause.Error()
	instance.CompletedAt = &now

	event := events.New(events.InstanceErrored, instance.ID)
	event.Payload["error"] = cause.Error()

	*trail = append(*trail, event)
}

// evaluateRules evaluates the definition's rule set against the instance
// context. Evaluation errors come from type mismatches in context data; they
// are logged and treated as no match rather than blocking the flow.
func (e *Engine) evaluateRules(ctx context.Context, definition *models.WorkflowDefinition, instance *models.WorkflowInstance) []rules.Match {
	matches, err := rules.Evaluate(definition.Rules, instance.Context)
	if err != nil {
		e.logger.WarnContext(ctx, "Rule evaluation failed, continuing without matches",
			"instance_id", instance.ID,
			"definition_id", definition.ID,
			"error", err)

		return nil
	}

	return matches
}

func (e *Engine) applyPriorityRules(ctx context.Context, definition *models.WorkflowDefinition, instance *models.WorkflowInstance) {
	e.applyPriorityMatch(instance, e.evaluateRules(ctx, definition, instance))
}

func (e *Engine) applyPriorityMatch(instance *models.WorkflowInstance, matches []rules.Match) {
	match := rules.First(matches, models.ActionSetPriority)
	if match != nil && match.Rule.SetPriority != "" {
		instance.Priority = match.Rule.SetPriority
	}
}

var errCorruptDefinition = errors.New("definition has no stages")

func firstStageOf(definition *models.WorkflowDefinition) (*models.StageSpec, error) {
	first := definition.FirstStage()
	if first == nil {
		return nil, fmt.Errorf("%w: %s", errCorruptDefinition, definition.ID)
	}

	return first, nil
}
