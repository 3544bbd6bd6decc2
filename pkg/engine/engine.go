package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/history"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/resolver"
)

// Engine runs workflow instances against their definitions: it starts
// instances, activates stages, aggregates approval actions, and walks the
// stage graph until a terminal state. All mutations of one instance are
// serialized through a per-instance lock and committed as a single aggregate
// write with optimistic version checking underneath.
type Engine struct {
	definitions persistence.DefinitionRepository
	instances   persistence.InstanceRepository
	resolver    *resolver.Resolver
	recorder    *history.Recorder
	locks       lockRegistry
	logger      *slog.Logger
}

func New(persist persistence.Persistence, res *resolver.Resolver, recorder *history.Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		definitions: persist.DefinitionRepository(),
		instances:   persist.InstanceRepository(),
		resolver:    res,
		recorder:    recorder,
		logger:      logger.With("module", "engine"),
	}
}

// Instance returns the current state of a workflow instance.
func (e *Engine) Instance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.instances.GetByID(ctx, instanceID)
}

// OpenAssignments returns an identity's pending approval tasks across all
// active instances.
func (e *Engine) OpenAssignments(ctx context.Context, assignee string) ([]*models.Assignment, error) {
	return e.instances.ListOpenAssignments(ctx, assignee)
}

// OverdueInstances returns the active instances holding at least one open
// assignment past its due date. The escalation scheduler scans these.
func (e *Engine) OverdueInstances(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	return e.instances.ListWithOverdueAssignments(ctx, now)
}

func (e *Engine) definition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	definition, err := e.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition %s: %w", id, err)
	}

	return definition, nil
}

// commit saves the instance aggregate and then records the accumulated
// history trail. Recording happens after the state is durable; a failed
// append is logged, never rolled back.
func (e *Engine) commit(ctx context.Context, instance *models.WorkflowInstance, trail []events.HistoryEvent) error {
	err := e.instances.Save(ctx, instance)
	if err != nil {
		if persistence.IsStaleVersion(err) {
			return fmt.Errorf("%w: instance %s", ErrConcurrencyConflict, instance.ID)
		}

		return err
	}

	for _, event := range trail {
		if err := e.recorder.Record(ctx, event); err != nil {
			e.logger.ErrorContext(ctx, "Failed to record history event",
				"event_type", event.Type,
				"instance_id", event.InstanceID,
				"error", err)
		}
	}

	return nil
}
