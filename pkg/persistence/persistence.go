// Package persistence provides the data storage abstraction layer for
// workflow definitions, instances, and history events.
package persistence

import (
	"context"
	"time"

	"github.com/machshop/approvalflow/pkg/events"
	"github.com/machshop/approvalflow/pkg/models"
)

type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	HistoryRepository() HistoryRepository
	CursorRepository() CursorRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores immutable workflow definitions. Definitions
// are never deleted, only deactivated.
type DefinitionRepository interface {
	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	GetByNameVersion(ctx context.Context, name string, version int) (*models.WorkflowDefinition, error)
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
	Deactivate(ctx context.Context, id string) error
}

// InstanceRepository stores workflow instances as aggregates: an instance
// together with its stage instances and assignments is written atomically.
// Save enforces optimistic concurrency via the instance version and returns
// ErrStaleVersion on conflict.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// FindActiveByEntity returns the active instance for the given workflow
	// name and entity, or ErrInstanceNotFound.
	FindActiveByEntity(ctx context.Context, workflowName, entityType, entityID string) (*models.WorkflowInstance, error)
	// FindByAssignment returns the instance owning the given assignment.
	FindByAssignment(ctx context.Context, assignmentID string) (*models.WorkflowInstance, error)
	// ListWithOverdueAssignments returns active instances holding at least
	// one open assignment whose due date has passed.
	ListWithOverdueAssignments(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error)
	// CountOpenAssignments reports the open assignments held by an identity
	// across all active instances, for load-balanced assignment.
	CountOpenAssignments(ctx context.Context, assignee string) (int, error)
	// ListOpenAssignments returns an identity's open assignments across all
	// active instances.
	ListOpenAssignments(ctx context.Context, assignee string) ([]*models.Assignment, error)
}

// HistoryRepository is the append-only audit event store.
type HistoryRepository interface {
	Append(ctx context.Context, event *events.HistoryEvent) error
	ListByInstance(ctx context.Context, instanceID string) ([]*events.HistoryEvent, error)
}

// CursorRepository persists round-robin rotation cursors per definition and
// role.
type CursorRepository interface {
	// Next advances the cursor for (definitionID, role) and returns the
	// index to use against a pool of poolSize identities.
	Next(ctx context.Context, definitionID, role string, poolSize int) (int, error)
}
