package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
)

// InstanceRepository stores each workflow instance aggregate (instance plus
// stages plus assignments) as a single JSON document, which makes the
// aggregate write trivially atomic.
type InstanceRepository struct {
	p *Persistence
}

func (r *InstanceRepository) path(id string) string {
	return filepath.Join(r.p.dir("instances"), id+".json")
}

func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var current models.WorkflowInstance

	err := readJSON(r.path(instance.ID), &current)

	switch {
	case err == nil:
		if current.Version != instance.Version {
			return persistence.NewInstanceError("Save", instance.ID, persistence.ErrStaleVersion)
		}
	case os.IsNotExist(err):
		// First write of a new aggregate.
	default:
		return fmt.Errorf("failed to read instance %s: %w", instance.ID, err)
	}

	instance.Version++

	return writeJSON(r.path(instance.ID), instance)
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := readJSON(r.path(id), &instance)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	return &instance, nil
}

func (r *InstanceRepository) FindActiveByEntity(ctx context.Context, workflowName, entityType, entityID string) (*models.WorkflowInstance, error) {
	instances, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		if instance.Status == models.InstanceStatusActive &&
			instance.WorkflowName == workflowName &&
			instance.EntityType == entityType &&
			instance.EntityID == entityID {
			return instance, nil
		}
	}

	return nil, persistence.NewInstanceError("FindActiveByEntity", entityID, persistence.ErrInstanceNotFound)
}

func (r *InstanceRepository) FindByAssignment(ctx context.Context, assignmentID string) (*models.WorkflowInstance, error) {
	instances, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		if a, _ := instance.AssignmentByID(assignmentID); a != nil {
			return instance, nil
		}
	}

	return nil, persistence.NewInstanceError("FindByAssignment", assignmentID, persistence.ErrAssignmentNotFound)
}

func (r *InstanceRepository) ListWithOverdueAssignments(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	instances, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	overdue := make([]*models.WorkflowInstance, 0)

	for _, instance := range instances {
		if instance.Status != models.InstanceStatusActive {
			continue
		}

		stage := instance.ActiveStage()
		if stage == nil || stage.Status != models.StageStatusActive {
			continue
		}

		for _, a := range stage.Assignments {
			if a.Overdue(now) {
				overdue = append(overdue, instance)

				break
			}
		}
	}

	return overdue, nil
}

func (r *InstanceRepository) CountOpenAssignments(ctx context.Context, assignee string) (int, error) {
	assignments, err := r.ListOpenAssignments(ctx, assignee)
	if err != nil {
		return 0, err
	}

	return len(assignments), nil
}

func (r *InstanceRepository) ListOpenAssignments(ctx context.Context, assignee string) ([]*models.Assignment, error) {
	instances, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	open := make([]*models.Assignment, 0)

	for _, instance := range instances {
		if instance.Status != models.InstanceStatusActive {
			continue
		}

		for _, stage := range instance.Stages {
			if stage.Status != models.StageStatusActive {
				continue
			}

			for _, a := range stage.Assignments {
				if a.Assignee == assignee && a.Open() {
					open = append(open, a)
				}
			}
		}
	}

	sort.Slice(open, func(a, b int) bool {
		return open[a].CreatedAt.Before(open[b].CreatedAt)
	})

	return open, nil
}

func (r *InstanceRepository) all(_ context.Context) ([]*models.WorkflowInstance, error) {
	files, err := fs.Glob(os.DirFS(r.p.dir("instances")), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(files))

	for _, f := range files {
		var instance models.WorkflowInstance

		err := readJSON(filepath.Join(r.p.dir("instances"), f), &instance)
		if err != nil {
			return nil, fmt.Errorf("failed to read instance file %s: %w", f, err)
		}

		instances = append(instances, &instance)
	}

	return instances, nil
}
