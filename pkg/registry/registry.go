// Package registry stores immutable, versioned workflow definitions and
// validates them at publish time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
)

// Definition validation errors, all rejected at publish time with the
// definition left unpublished.
var (
	ErrDuplicateStageNumber = errors.New("duplicate stage number")
	ErrCyclicConnections    = errors.New("stage connections contain a cycle")
	ErrUnknownStage         = errors.New("reference to unknown stage number")
	ErrUnsatisfiablePolicy  = errors.New("approval policy cannot be satisfied")
	ErrSchemaViolation      = errors.New("definition document violates schema")
)

// RoleCounter reports how many identities currently hold a role, for static
// satisfiability checks. Nil disables the check.
type RoleCounter func(ctx context.Context, role string) (int, error)

// Registry is the definition store. Published definitions are immutable;
// deactivation only stops new instances, running ones continue.
type Registry struct {
	definitions persistence.DefinitionRepository
	validate    *validator.Validate
	roleCounter RoleCounter
	logger      *slog.Logger
}

func New(definitions persistence.DefinitionRepository, logger *slog.Logger) *Registry {
	return &Registry{
		definitions: definitions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "registry"),
	}
}

// WithRoleCounter enables static approval-policy satisfiability checks.
func (r *Registry) WithRoleCounter(counter RoleCounter) *Registry {
	r.roleCounter = counter

	return r
}

// Publish validates and stores a definition, returning its ID. The
// definition becomes immutable and active.
func (r *Registry) Publish(ctx context.Context, definition *models.WorkflowDefinition) (string, error) {
	if definition == nil {
		return "", fmt.Errorf("%w: definition is nil", ErrSchemaViolation)
	}

	if definition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate definition ID: %w", err)
		}

		definition.ID = id.String()
	}

	err := r.validateDocument(definition)
	if err != nil {
		return "", err
	}

	err = r.validate.Struct(definition)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	err = r.validateStructure(ctx, definition)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	definition.Active = true
	definition.CreatedAt = now
	definition.PublishedAt = &now

	err = r.definitions.Save(ctx, definition)
	if err != nil {
		return "", err
	}

	r.logger.InfoContext(ctx, "Published workflow definition",
		"definition_id", definition.ID,
		"name", definition.Name,
		"version", definition.Version,
		"stages", len(definition.Stages))

	return definition.ID, nil
}

// Get returns a definition by ID.
func (r *Registry) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return r.definitions.GetByID(ctx, id)
}

// List returns all definitions, active and deactivated.
func (r *Registry) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return r.definitions.List(ctx)
}

// Deactivate stops new instances from starting against a definition.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	return r.definitions.Deactivate(ctx, id)
}

func (r *Registry) validateStructure(ctx context.Context, definition *models.WorkflowDefinition) error {
	stages := make(map[int]*models.StageSpec, len(definition.Stages))

	for _, stage := range definition.Stages {
		if _, exists := stages[stage.Number]; exists {
			return fmt.Errorf("%w: %d", ErrDuplicateStageNumber, stage.Number)
		}

		stages[stage.Number] = stage

		err := r.validatePolicy(ctx, stage)
		if err != nil {
			return err
		}
	}

	for _, conn := range definition.Connections {
		if _, ok := stages[conn.FromStage]; !ok {
			return fmt.Errorf("%w: connection from stage %d", ErrUnknownStage, conn.FromStage)
		}

		if _, ok := stages[conn.ToStage]; !ok {
			return fmt.Errorf("%w: connection to stage %d", ErrUnknownStage, conn.ToStage)
		}
	}

	// Rules that route or skip must name stages that exist.
	for _, rule := range definition.Rules {
		if rule.Action != models.ActionRouteToStage && rule.Action != models.ActionSkipStage {
			continue
		}

		if _, ok := stages[rule.TargetStage]; !ok {
			return fmt.Errorf("%w: rule %s targets stage %d", ErrUnknownStage, rule.ID, rule.TargetStage)
		}
	}

	return detectCycle(definition.Connections)
}

func (r *Registry) validatePolicy(ctx context.Context, stage *models.StageSpec) error {
	switch stage.Policy {
	case models.PolicyThreshold:
		if stage.Threshold < 1 {
			return fmt.Errorf("%w: stage %d threshold %d", ErrUnsatisfiablePolicy, stage.Number, stage.Threshold)
		}

		if r.roleCounter == nil {
			return nil
		}

		// Only statically resolvable role sets are checked; dynamic
		// strategies can still fail at activation and error the instance.
		if stage.Strategy != models.StrategyRoleBroadcast {
			return nil
		}

		total := 0

		for _, role := range stage.RequiredRoles {
			count, err := r.roleCounter(ctx, role)
			if err != nil {
				return fmt.Errorf("failed to count role %s: %w", role, err)
			}

			total += count
		}

		if len(stage.RequiredRoles) > 0 && total < stage.Threshold {
			return fmt.Errorf("%w: stage %d needs %d approvers, roles resolve to %d",
				ErrUnsatisfiablePolicy, stage.Number, stage.Threshold, total)
		}

		return nil
	case models.PolicyQuorum:
		if stage.QuorumPercent <= 0 || stage.QuorumPercent > 1 {
			return fmt.Errorf("%w: stage %d quorum percent %v", ErrUnsatisfiablePolicy, stage.Number, stage.QuorumPercent)
		}

		return nil
	default:
		return nil
	}
}

// detectCycle runs a colored depth-first search over the connection graph.
func detectCycle(connections []*models.Connection) error {
	adjacency := make(map[int][]int)

	for _, conn := range connections {
		adjacency[conn.FromStage] = append(adjacency[conn.FromStage], conn.ToStage)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[int]int)

	var visit func(node int) bool

	visit = func(node int) bool {
		color[node] = gray

		for _, next := range adjacency[node] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}

		color[node] = black

		return false
	}

	for node := range adjacency {
		if color[node] == white && visit(node) {
			return ErrCyclicConnections
		}
	}

	return nil
}

// IsValidationError reports whether the error is a publish-time validation
// failure rather than an infrastructure fault.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrDuplicateStageNumber) ||
		errors.Is(err, ErrCyclicConnections) ||
		errors.Is(err, ErrUnknownStage) ||
		errors.Is(err, ErrUnsatisfiablePolicy) ||
		errors.Is(err, ErrSchemaViolation)
}
