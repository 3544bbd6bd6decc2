// Package resolver turns a stage's role and strategy specification into a
// concrete set of assignee identities.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/machshop/approvalflow/pkg/persistence"
)

var (
	// ErrNoAssignees indicates required roles resolved to nobody; the stage
	// cannot proceed and the instance must be errored.
	ErrNoAssignees = errors.New("no assignees resolvable for required roles")

	// ErrMissingAssigneeField indicates a specific-user stage whose context
	// field is absent or empty.
	ErrMissingAssigneeField = errors.New("assignee field missing from instance context")
)

// Roster is the external collaborator that knows who currently holds a role
// and how loaded each identity is.
type Roster interface {
	ResolveRole(ctx context.Context, role string) ([]string, error)
	OpenAssignmentCount(ctx context.Context, identity string) (int, error)
}

// Resolver resolves stage assignees. Round-robin cursors are persisted
// through the cursor repository so rotation survives restarts.
type Resolver struct {
	roster  Roster
	cursors persistence.CursorRepository
}

func New(roster Roster, cursors persistence.CursorRepository) *Resolver {
	return &Resolver{roster: roster, cursors: cursors}
}

// Resolve returns the assignee identity set for a stage activation. An empty
// result with non-empty required roles is ErrNoAssignees; an empty result
// with no required roles is legal and left to the approval policy to reject.
func (r *Resolver) Resolve(ctx context.Context, definitionID string, spec *models.StageSpec, contextData map[string]any) ([]string, error) {
	switch spec.Strategy {
	case models.StrategySpecificUser:
		return r.resolveSpecificUser(spec, contextData)
	case models.StrategyRoundRobin:
		return r.resolveRoundRobin(ctx, definitionID, spec)
	case models.StrategyLoadBalanced:
		return r.resolveLoadBalanced(ctx, spec)
	case models.StrategyRoleBroadcast:
		return r.resolveBroadcast(ctx, spec)
	default:
		return nil, fmt.Errorf("unsupported assignment strategy %q", spec.Strategy)
	}
}

func (r *Resolver) resolveBroadcast(ctx context.Context, spec *models.StageSpec) ([]string, error) {
	identities, err := r.pool(ctx, spec.RequiredRoles)
	if err != nil {
		return nil, err
	}

	// Optional roles only fill in when the required set is empty, so an
	// empty optional role cannot stall a stage that has required approvers.
	if len(identities) == 0 {
		identities, err = r.pool(ctx, spec.OptionalRoles)
		if err != nil {
			return nil, err
		}
	}

	if len(identities) == 0 && len(spec.RequiredRoles) > 0 {
		return nil, ErrNoAssignees
	}

	return identities, nil
}

func (r *Resolver) resolveSpecificUser(spec *models.StageSpec, contextData map[string]any) ([]string, error) {
	field := spec.AssigneeField
	if field == "" {
		field = "requested_approver"
	}

	identity, _ := contextData[field].(string)
	if identity == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAssigneeField, field)
	}

	return []string{identity}, nil
}

func (r *Resolver) resolveRoundRobin(ctx context.Context, definitionID string, spec *models.StageSpec) ([]string, error) {
	pool, role, err := r.rolePool(ctx, spec)
	if err != nil {
		return nil, err
	}

	if len(pool) == 0 {
		return nil, ErrNoAssignees
	}

	index, err := r.cursors.Next(ctx, definitionID, role, len(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to advance round-robin cursor: %w", err)
	}

	return []string{pool[index]}, nil
}

func (r *Resolver) resolveLoadBalanced(ctx context.Context, spec *models.StageSpec) ([]string, error) {
	pool, _, err := r.rolePool(ctx, spec)
	if err != nil {
		return nil, err
	}

	if len(pool) == 0 {
		return nil, ErrNoAssignees
	}

	// Pool is sorted, so the first minimum wins ties deterministically.
	best := ""
	bestCount := -1

	for _, identity := range pool {
		count, err := r.roster.OpenAssignmentCount(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("failed to count open assignments for %s: %w", identity, err)
		}

		if bestCount < 0 || count < bestCount {
			best = identity
			bestCount = count
		}
	}

	return []string{best}, nil
}

// rolePool resolves the single-pick strategies' candidate pool: the first
// required role with members, falling back to optional roles.
func (r *Resolver) rolePool(ctx context.Context, spec *models.StageSpec) ([]string, string, error) {
	for _, role := range spec.RequiredRoles {
		identities, err := r.roster.ResolveRole(ctx, role)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve role %s: %w", role, err)
		}

		if len(identities) > 0 {
			return dedupeSorted(identities), role, nil
		}
	}

	for _, role := range spec.OptionalRoles {
		identities, err := r.roster.ResolveRole(ctx, role)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve role %s: %w", role, err)
		}

		if len(identities) > 0 {
			return dedupeSorted(identities), role, nil
		}
	}

	return nil, "", nil
}

func (r *Resolver) pool(ctx context.Context, roles []string) ([]string, error) {
	seen := make(map[string]struct{})
	identities := make([]string, 0)

	for _, role := range roles {
		members, err := r.roster.ResolveRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", role, err)
		}

		for _, identity := range members {
			if _, ok := seen[identity]; ok {
				continue
			}

			seen[identity] = struct{}{}

			identities = append(identities, identity)
		}
	}

	sort.Strings(identities)

	return identities, nil
}

func dedupeSorted(identities []string) []string {
	seen := make(map[string]struct{}, len(identities))
	out := make([]string, 0, len(identities))

	for _, identity := range identities {
		if _, ok := seen[identity]; ok {
			continue
		}

		seen[identity] = struct{}{}

		out = append(out, identity)
	}

	sort.Strings(out)

	return out
}
