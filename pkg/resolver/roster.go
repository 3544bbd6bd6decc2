package resolver

import (
	"context"

	"github.com/machshop/approvalflow/pkg/persistence"
)

// DirectoryRoster is a Roster backed by a static role directory and the
// instance repository for load counts. Production deployments swap in a
// roster that queries the identity service.
type DirectoryRoster struct {
	roles     map[string][]string
	instances persistence.InstanceRepository
}

func NewDirectoryRoster(roles map[string][]string, instances persistence.InstanceRepository) *DirectoryRoster {
	return &DirectoryRoster{roles: roles, instances: instances}
}

func (d *DirectoryRoster) ResolveRole(_ context.Context, role string) ([]string, error) {
	return d.roles[role], nil
}

func (d *DirectoryRoster) OpenAssignmentCount(ctx context.Context, identity string) (int, error) {
	return d.instances.CountOpenAssignments(ctx, identity)
}
