package resolver

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisCursorRepository implements persistence.CursorRepository on Redis so
// round-robin rotation stays fair across engine replicas. INCR gives the
// atomicity the per-role cursor needs without a lock.
type RedisCursorRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCursorRepository(client redis.UniversalClient) *RedisCursorRepository {
	return &RedisCursorRepository{client: client, prefix: "approvalflow:cursor:"}
}

func (r *RedisCursorRepository) Next(ctx context.Context, definitionID, role string, poolSize int) (int, error) {
	if poolSize <= 0 {
		return 0, fmt.Errorf("round-robin pool for role %s is empty", role)
	}

	key := r.prefix + definitionID + ":" + role

	value, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance cursor %s: %w", key, err)
	}

	return int((value - 1) % int64(poolSize)), nil
}
