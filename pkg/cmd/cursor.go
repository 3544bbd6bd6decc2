package cmd

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/resolver"
)

// NewCursorRepository picks the round-robin cursor store. With a Redis URL
// the cursor lives in Redis so rotation stays fair across engine replicas;
// otherwise the persistence backend's cursor table is used.
func NewCursorRepository(persist persistence.Persistence, redisURL string) (persistence.CursorRepository, error) {
	if redisURL == "" {
		return persist.CursorRepository(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return resolver.NewRedisCursorRepository(redis.NewClient(opts)), nil
}
