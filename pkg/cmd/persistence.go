// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/persistence/file"
	"github.com/machshop/approvalflow/pkg/persistence/postgresql"
)

// NewPersistence picks the persistence backend from the database URL scheme:
// postgres for production, a plain directory path for development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider in database URL %q", databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgres"
	case "file":
		return "file"
	default:
		return scheme
	}
}
