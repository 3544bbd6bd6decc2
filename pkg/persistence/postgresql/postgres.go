// Package postgresql provides PostgreSQL persistence for workflow
// definitions, instances, history events, and round-robin cursors.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL. Instances are
// stored as JSONB aggregates; an assignment projection table maintained in
// the same transaction serves the assignment-centric queries.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
	historyRepo    *HistoryRepository
	cursorRepo     *CursorRepository
}

// NewPersistence connects, migrates, and returns a ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		definitionRepo: &DefinitionRepository{db: database, logger: logger},
		instanceRepo:   &InstanceRepository{db: database, logger: logger},
		historyRepo:    &HistoryRepository{db: database, logger: logger},
		cursorRepo:     &CursorRepository{db: database},
	}, nil
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) HistoryRepository() persistence.HistoryRepository {
	return p.historyRepo
}

func (p *Persistence) CursorRepository() persistence.CursorRepository {
	return p.cursorRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
