// Package main provides the ApprovalFlow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/machshop/approvalflow/pkg/config"
	"github.com/machshop/approvalflow/pkg/engine"
	"github.com/machshop/approvalflow/pkg/eventbus"
	"github.com/machshop/approvalflow/pkg/history"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/registry"
	"github.com/machshop/approvalflow/pkg/resolver"
	"github.com/machshop/approvalflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	cursors     persistence.CursorRepository
	rosterFile  string
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	cursors persistence.CursorRepository,
	rosterFile string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		cursors:     cursors,
		rosterFile:  rosterFile,
	}
}

func (a *API) App() *fiber.App {
	rosterConfig := config.LoadRosterConfigOrDefault(a.rosterFile)
	roster := resolver.NewDirectoryRoster(rosterConfig.Roles, a.persistence.InstanceRepository())

	recorder := history.NewRecorder(a.persistence.HistoryRepository(), a.eventBus, a.logger)
	eng := engine.New(a.persistence, resolver.New(roster, a.cursors), recorder, a.logger)
	reg := registry.New(a.persistence.DefinitionRepository(), a.logger).
		WithRoleCounter(func(ctx context.Context, role string) (int, error) {
			identities, err := roster.ResolveRole(ctx, role)

			return len(identities), err
		})

	handlers := web.NewAPIHandlers(eng, reg, recorder, a.persistence)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ApprovalFlow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
