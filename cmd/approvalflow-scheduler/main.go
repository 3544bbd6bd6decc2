package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/machshop/approvalflow/pkg/cmd"
	"github.com/machshop/approvalflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "approvalflow-scheduler",
		Usage:                 "Run deadline escalation scans against active approval instances",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "roster-file",
				Usage:   "Path to the YAML role directory",
				Value:   "./roster.yaml",
				Sources: cli.EnvVars("ROSTER_FILE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for shared round-robin cursors (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "scan-interval",
				Usage:   "Time between escalation scans",
				Value:   time.Minute,
				Sources: cli.EnvVars("SCAN_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			schedulerID := command.String("scheduler-id")
			if schedulerID == "" {
				schedulerID = "scheduler-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("approvalflow-scheduler").With("schedulerId", schedulerID)

			logger.InfoContext(ctx, "Initializing ApprovalFlow escalation scheduler")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "approvalflow-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			cursors, err := cmd.NewCursorRepository(persistence, command.String("redis-url"))
			if err != nil {
				return err
			}

			daemon := NewSchedulerDaemon(
				persistence,
				eventBus,
				cursors,
				logger,
				command.String("roster-file"),
				command.Duration("scan-interval"),
			)

			daemon.Run(ctx)

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
