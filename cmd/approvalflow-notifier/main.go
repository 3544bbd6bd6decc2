// Package main provides the notification dispatcher service. It consumes
// history events from the event bus and delivers approval notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/machshop/approvalflow/pkg/cmd"
	"github.com/machshop/approvalflow/pkg/eventbus"
	"github.com/machshop/approvalflow/pkg/log"
	"github.com/machshop/approvalflow/pkg/notifications"
	"github.com/machshop/approvalflow/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "approvalflow-notifier",
		Usage:                 "Deliver approval notifications from history events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "notifier-id",
				Aliases: []string{"id"},
				Usage:   "Custom notifier ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("NOTIFIER_ID"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
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

			notifierID := command.String("notifier-id")
			if notifierID == "" {
				notifierID = "notifier-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("approvalflow-notifier").With("notifierId", notifierID)

			logger.InfoContext(ctx, "Initializing ApprovalFlow notifier")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "approvalflow-notifier", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			tracer, err := otelhelper.NewTracer(ctx, "approvalflow-notifier")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			} else if bus, ok := eventBus.(*eventbus.WatermillEventBus); ok {
				bus.WithTracer(tracer)
			}

			dispatcher := notifications.NewDispatcher(
				notifications.NewLogNotifier(logger),
				nil,
				logger,
			)
			dispatcher.Register(eventBus)

			err = eventBus.Subscribe(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to subscribe to history events", "error", err)

				return err
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				sig := <-signals
				logger.Info("Received signal", "signal", sig)
				logger.Info("Shutting down gracefully...")
				cancel()
			}()

			<-ctx.Done()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
