// Package main provides the escalation scheduler daemon.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/machshop/approvalflow/pkg/config"
	"github.com/machshop/approvalflow/pkg/engine"
	"github.com/machshop/approvalflow/pkg/eventbus"
	"github.com/machshop/approvalflow/pkg/history"
	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/resolver"
	"github.com/machshop/approvalflow/pkg/scheduler"
)

// SchedulerDaemon wraps the escalation scheduler with signal handling for
// standalone deployment.
type SchedulerDaemon struct {
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	cursors      persistence.CursorRepository
	logger       *slog.Logger
	rosterFile   string
	scanInterval time.Duration
}

func NewSchedulerDaemon(
	persist persistence.Persistence,
	eventBus eventbus.EventBus,
	cursors persistence.CursorRepository,
	logger *slog.Logger,
	rosterFile string,
	scanInterval time.Duration,
) *SchedulerDaemon {
	return &SchedulerDaemon{
		persistence:  persist,
		eventBus:     eventBus,
		cursors:      cursors,
		logger:       logger,
		rosterFile:   rosterFile,
		scanInterval: scanInterval,
	}
}

// Run starts the scheduler and blocks until SIGINT or SIGTERM.
func (d *SchedulerDaemon) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rosterConfig := config.LoadRosterConfigOrDefault(d.rosterFile)
	roster := resolver.NewDirectoryRoster(rosterConfig.Roles, d.persistence.InstanceRepository())

	recorder := history.NewRecorder(d.persistence.HistoryRepository(), d.eventBus, d.logger)
	eng := engine.New(d.persistence, resolver.New(roster, d.cursors), recorder, d.logger)

	sched := scheduler.NewEscalationScheduler(eng, d.scanInterval, d.logger)

	err := sched.Start(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to start escalation scheduler", "error", err)

		return
	}

	d.handleSignals(ctx, cancel)

	<-ctx.Done()

	err = sched.Stop(context.WithoutCancel(ctx))
	if err != nil {
		d.logger.Error("Failed to stop escalation scheduler", "error", err)
	}
}

func (d *SchedulerDaemon) handleSignals(_ context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		d.logger.Info("Received signal", "signal", sig)
		d.logger.Info("Shutting down gracefully...")
		cancel()
	}()
}
