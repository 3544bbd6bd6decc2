// Package scheduler runs the periodic escalation scan: it finds active
// instances with overdue open assignments and asks the engine to fire their
// escalation chains.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/machshop/approvalflow/pkg/engine"
)

const defaultInterval = time.Minute

// EscalationScheduler drives deadline escalations on a cron tick. The scan
// only selects candidates; the engine re-checks every assignment under the
// instance lock, so an approval racing the scan always wins.
type EscalationScheduler struct {
	engine   *engine.Engine
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewEscalationScheduler(eng *engine.Engine, interval time.Duration, logger *slog.Logger) *EscalationScheduler {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &EscalationScheduler{
		engine:   eng,
		interval: interval,
		logger:   logger.With("module", "escalation_scheduler"),
	}
}

func (s *EscalationScheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting escalation scheduler", "interval", s.interval.String())
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.Scan(s.ctx, time.Now().UTC())
	})
	if err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *EscalationScheduler) Stop(_ context.Context) error {
	s.logger.Info("Stopping escalation scheduler")

	if s.cancel != nil {
		s.cancel()
	}

	if s.cron != nil {
		s.cron.Stop()
	}

	return nil
}

// Scan runs one escalation pass. Failures on one instance are logged and do
// not stop the pass; the next tick retries them.
func (s *EscalationScheduler) Scan(ctx context.Context, now time.Time) {
	instances, err := s.engine.OverdueInstances(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list overdue instances", "error", err)

		return
	}

	if len(instances) == 0 {
		return
	}

	s.logger.InfoContext(ctx, "Escalation scan found overdue instances", "count", len(instances))

	for _, instance := range instances {
		if err := s.engine.Escalate(ctx, instance.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to escalate instance",
				"instance_id", instance.ID,
				"error", err)
		}
	}
}
