// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/robfig/cron/v3"
)

type capacityAuditor interface {
	Run(ctx context.Context) ([]model.CapacityDrift, error)
}

// Scheduler runs the capacity audit on a cron schedule. A run that is still
// going when the next one is due is skipped.
type Scheduler struct {
	cron    *cron.Cron
	auditor capacityAuditor
	timeout time.Duration
	log     *slog.Logger
}

// New registers the audit job under spec (standard cron syntax or
// descriptors like "@every 10m").
func New(auditor capacityAuditor, spec string, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{auditor: auditor, timeout: timeout, log: log}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule capacity audit %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler until ctx is done, then waits for a running job
// to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	drifts, err := s.auditor.Run(ctx)
	if err != nil {
		s.log.Error("capacity audit failed", slog.String("error", err.Error()))
		return
	}
	s.log.Info("capacity audit finished", slog.Int("drifted_events", len(drifts)))
}
