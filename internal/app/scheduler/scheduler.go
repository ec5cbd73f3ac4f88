// Package scheduler runs the batch jobs on cron schedules. It is a thin
// wrapper over robfig/cron that feeds the dispatcher, so scheduled runs and
// manual triggers share one code path.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scholarxp/xp-engine/internal/app/domain/automation"
	"github.com/scholarxp/xp-engine/internal/app/services/dispatch"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Config holds the cron expressions, standard five-field syntax in UTC.
type Config struct {
	FinalizeSchedule  string
	WeeklySchedule    string
	AggregateSchedule string
}

// Scheduler fires dispatch jobs on schedule. It implements system.Service.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *dispatch.Service
	cfg        Config
	log        *logger.Logger
}

// New creates the scheduler. Schedules are registered at Start.
func New(dispatcher *dispatch.Service, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "scheduler" }

// Start registers the schedules and begins firing jobs.
func (s *Scheduler) Start(_ context.Context) error {
	jobs := []struct {
		spec   string
		action string
	}{
		{s.cfg.FinalizeSchedule, dispatch.ActionFinalize},
		{s.cfg.WeeklySchedule, dispatch.ActionWeekly},
		{s.cfg.AggregateSchedule, dispatch.ActionAggregate},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		action := j.action
		if _, err := s.cron.AddFunc(j.spec, func() { s.fire(action) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", action, j.spec, err)
		}
		s.log.WithField("job", action).WithField("schedule", j.spec).Info("job scheduled")
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for any in-flight job.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) fire(action string) {
	if _, err := s.dispatcher.Run(context.Background(), action, automation.TriggeredByCron); err != nil {
		s.log.WithError(err).WithField("job", action).Error("scheduled run failed")
	}
}
