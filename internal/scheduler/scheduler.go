// Package scheduler runs the rent jobs in-process on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nikhil/doussel/internal/logger"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
)

// Schedules, in UTC.
const (
	GenerateRentalsSpec = "1 0 1 * *"
	RemindersSpec       = "0 9 * * *"
	LeaseAlertsSpec     = "0 8 * * *"
)

// Jobs is the subset of the rental service the scheduler drives.
type Jobs interface {
	GenerateMonthly(ctx context.Context, target time.Time) (*rentalService.GenerationResult, error)
	SendReminders(ctx context.Context, now time.Time) (*rentalService.JobResult, error)
	CheckLeaseExpirations(ctx context.Context, today time.Time) (*rentalService.JobResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	timeout time.Duration
	Log     *logger.Logger
	Now     func() time.Time
}

func New(jobs Jobs) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		jobs:    jobs,
		timeout: 10 * time.Minute,
		Log:     logger.NewLogger("scheduler"),
		Now:     time.Now,
	}
}

// Register adds the three rent jobs.
func (s *Scheduler) Register() error {
	entries := []struct {
		spec string
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{GenerateRentalsSpec, "generate_rentals", func(ctx context.Context) (int, error) {
			res, err := s.jobs.GenerateMonthly(ctx, s.Now())
			if err != nil {
				return 0, err
			}
			return res.Created, nil
		}},
		{RemindersSpec, "send_reminders", func(ctx context.Context) (int, error) {
			res, err := s.jobs.SendReminders(ctx, s.Now())
			if err != nil {
				return 0, err
			}
			return res.Count, nil
		}},
		{LeaseAlertsSpec, "lease_alerts", func(ctx context.Context) (int, error) {
			res, err := s.jobs.CheckLeaseExpirations(ctx, s.Now())
			if err != nil {
				return 0, err
			}
			return res.Count, nil
		}},
	}
	for _, e := range entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { s.run(e.name, e.run) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		s.Log.Error("Scheduled job failed", "job", name, "error", err)
		return
	}
	s.Log.Info("Scheduled job done", "job", name, "items", n, "duration_ms", time.Since(start).Milliseconds())
}

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
