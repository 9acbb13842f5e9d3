package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/doussel/internal/logger"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
)

type fakeJobs struct {
	generated []time.Time
	reminded  int
	failAlert bool
}

func (f *fakeJobs) GenerateMonthly(_ context.Context, target time.Time) (*rentalService.GenerationResult, error) {
	f.generated = append(f.generated, target)
	return &rentalService.GenerationResult{Created: 2}, nil
}

func (f *fakeJobs) SendReminders(context.Context, time.Time) (*rentalService.JobResult, error) {
	f.reminded++
	return &rentalService.JobResult{Count: 1}, nil
}

func (f *fakeJobs) CheckLeaseExpirations(context.Context, time.Time) (*rentalService.JobResult, error) {
	if f.failAlert {
		return nil, errors.New("db down")
	}
	return &rentalService.JobResult{}, nil
}

func newTestScheduler(jobs Jobs) *Scheduler {
	s := New(jobs)
	s.Log = logger.NewNop()
	s.Now = func() time.Time { return time.Date(2025, 4, 1, 0, 1, 0, 0, time.UTC) }
	return s
}

func TestRegisterAddsThreeJobs(t *testing.T) {
	s := newTestScheduler(&fakeJobs{})
	require.NoError(t, s.Register())
	assert.Equal(t, 3, s.Entries())
}

func TestSpecsParse(t *testing.T) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	from := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	sched, err := parser.Parse(GenerateRentalsSpec)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 1, 0, 0, time.UTC), sched.Next(from))

	sched, err = parser.Parse(RemindersSpec)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), sched.Next(from))

	sched, err = parser.Parse(LeaseAlertsSpec)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC), sched.Next(from))
}

func TestRunPassesClock(t *testing.T) {
	jobs := &fakeJobs{failAlert: true}
	s := newTestScheduler(jobs)

	s.run("generate_rentals", func(ctx context.Context) (int, error) {
		res, err := s.jobs.GenerateMonthly(ctx, s.Now())
		return res.Created, err
	})
	require.Len(t, jobs.generated, 1)
	assert.Equal(t, time.April, jobs.generated[0].Month())

	// failures are logged, not propagated
	s.run("lease_alerts", func(ctx context.Context) (int, error) {
		_, err := s.jobs.CheckLeaseExpirations(ctx, s.Now())
		return 0, err
	})
}
