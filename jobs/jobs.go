package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/cache"
)

type Expirer interface {
	ExpirePending(ctx context.Context) (int, error)
}

type RefundRetrier interface {
	RetryDue(ctx context.Context) (int, error)
}

type Schedules struct {
	Sweep       string
	RefundRetry string
	Reminder    string
}

// Runner executes scheduled jobs under a lease so that only one replica
// runs each job at a time.
type Runner struct {
	Locker  cache.Locker
	Timeout time.Duration
	Log     zerolog.Logger
}

func NewRunner(locker cache.Locker, log zerolog.Logger) *Runner {
	return &Runner{Locker: locker, Timeout: 5 * time.Minute, Log: log.With().Str("component", "jobs").Logger()}
}

// Run executes fn if the lease for name is free. It reports whether fn ran.
func (r *Runner) Run(name string, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	release, ok, err := r.Locker.TryLock(ctx, "jobs:"+name, r.Timeout)
	if err != nil {
		r.Log.Error().Err(err).Str("job", name).Msg("could not take job lock")
		return false
	}
	if !ok {
		r.Log.Debug().Str("job", name).Msg("job already running elsewhere")
		return false
	}
	defer release()

	start := time.Now()
	if err := fn(ctx); err != nil {
		r.Log.Error().Err(err).Str("job", name).Msg("job failed")
	} else {
		r.Log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	}
	return true
}

func (r *Runner) ExpireBookings(svc Expirer) func() {
	return func() {
		r.Run("expire-bookings", func(ctx context.Context) error {
			_, err := svc.ExpirePending(ctx)
			return err
		})
	}
}

func (r *Runner) RetryRefunds(svc RefundRetrier) func() {
	return func() {
		r.Run("retry-refunds", func(ctx context.Context) error {
			n, err := svc.RetryDue(ctx)
			if n > 0 {
				r.Log.Info().Int("count", n).Msg("retried refunds succeeded")
			}
			return err
		})
	}
}

// Register adds every job to c.
func Register(c *cron.Cron, r *Runner, s Schedules, bookings Expirer, refunds RefundRetrier, reminders *Reminders) error {
	jobs := []struct {
		name     string
		schedule string
		fn       func()
	}{
		{"expire-bookings", s.Sweep, r.ExpireBookings(bookings)},
		{"retry-refunds", s.RefundRetry, r.RetryRefunds(refunds)},
		{"class-reminders", s.Reminder, func() { r.Run("class-reminders", reminders.Send) }},
	}
	for _, j := range jobs {
		if _, err := c.AddFunc(j.schedule, j.fn); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.schedule, err)
		}
		r.Log.Info().Str("job", j.name).Str("schedule", j.schedule).Msg("job scheduled")
	}
	return nil
}
