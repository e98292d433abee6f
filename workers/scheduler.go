package workers

import (
	"context"
	"log/slog"
	"time"
)

// Job is one periodic unit of work. Jobs must be idempotent: ticks can
// overlap user traffic and a missed tick is caught up by the next one.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler drives the periodic scans (stale-payment expiry, overdue
// reminders) and one-shot deferred checks.
type Scheduler struct {
	interval time.Duration
	// deferDelay spaces a deferred check slightly after the request that
	// scheduled it.
	deferDelay time.Duration
	jobs       []Job
	log        *slog.Logger
}

func New(interval time.Duration, log *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		interval:   interval,
		deferDelay: 5 * time.Second,
		jobs:       jobs,
		log:        log,
	}
}

// Start runs all jobs once immediately, then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		s.runAll(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runAll(ctx)
			}
		}
	}()
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, j := range s.jobs {
		s.run(ctx, j.Name, j.Run)
	}
}

// Defer runs fn once, shortly after the call. Used for the post-creation
// overdue check.
func (s *Scheduler) Defer(name string, fn func(ctx context.Context) error) {
	time.AfterFunc(s.deferDelay, func() {
		s.run(context.Background(), name, fn)
	})
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		s.log.Error("job failed", "job", name, "err", err)
		return
	}
	s.log.Info("job finished", "job", name)
}
