// Package scheduler runs the coarse-cadence background jobs: the
// enrichment cycle and the data hygiene passes (dedup, purges,
// retention).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/aremu/jobalert/internal/pkg/distlock"
	"github.com/aremu/jobalert/internal/pkg/logger"
)

// Job is one periodic task. Run errors are logged, never fatal. A Lock
// keeps the pass single-flight across worker instances.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Lock       distlock.Lock
	Run        func(ctx context.Context) error
}

// Scheduler drives a set of jobs, one goroutine each.
type Scheduler struct {
	jobs []Job
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Jobs with no interval are ignored.
func (s *Scheduler) Add(j Job) {
	if j.Interval <= 0 || j.Run == nil {
		return
	}
	s.jobs = append(s.jobs, j)
}

// Start launches every job loop and blocks until ctx is cancelled and
// all loops have drained.
func (s *Scheduler) Start(ctx context.Context) {
	logger.Info("scheduler starting", "jobs", len(s.jobs))

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	if j.RunOnStart {
		s.runOne(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOne(ctx, j)
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, j Job) {
	if j.Lock != nil {
		held, err := j.Lock.TryAcquire(ctx)
		if err != nil {
			logger.Warn("scheduled job lock unavailable, running anyway", "job", j.Name, "error", err.Error())
		} else if !held {
			return
		} else {
			defer j.Lock.Release(ctx)
		}
	}

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("scheduled job failed", "job", j.Name, "error", err.Error())
		return
	}
	logger.Info("scheduled job completed", "job", j.Name, "took", time.Since(start).Round(time.Millisecond).String())
}
