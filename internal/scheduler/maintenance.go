package scheduler

import (
	"context"
	"time"

	"github.com/aremu/jobalert/internal/pkg/distlock"
	"github.com/aremu/jobalert/internal/pkg/logger"
)

// MaintenanceStore is the persistence surface the hygiene jobs need.
type MaintenanceStore interface {
	PurgeDuplicateJobs(ctx context.Context) (int64, error)
	PurgeOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeProcessedRawJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeExpiredWindows(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeStaleReservations(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MaintenanceConfig sets the retention knobs.
type MaintenanceConfig struct {
	DedupInterval    time.Duration // duplicate-job sweep cadence
	UndeliveredAfter time.Duration // jobs never delivered to anyone
	WindowRetention  time.Duration // closed conversation windows
	RawRetention     time.Duration // processed raw payloads
	StaleReservation time.Duration // reserved-but-never-sent rows

	// NewLock, when set, makes each pass single-flight across
	// instances.
	NewLock func(name string) distlock.Lock
}

// AddMaintenanceJobs registers the data hygiene passes.
func AddMaintenanceJobs(s *Scheduler, st MaintenanceStore, cfg MaintenanceConfig) {
	if cfg.DedupInterval <= 0 {
		cfg.DedupInterval = 5 * time.Hour
	}
	if cfg.UndeliveredAfter <= 0 {
		cfg.UndeliveredAfter = 5 * 24 * time.Hour
	}
	if cfg.WindowRetention <= 0 {
		cfg.WindowRetention = 7 * 24 * time.Hour
	}
	if cfg.RawRetention <= 0 {
		cfg.RawRetention = 14 * 24 * time.Hour
	}
	if cfg.StaleReservation <= 0 {
		cfg.StaleReservation = 30 * 24 * time.Hour
	}
	lockFor := func(name string) distlock.Lock {
		if cfg.NewLock == nil {
			return nil
		}
		return cfg.NewLock(name)
	}

	s.Add(Job{
		Name:     "dedup_jobs",
		Interval: cfg.DedupInterval,
		Lock:     lockFor("dedup_jobs"),
		Run: func(ctx context.Context) error {
			n, err := st.PurgeDuplicateJobs(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("duplicate jobs removed", "count", n)
			}
			return nil
		},
	})

	s.Add(Job{
		Name:     "purge_old_jobs",
		Interval: 24 * time.Hour,
		Lock:     lockFor("purge_old_jobs"),
		Run: func(ctx context.Context) error {
			n, err := st.PurgeOldJobs(ctx, cfg.UndeliveredAfter)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("stale undelivered jobs removed", "count", n)
			}
			return nil
		},
	})

	s.Add(Job{
		Name:     "purge_raw_jobs",
		Interval: 24 * time.Hour,
		Lock:     lockFor("purge_raw_jobs"),
		Run: func(ctx context.Context) error {
			_, err := st.PurgeProcessedRawJobs(ctx, cfg.RawRetention)
			return err
		},
	})

	s.Add(Job{
		Name:     "purge_windows",
		Interval: 24 * time.Hour,
		Lock:     lockFor("purge_windows"),
		Run: func(ctx context.Context) error {
			_, err := st.PurgeExpiredWindows(ctx, cfg.WindowRetention)
			return err
		},
	})

	s.Add(Job{
		Name:     "purge_stale_reservations",
		Interval: 24 * time.Hour,
		Lock:     lockFor("purge_stale_reservations"),
		Run: func(ctx context.Context) error {
			_, err := st.PurgeStaleReservations(ctx, cfg.StaleReservation)
			return err
		},
	})
}
