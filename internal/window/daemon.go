package window

import (
	"context"
	"errors"
	"time"

	"github.com/aremu/jobalert/internal/clock"
	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/pkg/distlock"
	"github.com/aremu/jobalert/internal/pkg/logger"
	"github.com/aremu/jobalert/internal/store"
)

// DaemonStore extends Store with the reminder ledger queries.
type DaemonStore interface {
	Store
	WindowsInReminderRange(ctx context.Context, now time.Time, minElapsed time.Duration) ([]domain.Window, error)
	SentReminderStages(ctx context.Context, windowID int64) (map[string]bool, error)
	RecordReminder(ctx context.Context, windowID int64, stage string) (bool, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetPreferences(ctx context.Context, userID int64) (*domain.Preferences, error)
}

// Sender delivers reminder messages.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Retrier is the dispatcher's back-fill hook for users the daemon
// visits: re-attempt failed sends, then catch up on postings that
// arrived before the window opened.
type Retrier interface {
	RetryUndelivered(ctx context.Context, userID int64) int
	BackfillRecent(ctx context.Context, userID int64) int
}

// Daemon is the periodic reminder loop.
type Daemon struct {
	store       DaemonStore
	sender      Sender
	retrier     Retrier
	clk         clock.Clock
	interval    time.Duration
	sendTimeout time.Duration
	lock        distlock.Lock
}

// SetLock makes scans single-flight across worker instances. The
// reminder ledger already guarantees at-most-once per stage; the lock
// only avoids redundant passes.
func (d *Daemon) SetLock(l distlock.Lock) { d.lock = l }

// NewDaemon creates the reminder daemon. retrier may be nil.
func NewDaemon(st DaemonStore, sender Sender, retrier Retrier, clk clock.Clock, interval time.Duration) *Daemon {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Daemon{
		store: st, sender: sender, retrier: retrier, clk: clk,
		interval: interval, sendTimeout: 10 * time.Second,
	}
}

// Start begins the reminder loop. It blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) {
	logger.Info("reminder daemon starting", "interval", d.interval.String())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reminder daemon stopping")
			return
		case <-ticker.C:
			d.Scan(ctx)
		}
	}
}

// Scan runs one reminder pass: expire stale windows, then send each
// due stage at most once.
func (d *Daemon) Scan(ctx context.Context) {
	if d.lock != nil {
		held, err := d.lock.TryAcquire(ctx)
		if err != nil {
			logger.Warn("reminder: lock unavailable, scanning anyway", "error", err.Error())
		} else if !held {
			return
		} else {
			defer d.lock.Release(ctx)
		}
	}

	now := d.clk.Now()

	if n, err := d.store.ExpireWindows(ctx, now); err != nil {
		logger.Error("reminder: expire windows", "error", err.Error())
	} else if n > 0 {
		logger.Info("windows expired", "count", n)
	}

	// Every active window is visited: DueStage gates reminders to
	// their thresholds, while retry and backfill must also cover
	// windows younger than the first stage.
	windows, err := d.store.WindowsInReminderRange(ctx, now, 0)
	if err != nil {
		logger.Error("reminder: list windows", "error", err.Error())
		return
	}

	for _, w := range windows {
		if ctx.Err() != nil {
			return
		}
		d.remind(ctx, w, now)
		if d.retrier != nil {
			d.retrier.RetryUndelivered(ctx, w.UserID)
			d.retrier.BackfillRecent(ctx, w.UserID)
		}
	}
}

func (d *Daemon) remind(ctx context.Context, w domain.Window, now time.Time) {
	sent, err := d.store.SentReminderStages(ctx, w.ID)
	if err != nil {
		logger.Warn("reminder: load ledger", "window_id", w.ID, "error", err.Error())
		return
	}

	stage := DueStage(now.Sub(w.OpenedAt), sent)
	if stage == nil {
		return
	}

	// Ledger before transmission: on crash/restart the stage is
	// treated as sent rather than risking a duplicate.
	recorded, err := d.store.RecordReminder(ctx, w.ID, stage.Name)
	if err != nil {
		logger.Warn("reminder: record", "window_id", w.ID, "stage", stage.Name, "error", err.Error())
		return
	}
	if !recorded {
		return
	}

	user, err := d.store.GetUser(ctx, w.UserID)
	if err != nil {
		logger.Warn("reminder: load user", "user_id", w.UserID, "error", err.Error())
		return
	}

	prefs, err := d.store.GetPreferences(ctx, w.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("reminder: load preferences", "user_id", w.UserID, "error", err.Error())
	}

	body := ReminderMessage(stage.Name, prefs, w.ExpiresAt.Sub(now))

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if _, err := d.sender.SendText(sendCtx, user.Phone, body); err != nil {
		logger.Warn("reminder: send failed", "user_id", w.UserID, "stage", stage.Name, "error", err.Error())
		return
	}
	logger.Info("reminder sent", "user_id", w.UserID, "stage", stage.Name)
}
