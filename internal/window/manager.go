// Package window enforces the 24-hour outbound messaging rule: any
// inbound message opens (or restarts) a window; outbound traffic is
// only permitted inside one; a reminder ladder nudges users before
// expiry.
package window

import (
	"context"
	"errors"
	"time"

	"github.com/aremu/jobalert/internal/clock"
	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/store"
)

// Store is the persistence surface the manager needs.
type Store interface {
	OpenWindow(ctx context.Context, userID int64, openedAt, expiresAt time.Time) (*domain.Window, error)
	ActiveWindow(ctx context.Context, userID int64, now time.Time) (*domain.Window, error)
	ExpireWindows(ctx context.Context, now time.Time) (int64, error)
}

// Manager owns window lifecycle transitions.
type Manager struct {
	store    Store
	clk      clock.Clock
	duration time.Duration
}

// NewManager creates a window manager. duration is the provider
// window length, normally 24 hours.
func NewManager(st Store, clk clock.Clock, duration time.Duration) *Manager {
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &Manager{store: st, clk: clk, duration: duration}
}

// Touch handles an inbound message: it opens a window if none is
// active, or restarts the clock on the existing one.
func (m *Manager) Touch(ctx context.Context, userID int64) (*domain.Window, error) {
	now := m.clk.Now()
	return m.store.OpenWindow(ctx, userID, now, now.Add(m.duration))
}

// CanSend reports whether outbound to the user is currently
// permitted.
func (m *Manager) CanSend(ctx context.Context, userID int64) (bool, error) {
	_, err := m.store.ActiveWindow(ctx, userID, m.clk.Now())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Sweep flags windows past expiry. Elapsed exactly at the window
// length counts as expired.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	return m.store.ExpireWindows(ctx, m.clk.Now())
}

// Duration returns the configured window length.
func (m *Manager) Duration() time.Duration { return m.duration }
