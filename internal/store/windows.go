package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aremu/jobalert/internal/domain"
)

// OpenWindow opens (or extends) the user's conversation window. Any
// inbound message restarts the 24-hour clock, so an existing active
// window has its expiry pushed out rather than a second row created.
func (s *Store) OpenWindow(ctx context.Context, userID int64, openedAt, expiresAt time.Time) (*domain.Window, error) {
	w := &domain.Window{}
	err := s.db.QueryRowContext(ctx, `
		UPDATE conversation_windows
		SET opened_at = $2, expires_at = $3
		WHERE user_id = $1 AND status = 'active'
		RETURNING id, user_id, opened_at, expires_at, status
	`, userID, openedAt, expiresAt).Scan(&w.ID, &w.UserID, &w.OpenedAt, &w.ExpiresAt, &w.Status)
	if err == nil {
		// Extending resets the reminder ladder for the new cycle.
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM reminder_log WHERE window_id = $1`, w.ID); err != nil {
			return nil, fmt.Errorf("reset reminders: %w", err)
		}
		return w, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("extend window: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_windows (user_id, opened_at, expires_at, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id, user_id, opened_at, expires_at, status
	`, userID, openedAt, expiresAt).Scan(&w.ID, &w.UserID, &w.OpenedAt, &w.ExpiresAt, &w.Status)
	if err != nil {
		return nil, fmt.Errorf("open window: %w", err)
	}
	return w, nil
}

// ActiveWindow fetches the user's active window, if any. A window past
// its expiry is not returned even if the expiry sweep has not flagged
// it yet.
func (s *Store) ActiveWindow(ctx context.Context, userID int64, now time.Time) (*domain.Window, error) {
	w := &domain.Window{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, opened_at, expires_at, status
		FROM conversation_windows
		WHERE user_id = $1 AND status = 'active' AND expires_at > $2
	`, userID, now).Scan(&w.ID, &w.UserID, &w.OpenedAt, &w.ExpiresAt, &w.Status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active window: %w", err)
	}
	return w, nil
}

// ExpireWindows flags active windows past their expiry and returns how
// many were flagged.
func (s *Store) ExpireWindows(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_windows SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire windows: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// WindowsInReminderRange lists active windows for active users whose
// elapsed time falls between minElapsed and the window length. The
// reminder daemon filters these against the reminder log per stage.
func (s *Store) WindowsInReminderRange(ctx context.Context, now time.Time, minElapsed time.Duration) ([]domain.Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.user_id, w.opened_at, w.expires_at, w.status
		FROM conversation_windows w
		JOIN users u ON u.id = w.user_id
		WHERE w.status = 'active'
		  AND u.is_active = TRUE
		  AND w.opened_at <= $1 - $2::interval
		  AND w.expires_at > $1
	`, now, fmt.Sprintf("%d seconds", int(minElapsed.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("windows in reminder range: %w", err)
	}
	defer rows.Close()

	var out []domain.Window
	for rows.Next() {
		var w domain.Window
		if err := rows.Scan(&w.ID, &w.UserID, &w.OpenedAt, &w.ExpiresAt, &w.Status); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// RecordReminder logs that a reminder stage was sent for a window.
// The unique (window, stage) constraint makes each stage fire at most
// once per window cycle; false means another worker got there first.
func (s *Store) RecordReminder(ctx context.Context, windowID int64, stage string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_log (window_id, stage)
		VALUES ($1, $2)
		ON CONFLICT (window_id, stage) DO NOTHING
	`, windowID, stage)
	if err != nil {
		return false, fmt.Errorf("record reminder: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SentReminderStages lists the stages already sent for a window.
func (s *Store) SentReminderStages(ctx context.Context, windowID int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage FROM reminder_log WHERE window_id = $1
	`, windowID)
	if err != nil {
		return nil, fmt.Errorf("sent reminder stages: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out[stage] = true
	}
	return out, rows.Err()
}

// PurgeExpiredWindows deletes expired windows (and their reminder log
// rows via cascade) older than the retention period.
func (s *Store) PurgeExpiredWindows(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_windows
		WHERE status = 'expired' AND expires_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge expired windows: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UsersWithActiveWindows lists ids of active users holding an
// unexpired window. The dispatcher only fans out to these.
func (s *Store) UsersWithActiveWindows(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.user_id
		FROM conversation_windows w
		JOIN users u ON u.id = w.user_id
		JOIN user_preferences p ON p.user_id = w.user_id
		WHERE w.status = 'active' AND w.expires_at > $1
		  AND u.is_active = TRUE AND p.alerts_enabled = TRUE
	`, now)
	if err != nil {
		return nil, fmt.Errorf("users with active windows: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
