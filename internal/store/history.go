package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aremu/jobalert/internal/domain"
)

// ReserveDelivery inserts a real-time history row for (user, job)
// before any send is attempted. The unique constraint makes this the
// dedup gate: false means the user has already seen (or been
// reserved) this job and the caller must not send.
func (s *Store) ReserveDelivery(ctx context.Context, userID, jobID int64, score int, similarity float64) (bool, error) {
	return s.ReserveDeliveryStage(ctx, userID, jobID, score, similarity, "real_time")
}

// ReserveDeliveryStage is ReserveDelivery with an explicit stage
// ("real_time" or "backfill").
func (s *Store) ReserveDeliveryStage(ctx context.Context, userID, jobID int64, score int, similarity float64, stage string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_job_history (user_id, job_id, match_score, similarity, stage)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, job_id) DO NOTHING
	`, userID, jobID, score, similarity, stage)
	if err != nil {
		return false, fmt.Errorf("reserve delivery: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkDelivered records that the alert actually went out.
func (s *Store) MarkDelivered(ctx context.Context, userID, jobID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_job_history
		SET delivered = TRUE, delivered_at = $3
		WHERE user_id = $1 AND job_id = $2
	`, userID, jobID, at)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeliveryFailed records a failed send on its reservation row.
// The row is kept so the back-fill scan can retry later, still
// subject to the daily cap and window checks.
func (s *Store) MarkDeliveryFailed(ctx context.Context, userID, jobID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_job_history
		SET send_error = $3
		WHERE user_id = $1 AND job_id = $2 AND delivered = FALSE
	`, userID, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

// UndeliveredReservations lists failed or pending reservations for a
// user, oldest first. The back-fill scan retries these.
func (s *Store) UndeliveredReservations(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, job_id, COALESCE(match_score, 0),
		       COALESCE(similarity, 0), delivered,
		       COALESCE(delivered_at, created_at), created_at
		FROM user_job_history
		WHERE user_id = $1 AND delivered = FALSE
		ORDER BY created_at
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("undelivered reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.JobID, &h.MatchScore,
			&h.Similarity, &h.Delivered, &h.DeliveredAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CountDeliveredSince counts alerts delivered to a user at or after
// dayStart. The dispatcher calls this with the start of the current
// UTC day to enforce the daily cap.
func (s *Store) CountDeliveredSince(ctx context.Context, userID int64, dayStart time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_job_history
		WHERE user_id = $1 AND delivered = TRUE AND delivered_at >= $2
	`, userID, dayStart).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count delivered: %w", err)
	}
	return n, nil
}

// HasSeenJob reports whether a history row exists for (user, job).
func (s *Store) HasSeenJob(ctx context.Context, userID, jobID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_job_history WHERE user_id = $1 AND job_id = $2
		)
	`, userID, jobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has seen job: %w", err)
	}
	return exists, nil
}

// UserHistory lists a user's delivered jobs, newest first.
func (s *Store) UserHistory(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, job_id, COALESCE(match_score, 0),
		       COALESCE(similarity, 0), delivered,
		       COALESCE(delivered_at, created_at), created_at
		FROM user_job_history
		WHERE user_id = $1 AND delivered = TRUE
		ORDER BY delivered_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("user history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.JobID, &h.MatchScore,
			&h.Similarity, &h.Delivered, &h.DeliveredAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PurgeStaleReservations deletes undelivered history rows older than
// the grace period. These are reservations whose sends failed and
// were never released; purging them lets the jobs match again.
func (s *Store) PurgeStaleReservations(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM user_job_history
		WHERE delivered = FALSE AND created_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge stale reservations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
