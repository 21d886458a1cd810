package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aremu/jobalert/internal/domain"
)

// EnqueueRawJob stores an inbound job payload for later enrichment.
// Duplicate (source, source_id) pairs are ignored; the bool reports
// whether a new row was inserted.
func (s *Store) EnqueueRawJob(ctx context.Context, source, sourceID, url string, payload []byte, scrapedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_jobs (source, source_id, url, payload, scraped_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (source, source_id) DO NOTHING
	`, source, sourceID, url, payload, nullTime(scrapedAt))
	if err != nil {
		return false, fmt.Errorf("enqueue raw job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClaimRawJobs atomically claims a batch of unprocessed raw jobs for
// enrichment. SKIP LOCKED lets multiple workers drain the queue
// without stepping on each other; claimed rows stay unprocessed until
// MarkRawJobProcessed or MarkRawJobFailed runs.
func (s *Store) ClaimRawJobs(ctx context.Context, limit, maxAttempts int, lookback time.Duration) ([]domain.RawJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE raw_jobs SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM raw_jobs
			WHERE processed = FALSE
			  AND attempts < $2
			  AND created_at > NOW() - $3::interval
			ORDER BY COALESCE(scraped_at, created_at)
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, source, source_id, COALESCE(url, ''), payload, processed,
		          attempts, COALESCE(last_error, ''),
		          COALESCE(scraped_at, created_at), created_at
	`, limit, maxAttempts, fmt.Sprintf("%d seconds", int(lookback.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("claim raw jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.RawJob
	for rows.Next() {
		var j domain.RawJob
		if err := rows.Scan(&j.ID, &j.Source, &j.SourceID, &j.URL, &j.Payload,
			&j.Processed, &j.Attempts, &j.LastError, &j.ScrapedAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan raw job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkRawJobProcessed flags a raw job as successfully enriched.
func (s *Store) MarkRawJobProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_jobs SET processed = TRUE, last_error = NULL WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark raw job processed: %w", err)
	}
	return nil
}

// MarkRawJobFailed records the enrichment error. The row stays
// unprocessed and is retried until it exhausts its attempts.
func (s *Store) MarkRawJobFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_jobs SET last_error = $2 WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark raw job failed: %w", err)
	}
	return nil
}

// PurgeProcessedRawJobs deletes processed raw payloads older than the
// retention period.
func (s *Store) PurgeProcessedRawJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_jobs
		WHERE processed = TRUE AND created_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge raw jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
