package store

import (
	"context"
	"fmt"
	"time"
)

// PipelineStats is a snapshot of pipeline health for the metrics
// endpoint.
type PipelineStats struct {
	TotalUsers            int     `json:"total_users"`
	ActiveUsers           int     `json:"active_users"`
	ActiveWindows         int     `json:"active_windows"`
	RawBacklog            int     `json:"raw_backlog"`
	TotalJobs             int     `json:"total_jobs"`
	JobsWithEmbedding     int     `json:"jobs_with_embedding"`
	EmbeddingCoverage     float64 `json:"embedding_coverage"`
	UsersWithPreferences  int     `json:"users_with_preferences"`
	UsersWithEmbedding    int     `json:"users_with_embedding"`
	UserEmbeddingCoverage float64 `json:"user_embedding_coverage"`
	AvgEnrichLatencySec   float64 `json:"avg_enrich_latency_seconds"`
	DeliveredToday        int     `json:"delivered_today"`
	RemindersSentToday    int     `json:"reminders_sent_today"`
}

// Stats gathers pipeline counters in one round trip. Enrichment
// latency is intake-to-canonical, averaged over the last day of
// enriched jobs.
func (s *Store) Stats(ctx context.Context, now time.Time) (*PipelineStats, error) {
	dayStart := now.Truncate(24 * time.Hour)
	st := &PipelineStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM conversation_windows WHERE status = 'active' AND expires_at > $1),
			(SELECT COUNT(*) FROM raw_jobs WHERE processed = FALSE),
			(SELECT COUNT(*) FROM canonical_jobs),
			(SELECT COUNT(*) FROM canonical_jobs WHERE embedding IS NOT NULL),
			(SELECT COUNT(*) FROM user_preferences),
			(SELECT COUNT(*) FROM user_preferences WHERE embedding IS NOT NULL),
			(SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (c.created_at - r.created_at))), 0)
			 FROM canonical_jobs c
			 JOIN raw_jobs r ON r.id = c.raw_job_id
			 WHERE c.created_at >= $2),
			(SELECT COUNT(*) FROM user_job_history WHERE delivered = TRUE AND delivered_at >= $2),
			(SELECT COUNT(*) FROM reminder_log WHERE sent_at >= $2)
	`, now, dayStart).Scan(&st.TotalUsers, &st.ActiveUsers, &st.ActiveWindows,
		&st.RawBacklog, &st.TotalJobs, &st.JobsWithEmbedding,
		&st.UsersWithPreferences, &st.UsersWithEmbedding, &st.AvgEnrichLatencySec,
		&st.DeliveredToday, &st.RemindersSentToday)
	if err != nil {
		return nil, fmt.Errorf("pipeline stats: %w", err)
	}
	if st.TotalJobs > 0 {
		st.EmbeddingCoverage = float64(st.JobsWithEmbedding) / float64(st.TotalJobs)
	}
	if st.UsersWithPreferences > 0 {
		st.UserEmbeddingCoverage = float64(st.UsersWithEmbedding) / float64(st.UsersWithPreferences)
	}
	return st, nil
}
