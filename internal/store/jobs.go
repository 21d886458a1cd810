package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aremu/jobalert/internal/domain"
)

const jobColumns = `
	id, COALESCE(raw_job_id, 0), title, alternate_titles, COALESCE(company, ''),
	COALESCE(description, ''), COALESCE(summary, ''), COALESCE(location, ''),
	COALESCE(country, ''), COALESCE(work_arrangement, ''), remote_allowed,
	COALESCE(job_function, ''), COALESCE(industry, ''), COALESCE(experience_level, ''),
	COALESCE(min_years, 0), COALESCE(salary_min, 0), COALESCE(salary_max, 0),
	COALESCE(salary_currency, ''), COALESCE(salary_period, ''), skills,
	preferred_skills, COALESCE(apply_url, ''), COALESCE(posted_at, created_at),
	COALESCE(scraped_at, created_at), ai_enhanced,
	embedding IS NOT NULL, COALESCE(embedding_model, ''), created_at`

func scanJob(row interface{ Scan(...interface{}) error }) (domain.Job, error) {
	var j domain.Job
	var altTitles, skills, preferred pq.StringArray
	err := row.Scan(&j.ID, &j.RawJobID, &j.Title, &altTitles, &j.Company,
		&j.Description, &j.Summary, &j.Location, &j.Country,
		&j.WorkArrangement, &j.RemoteAllowed, &j.JobFunction, &j.Industry,
		&j.ExperienceLevel, &j.MinYears, &j.SalaryMin, &j.SalaryMax,
		&j.SalaryCurrency, &j.SalaryPeriod, &skills, &preferred,
		&j.ApplyURL, &j.PostedAt, &j.ScrapedAt, &j.AIEnhanced,
		&j.HasEmbedding, &j.EmbeddingModel, &j.CreatedAt)
	j.AlternateTitles = altTitles
	j.Skills = skills
	j.PreferredSkills = preferred
	return j, err
}

// InsertJob stores an enriched canonical job and returns its id.
func (s *Store) InsertJob(ctx context.Context, j *domain.Job) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO canonical_jobs
			(raw_job_id, title, alternate_titles, company, description, summary,
			 location, country, work_arrangement, remote_allowed, job_function,
			 industry, experience_level, min_years, salary_min, salary_max,
			 salary_currency, salary_period, skills, preferred_skills,
			 apply_url, posted_at, scraped_at)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''),
		        NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), $10, NULLIF($11,''),
		        NULLIF($12,''), NULLIF($13,''), $14, NULLIF($15,0), NULLIF($16,0),
		        NULLIF($17,''), NULLIF($18,''), $19, $20,
		        NULLIF($21,''), $22, $23)
		RETURNING id
	`, nullInt64(j.RawJobID), j.Title, pq.Array(j.AlternateTitles), j.Company,
		j.Description, j.Summary, j.Location, j.Country, j.WorkArrangement,
		j.RemoteAllowed, j.JobFunction, j.Industry, j.ExperienceLevel,
		j.MinYears, j.SalaryMin, j.SalaryMax, j.SalaryCurrency,
		j.SalaryPeriod, pq.Array(j.Skills), pq.Array(j.PreferredSkills),
		j.ApplyURL, nullTime(j.PostedAt), nullTime(j.ScrapedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// GetJob fetches a canonical job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM canonical_jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// SetJobEmbedding stores a job's profile embedding and flips
// ai_enhanced: the posting now has both its structured enrichment and
// its vector.
func (s *Store) SetJobEmbedding(ctx context.Context, id int64, embedding []float32, model string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE canonical_jobs
		SET embedding = $1::vector, embedding_model = NULLIF($3, ''), ai_enhanced = TRUE
		WHERE id = $2
	`, EncodeVector(embedding), id, model)
	if err != nil {
		return fmt.Errorf("set job embedding: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// JobsNeedingEmbedding lists recent jobs with no stored embedding.
func (s *Store) JobsNeedingEmbedding(ctx context.Context, limit int, maxAge time.Duration) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM canonical_jobs
		WHERE embedding IS NULL AND created_at > NOW() - $2::interval
		ORDER BY created_at
		LIMIT $1
	`, limit, fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("jobs needing embedding: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// SearchJobsByEmbedding returns recent jobs ordered by cosine
// similarity to the query vector, most similar first. Similarity is
// 1 - cosine distance; only rows at or above minSimilarity are
// returned.
func (s *Store) SearchJobsByEmbedding(ctx context.Context, query []float32, minSimilarity float64, windowDays, limit int) ([]domain.Job, []float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`, 1 - (embedding <=> $1::vector) AS similarity
		FROM canonical_jobs
		WHERE embedding IS NOT NULL
		  AND COALESCE(posted_at, created_at) > NOW() - ($3 || ' days')::interval
		  AND 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $4
	`, EncodeVector(query), minSimilarity, windowDays, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("search jobs by embedding: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	var sims []float64
	for rows.Next() {
		var j domain.Job
		var altTitles, skills, preferred pq.StringArray
		var sim float64
		if err := rows.Scan(&j.ID, &j.RawJobID, &j.Title, &altTitles,
			&j.Company, &j.Description, &j.Summary, &j.Location, &j.Country,
			&j.WorkArrangement, &j.RemoteAllowed, &j.JobFunction, &j.Industry,
			&j.ExperienceLevel, &j.MinYears, &j.SalaryMin, &j.SalaryMax,
			&j.SalaryCurrency, &j.SalaryPeriod, &skills, &preferred,
			&j.ApplyURL, &j.PostedAt, &j.ScrapedAt, &j.AIEnhanced,
			&j.HasEmbedding, &j.EmbeddingModel, &j.CreatedAt, &sim); err != nil {
			return nil, nil, fmt.Errorf("scan job: %w", err)
		}
		j.AlternateTitles = altTitles
		j.Skills = skills
		j.PreferredSkills = preferred
		jobs = append(jobs, j)
		sims = append(sims, sim)
	}
	return jobs, sims, rows.Err()
}

// RecentJobs lists jobs posted inside the matching window, newest
// first. Used by the rule matcher fallback when a user has no
// embedding.
func (s *Store) RecentJobs(ctx context.Context, windowDays, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM canonical_jobs
		WHERE COALESCE(posted_at, created_at) > NOW() - ($1 || ' days')::interval
		ORDER BY COALESCE(posted_at, created_at) DESC
		LIMIT $2
	`, windowDays, limit)
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// GetJobEmbedding loads a job's stored embedding.
func (s *Store) GetJobEmbedding(ctx context.Context, jobID int64) ([]float32, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding::text FROM canonical_jobs WHERE id = $1
	`, jobID).Scan(&text)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job embedding: %w", err)
	}
	if !text.Valid {
		return nil, ErrNotFound
	}
	return DecodeVector(text.String)
}

// GetUserEmbedding loads a user's stored preference embedding.
func (s *Store) GetUserEmbedding(ctx context.Context, userID int64) ([]float32, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding::text FROM user_preferences WHERE user_id = $1
	`, userID).Scan(&text)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user embedding: %w", err)
	}
	if !text.Valid {
		return nil, ErrNotFound
	}
	return DecodeVector(text.String)
}

// PurgeDuplicateJobs removes canonical postings that duplicate a
// newer posting on the (title, company, location) tuple, compared
// lowercased and trimmed. The most recently scraped row in each group
// survives; delivery history rows pointing at pruned rows are
// untouched, so the dedup ledger still blocks a re-ingested copy.
func (s *Store) PurgeDuplicateJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM canonical_jobs j
		USING canonical_jobs newer
		WHERE LOWER(TRIM(j.title)) = LOWER(TRIM(newer.title))
		  AND LOWER(TRIM(COALESCE(j.company, ''))) = LOWER(TRIM(COALESCE(newer.company, '')))
		  AND LOWER(TRIM(COALESCE(j.location, ''))) = LOWER(TRIM(COALESCE(newer.location, '')))
		  AND COALESCE(newer.scraped_at, newer.created_at) > COALESCE(j.scraped_at, j.created_at)
	`)
	if err != nil {
		return 0, fmt.Errorf("purge duplicate jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeOldJobs deletes canonical jobs past the retention period that
// no delivery history row references. Jobs with any history row —
// delivered or a pending retry — are kept.
func (s *Store) PurgeOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM canonical_jobs j
		WHERE j.created_at < NOW() - $1::interval
		  AND NOT EXISTS (
		      SELECT 1 FROM user_job_history h WHERE h.job_id = j.id
		  )
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge old jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
