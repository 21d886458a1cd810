package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aremu/jobalert/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// GetOrCreateUser looks a user up by phone, creating an active record
// on first contact. The insert is race-safe via the unique phone
// constraint.
func (s *Store) GetOrCreateUser(ctx context.Context, phone, name string) (*domain.User, bool, error) {
	u := &domain.User{}
	var created bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (phone, name)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (phone) DO UPDATE SET updated_at = NOW()
		RETURNING id, phone, COALESCE(name, ''), is_active, created_at, updated_at,
		          (created_at = updated_at)
	`, phone, name).Scan(&u.ID, &u.Phone, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("get or create user: %w", err)
	}
	return u, created, nil
}

// GetUserByPhone fetches a user by their WhatsApp number.
func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, COALESCE(name, ''), is_active, created_at, updated_at
		FROM users WHERE phone = $1
	`, phone).Scan(&u.ID, &u.Phone, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by phone: %w", err)
	}
	return u, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, COALESCE(name, ''), is_active, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Phone, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetUserActive flips a user's active flag. Inactive users receive no
// alerts or reminders.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPreferences writes a user's full preference set, replacing
// any previous values and invalidating the stored embedding so the
// backfill worker regenerates it.
func (s *Store) UpsertPreferences(ctx context.Context, p *domain.Preferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences
			(user_id, job_titles, work_arrangement, locations, willing_to_relocate,
			 min_salary, salary_currency, salary_period, experience_years,
			 experience_level, job_functions, industries, skills, alerts_enabled,
			 embedding, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, 0), NULLIF($7, ''),
		        NULLIF($8, ''), $9, NULLIF($10, ''), $11, $12, $13, $14, NULL, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			job_titles = EXCLUDED.job_titles,
			work_arrangement = EXCLUDED.work_arrangement,
			locations = EXCLUDED.locations,
			willing_to_relocate = EXCLUDED.willing_to_relocate,
			min_salary = EXCLUDED.min_salary,
			salary_currency = EXCLUDED.salary_currency,
			salary_period = EXCLUDED.salary_period,
			experience_years = EXCLUDED.experience_years,
			experience_level = EXCLUDED.experience_level,
			job_functions = EXCLUDED.job_functions,
			industries = EXCLUDED.industries,
			skills = EXCLUDED.skills,
			alerts_enabled = EXCLUDED.alerts_enabled,
			embedding = NULL,
			embedding_updated_at = NULL,
			updated_at = NOW()
	`, p.UserID, pq.Array(p.JobTitles), p.WorkArrangement, pq.Array(p.Locations),
		p.WillingToRelocate, p.MinSalary, p.SalaryCurrency, p.SalaryPeriod,
		p.ExperienceYears, p.ExperienceLevel, pq.Array(p.JobFunctions),
		pq.Array(p.Industries), pq.Array(p.Skills), p.AlertsEnabled)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// GetPreferences fetches a user's preference set.
func (s *Store) GetPreferences(ctx context.Context, userID int64) (*domain.Preferences, error) {
	p := &domain.Preferences{UserID: userID}
	var titles, locations, functions, industries, skills pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		SELECT job_titles, COALESCE(work_arrangement, ''), locations,
		       willing_to_relocate, COALESCE(min_salary, 0),
		       COALESCE(salary_currency, ''), COALESCE(salary_period, ''),
		       COALESCE(experience_years, 0), COALESCE(experience_level, ''),
		       job_functions, industries, skills, alerts_enabled,
		       embedding IS NOT NULL, updated_at
		FROM user_preferences WHERE user_id = $1
	`, userID).Scan(&titles, &p.WorkArrangement, &locations,
		&p.WillingToRelocate, &p.MinSalary,
		&p.SalaryCurrency, &p.SalaryPeriod,
		&p.ExperienceYears, &p.ExperienceLevel,
		&functions, &industries, &skills, &p.AlertsEnabled,
		&p.HasEmbedding, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	p.JobTitles = titles
	p.Locations = locations
	p.JobFunctions = functions
	p.Industries = industries
	p.Skills = skills
	return p, nil
}

// SetAlertsEnabled toggles alert delivery for a user without touching
// the rest of their preferences.
func (s *Store) SetAlertsEnabled(ctx context.Context, userID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_preferences SET alerts_enabled = $1, updated_at = NOW()
		WHERE user_id = $2
	`, enabled, userID)
	if err != nil {
		return fmt.Errorf("set alerts enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserEmbedding stores the preference embedding produced by the
// projector.
func (s *Store) SetUserEmbedding(ctx context.Context, userID int64, embedding []float32, model string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_preferences
		SET embedding = $1::vector, embedding_model = NULLIF($3, ''),
		    embedding_updated_at = NOW()
		WHERE user_id = $2
	`, EncodeVector(embedding), userID, model)
	if err != nil {
		return fmt.Errorf("set user embedding: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UsersNeedingEmbedding lists users whose preferences changed since
// their embedding was generated, who never had one, or whose embedding
// is older than staleAfter. The backfill worker drains this; the stale
// cutoff keeps long-unchanged profiles on the current model.
func (s *Store) UsersNeedingEmbedding(ctx context.Context, limit int, staleAfter time.Duration) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM user_preferences
		WHERE embedding IS NULL
		   OR embedding_updated_at < updated_at
		   OR embedding_updated_at < NOW() - $2::interval
		ORDER BY updated_at
		LIMIT $1
	`, limit, fmt.Sprintf("%d seconds", int(staleAfter.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("users needing embedding: %w", err)
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
