package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/pkg/logger"
)

const backfillBatchSize = 100

// Store is the persistence surface the projector and backfill worker
// need.
type Store interface {
	GetPreferences(ctx context.Context, userID int64) (*domain.Preferences, error)
	SetUserEmbedding(ctx context.Context, userID int64, embedding []float32, model string) error
	UsersNeedingEmbedding(ctx context.Context, limit int, staleAfter time.Duration) ([]int64, error)
	JobsNeedingEmbedding(ctx context.Context, limit int, maxAge time.Duration) ([]domain.Job, error)
	SetJobEmbedding(ctx context.Context, id int64, embedding []float32, model string) error
}

// Projector regenerates a user's preference embedding after a
// preference write.
type Projector struct {
	store   Store
	service *Service
}

// NewProjector creates a preference projector.
func NewProjector(store Store, service *Service) *Projector {
	return &Projector{store: store, service: service}
}

// Project re-renders the user's profile text and persists a fresh
// embedding. Safe to retry; a failure leaves the prior embedding
// intact.
func (p *Projector) Project(ctx context.Context, userID int64) error {
	prefs, err := p.store.GetPreferences(ctx, userID)
	if err != nil {
		return fmt.Errorf("project user %d: %w", userID, err)
	}

	text := UserProfileText(prefs)
	if text == "" {
		logger.Warn("skipping embedding for empty profile", "user_id", userID)
		return nil
	}

	vec, err := p.service.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("project user %d: %w", userID, err)
	}
	if err := p.store.SetUserEmbedding(ctx, userID, vec, p.service.Model()); err != nil {
		return fmt.Errorf("project user %d: %w", userID, err)
	}
	return nil
}

// BackfillWorker periodically embeds users and jobs that lack vectors
// or carry stale ones: new preference writes whose projection failed,
// jobs whose embedding call errored during enrichment, and user
// profiles whose vector is older than the stale cutoff.
type BackfillWorker struct {
	store      Store
	service    *Service
	projector  *Projector
	interval   time.Duration
	jobMaxAge  time.Duration
	staleAfter time.Duration
}

// NewBackfillWorker creates the backfill worker. staleAfter bounds
// how old a user embedding may grow before it is regenerated.
func NewBackfillWorker(store Store, service *Service, interval, jobMaxAge, staleAfter time.Duration) *BackfillWorker {
	if staleAfter <= 0 {
		staleAfter = 30 * 24 * time.Hour
	}
	return &BackfillWorker{
		store:      store,
		service:    service,
		projector:  NewProjector(store, service),
		interval:   interval,
		jobMaxAge:  jobMaxAge,
		staleAfter: staleAfter,
	}
}

// Start begins the backfill loop. It blocks until ctx is cancelled.
func (w *BackfillWorker) Start(ctx context.Context) {
	logger.Info("embedding backfill starting", "interval", w.interval.String())

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("embedding backfill stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *BackfillWorker) runOnce(ctx context.Context) {
	users, jobs := w.backfillUsers(ctx), w.backfillJobs(ctx)
	if users > 0 || jobs > 0 {
		logger.Info("embedding backfill cycle done", "users", users, "jobs", jobs)
	}
}

func (w *BackfillWorker) backfillUsers(ctx context.Context) int {
	ids, err := w.store.UsersNeedingEmbedding(ctx, backfillBatchSize, w.staleAfter)
	if err != nil {
		logger.Error("backfill: list users", "error", err.Error())
		return 0
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done
		}
		if err := w.projector.Project(ctx, id); err != nil {
			logger.Warn("backfill: project user failed", "user_id", id, "error", err.Error())
			continue
		}
		done++
	}
	return done
}

func (w *BackfillWorker) backfillJobs(ctx context.Context) int {
	jobs, err := w.store.JobsNeedingEmbedding(ctx, backfillBatchSize, w.jobMaxAge)
	if err != nil {
		logger.Error("backfill: list jobs", "error", err.Error())
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}

	texts := make([]string, len(jobs))
	for i := range jobs {
		texts[i] = JobProfileText(&jobs[i])
	}

	vecs, err := w.service.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Warn("backfill: embed jobs failed", "count", len(jobs), "error", err.Error())
		return 0
	}

	done := 0
	for i, j := range jobs {
		if err := w.store.SetJobEmbedding(ctx, j.ID, vecs[i], w.service.Model()); err != nil {
			logger.Warn("backfill: store job embedding failed", "job_id", j.ID, "error", err.Error())
			continue
		}
		done++
	}
	return done
}
