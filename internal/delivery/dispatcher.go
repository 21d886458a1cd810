// Package delivery fans newly enriched jobs out to eligible users:
// open window, under the daily cap, never the same job twice.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aremu/jobalert/internal/clock"
	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/match"
	"github.com/aremu/jobalert/internal/pkg/logger"
	"github.com/aremu/jobalert/internal/store"
	"github.com/aremu/jobalert/internal/whatsapp"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	UsersWithActiveWindows(ctx context.Context, now time.Time) ([]int64, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetPreferences(ctx context.Context, userID int64) (*domain.Preferences, error)
	GetUserEmbedding(ctx context.Context, userID int64) ([]float32, error)
	GetJobEmbedding(ctx context.Context, jobID int64) ([]float32, error)
	GetJob(ctx context.Context, id int64) (*domain.Job, error)
	CountDeliveredSince(ctx context.Context, userID int64, dayStart time.Time) (int, error)
	ReserveDelivery(ctx context.Context, userID, jobID int64, score int, similarity float64) (bool, error)
	MarkDelivered(ctx context.Context, userID, jobID int64, at time.Time) error
	MarkDeliveryFailed(ctx context.Context, userID, jobID int64, errMsg string) error
	UndeliveredReservations(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error)
	ReserveDeliveryStage(ctx context.Context, userID, jobID int64, score int, similarity float64, stage string) (bool, error)
	HasSeenJob(ctx context.Context, userID, jobID int64) (bool, error)
	RecentJobs(ctx context.Context, windowDays, limit int) ([]domain.Job, error)
}

// Sender delivers outbound messages.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Limiter gates outbound sends to provider limits. Wait blocks until
// a send slot is available or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config holds dispatcher tuning.
type Config struct {
	DailyCap          int
	MaxAlertsPerBatch int
	Concurrency       int
	SendTimeout       time.Duration
	BackfillDays      int // how far back the back-fill scan looks
	BackfillLimit     int // candidate postings per back-fill pass
}

// Dispatcher fans one job out to the eligible cohort.
type Dispatcher struct {
	store    Store
	sender   Sender
	limiter  Limiter
	ruleM    *match.RuleMatcher
	embedM   *match.EmbeddingMatcher
	clk      clock.Clock
	cfg      Config
}

// NewDispatcher creates a dispatcher. limiter may be nil.
func NewDispatcher(st Store, sender Sender, limiter Limiter, ruleM *match.RuleMatcher, embedM *match.EmbeddingMatcher, clk clock.Clock, cfg Config) *Dispatcher {
	if cfg.DailyCap <= 0 {
		cfg.DailyCap = 10
	}
	if cfg.MaxAlertsPerBatch <= 0 {
		cfg.MaxAlertsPerBatch = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = 5
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = 200
	}
	return &Dispatcher{
		store: st, sender: sender, limiter: limiter,
		ruleM: ruleM, embedM: embedM, clk: clk, cfg: cfg,
	}
}

// DispatchJob is the real-time path: called right after a canonical
// posting is persisted. Users are processed in parallel; a single
// (user, job) pair is serialized by the history reservation.
func (d *Dispatcher) DispatchJob(ctx context.Context, job *domain.Job) int {
	now := d.clk.Now()
	userIDs, err := d.store.UsersWithActiveWindows(ctx, now)
	if err != nil {
		logger.Error("dispatch: list eligible users", "error", err.Error())
		return 0
	}
	if len(userIDs) == 0 {
		return 0
	}

	jobVec, err := d.store.GetJobEmbedding(ctx, job.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("dispatch: load job embedding", "job_id", job.ID, "error", err.Error())
	}

	sem := make(chan struct{}, d.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	sent := 0

	for _, uid := range userIDs {
		mu.Lock()
		capped := sent >= d.cfg.MaxAlertsPerBatch
		mu.Unlock()
		if capped {
			logger.Warn("dispatch: batch alert guard hit", "job_id", job.ID, "limit", d.cfg.MaxAlertsPerBatch)
			break
		}

		uid := uid
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if d.dispatchToUser(ctx, uid, job, jobVec, now) {
				mu.Lock()
				sent++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if sent > 0 {
		logger.Info("dispatch complete", "job_id", job.ID, "alerts_sent", sent)
	}
	return sent
}

func (d *Dispatcher) dispatchToUser(ctx context.Context, userID int64, job *domain.Job, jobVec []float32, now time.Time) bool {
	prefs, err := d.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("dispatch: load preferences", "user_id", userID, "error", err.Error())
		}
		return false
	}
	if !prefs.AlertsEnabled {
		return false
	}

	// Daily cap: reaching it is a quiet skip, not an error
	delivered, err := d.store.CountDeliveredSince(ctx, userID, dayStart(now))
	if err != nil {
		logger.Warn("dispatch: count delivered", "user_id", userID, "error", err.Error())
		return false
	}
	if delivered >= d.cfg.DailyCap {
		return false
	}

	res, similarity := d.matchUser(ctx, userID, prefs, job, jobVec)
	if !res.Matched {
		return false
	}

	// History row goes in before the send: the unique constraint is
	// the dedup gate, and a lost race aborts the outbound.
	reserved, err := d.store.ReserveDelivery(ctx, userID, job.ID, res.Score, similarity)
	if err != nil {
		logger.Warn("dispatch: reserve", "user_id", userID, "job_id", job.ID, "error", err.Error())
		return false
	}
	if !reserved {
		return false
	}

	user, err := d.store.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("dispatch: load user", "user_id", userID, "error", err.Error())
		return false
	}

	body := AlertMessage(domain.Match{
		UserID: userID, Job: *job,
		Score: res.Score, Similarity: similarity, Reasons: res.Reasons,
	})

	if err := d.send(ctx, user.Phone, body); err != nil {
		logger.Warn("dispatch: send failed", "user_id", userID, "job_id", job.ID, "error", err.Error())
		if err := d.store.MarkDeliveryFailed(ctx, userID, job.ID, err.Error()); err != nil {
			logger.Error("dispatch: record failure", "user_id", userID, "job_id", job.ID, "error", err.Error())
		}
		return false
	}

	if err := d.store.MarkDelivered(ctx, userID, job.ID, d.clk.Now()); err != nil {
		logger.Error("dispatch: mark delivered", "user_id", userID, "job_id", job.ID, "error", err.Error())
	}
	return true
}

// matchUser runs the embedding matcher when both vectors exist, the
// rule matcher otherwise.
func (d *Dispatcher) matchUser(ctx context.Context, userID int64, prefs *domain.Preferences, job *domain.Job, jobVec []float32) (match.Result, float64) {
	if len(jobVec) > 0 && prefs.HasEmbedding {
		userVec, err := d.store.GetUserEmbedding(ctx, userID)
		if err == nil && len(userVec) > 0 {
			return d.embedM.Score(userVec, jobVec)
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warn("dispatch: load user embedding", "user_id", userID, "error", err.Error())
		}
	}
	res := d.ruleM.Score(prefs, job)
	return res, 0
}

// RetryUndelivered is the back-fill path: re-attempts failed
// reservations for a user, still subject to the daily cap.
func (d *Dispatcher) RetryUndelivered(ctx context.Context, userID int64) int {
	now := d.clk.Now()

	delivered, err := d.store.CountDeliveredSince(ctx, userID, dayStart(now))
	if err != nil {
		return 0
	}
	budget := d.cfg.DailyCap - delivered
	if budget <= 0 {
		return 0
	}

	pending, err := d.store.UndeliveredReservations(ctx, userID, budget)
	if err != nil {
		logger.Warn("retry: list undelivered", "user_id", userID, "error", err.Error())
		return 0
	}

	user, err := d.store.GetUser(ctx, userID)
	if err != nil {
		return 0
	}

	sent := 0
	for _, h := range pending {
		job, err := d.store.GetJob(ctx, h.JobID)
		if err != nil {
			continue
		}
		body := AlertMessage(domain.Match{UserID: userID, Job: *job, Score: h.MatchScore, Similarity: h.Similarity})
		if err := d.send(ctx, user.Phone, body); err != nil {
			if errors.Is(err, whatsapp.ErrPermanent) {
				// Hopeless send; record and stop retrying it
				_ = d.store.MarkDeliveryFailed(ctx, userID, h.JobID, err.Error())
			}
			continue
		}
		if err := d.store.MarkDelivered(ctx, userID, h.JobID, d.clk.Now()); err != nil {
			logger.Error("retry: mark delivered", "user_id", userID, "job_id", h.JobID, "error", err.Error())
		}
		sent++
	}
	return sent
}

// BackfillRecent dispatches recent postings the user has not yet seen.
// It covers users who opened their window after a posting arrived, and
// is called from the reminder daemon's pass. History rows carry stage
// "backfill".
func (d *Dispatcher) BackfillRecent(ctx context.Context, userID int64) int {
	now := d.clk.Now()

	prefs, err := d.store.GetPreferences(ctx, userID)
	if err != nil || !prefs.AlertsEnabled {
		return 0
	}

	delivered, err := d.store.CountDeliveredSince(ctx, userID, dayStart(now))
	if err != nil {
		return 0
	}
	budget := d.cfg.DailyCap - delivered
	if budget <= 0 {
		return 0
	}

	jobs, err := d.store.RecentJobs(ctx, d.cfg.BackfillDays, d.cfg.BackfillLimit)
	if err != nil {
		logger.Warn("backfill: list recent jobs", "user_id", userID, "error", err.Error())
		return 0
	}

	var user *domain.User
	sent := 0
	for i := range jobs {
		if sent >= budget || ctx.Err() != nil {
			break
		}
		job := &jobs[i]

		seen, err := d.store.HasSeenJob(ctx, userID, job.ID)
		if err != nil || seen {
			continue
		}

		jobVec, err := d.store.GetJobEmbedding(ctx, job.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			jobVec = nil
		}
		res, similarity := d.matchUser(ctx, userID, prefs, job, jobVec)
		if !res.Matched {
			continue
		}

		reserved, err := d.store.ReserveDeliveryStage(ctx, userID, job.ID, res.Score, similarity, "backfill")
		if err != nil || !reserved {
			continue
		}

		if user == nil {
			user, err = d.store.GetUser(ctx, userID)
			if err != nil {
				return sent
			}
		}

		body := AlertMessage(domain.Match{
			UserID: userID, Job: *job,
			Score: res.Score, Similarity: similarity, Reasons: res.Reasons,
		})
		if err := d.send(ctx, user.Phone, body); err != nil {
			logger.Warn("backfill: send failed", "user_id", userID, "job_id", job.ID, "error", err.Error())
			_ = d.store.MarkDeliveryFailed(ctx, userID, job.ID, err.Error())
			continue
		}
		if err := d.store.MarkDelivered(ctx, userID, job.ID, d.clk.Now()); err != nil {
			logger.Error("backfill: mark delivered", "user_id", userID, "job_id", job.ID, "error", err.Error())
		}
		sent++
	}

	if sent > 0 {
		logger.Info("backfill complete", "user_id", userID, "alerts_sent", sent)
	}
	return sent
}

func (d *Dispatcher) send(ctx context.Context, phone, body string) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	_, err := d.sender.SendText(sendCtx, phone, body)
	return err
}

// dayStart truncates to the start of the UTC day for daily-cap
// accounting.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
