// Package enrich converts raw scraped postings into canonical jobs
// via the language model, embeds them, and hands them to the delivery
// dispatcher.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/openai"
	"github.com/aremu/jobalert/internal/pkg/logger"
)

// Store is the persistence surface the worker needs.
type Store interface {
	ClaimRawJobs(ctx context.Context, limit, maxAttempts int, lookback time.Duration) ([]domain.RawJob, error)
	MarkRawJobProcessed(ctx context.Context, id int64) error
	MarkRawJobFailed(ctx context.Context, id int64, errMsg string) error
	InsertJob(ctx context.Context, j *domain.Job) (int64, error)
	SetJobEmbedding(ctx context.Context, id int64, embedding []float32, model string) error
}

// LLM is the slice of the OpenAI client the worker uses.
type LLM interface {
	Chat(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error)
}

// Embedder produces a vector for a job's profile text and names the
// model that produced it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// DispatchFunc receives each newly enriched job for real-time
// delivery.
type DispatchFunc func(ctx context.Context, job *domain.Job)

// Config holds worker tuning.
type Config struct {
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	Lookback     time.Duration
	Model        string
	ChatTimeout  time.Duration
	ProfileText  func(*domain.Job) string
}

// Worker drains the raw job queue in batches.
type Worker struct {
	store    Store
	llm      LLM
	embedder Embedder
	dispatch DispatchFunc
	cfg      Config
}

// NewWorker creates an enrichment worker. dispatch may be nil.
func NewWorker(store Store, llm LLM, embedder Embedder, dispatch DispatchFunc, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 14 * 24 * time.Hour
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 30 * time.Second
	}
	return &Worker{store: store, llm: llm, embedder: embedder, dispatch: dispatch, cfg: cfg}
}

// rawPayload is the JSON shape sources enqueue.
type rawPayload struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PostedAt    string `json:"posted_at"` // RFC 3339, optional
}

// ProcessBatch claims and enriches one batch. Returns how many raw
// jobs became canonical postings.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	raws, err := w.store.ClaimRawJobs(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts, w.cfg.Lookback)
	if err != nil {
		return 0, err
	}
	if len(raws) == 0 {
		return 0, nil
	}
	logger.Info("enrichment batch claimed", "count", len(raws))

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i := range raws {
		raw := raws[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if w.processOne(ctx, raw) {
				mu.Lock()
				done++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return done, nil
}

// processOne enriches a single raw job. A failure never blocks the
// rest of the batch.
func (w *Worker) processOne(ctx context.Context, raw domain.RawJob) bool {
	var p rawPayload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		w.fail(ctx, raw.ID, "bad payload: "+err.Error())
		return false
	}

	job, err := w.enrichWithRetry(ctx, &p)
	if err != nil {
		w.fail(ctx, raw.ID, err.Error())
		return false
	}

	job.RawJobID = raw.ID
	if p.URL != "" && job.ApplyURL == "" {
		job.ApplyURL = p.URL
	}
	if raw.URL != "" && job.ApplyURL == "" {
		job.ApplyURL = raw.URL
	}
	job.ScrapedAt = raw.ScrapedAt
	if job.ScrapedAt.IsZero() {
		job.ScrapedAt = raw.CreatedAt
	}
	if t, err := time.Parse(time.RFC3339, p.PostedAt); err == nil {
		job.PostedAt = t
	}
	if job.PostedAt.IsZero() {
		job.PostedAt = job.ScrapedAt
	}

	id, err := w.store.InsertJob(ctx, job)
	if err != nil {
		w.fail(ctx, raw.ID, "insert: "+err.Error())
		return false
	}
	job.ID = id

	// Embedding failure is not fatal; the backfill worker fills the
	// gap and the rule matcher covers the interim.
	if vec, err := w.embedder.Embed(ctx, w.profileText(job)); err != nil {
		logger.Warn("enrich: embedding failed", "job_id", id, "error", err.Error())
	} else if err := w.store.SetJobEmbedding(ctx, id, vec, w.embedder.Model()); err != nil {
		logger.Warn("enrich: store embedding failed", "job_id", id, "error", err.Error())
	} else {
		job.HasEmbedding = true
		job.AIEnhanced = true
		job.EmbeddingModel = w.embedder.Model()
	}

	if err := w.store.MarkRawJobProcessed(ctx, raw.ID); err != nil {
		logger.Error("enrich: mark processed failed", "raw_id", raw.ID, "error", err.Error())
	}

	if w.dispatch != nil {
		w.dispatch(ctx, job)
	}
	return true
}

// enrichWithRetry calls the model with exponential back-off on
// transient errors. Schema violations abort immediately; the record
// stays claimed and may be retried in a later batch.
func (w *Worker) enrichWithRetry(ctx context.Context, p *rawPayload) (*domain.Job, error) {
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < w.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		job, err := w.enrichOnce(ctx, p)
		if err == nil {
			return job, nil
		}
		lastErr = err

		var schemaErr errSchema
		if errors.As(err, &schemaErr) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (w *Worker) enrichOnce(ctx context.Context, p *rawPayload) (*domain.Job, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.ChatTimeout)
	defer cancel()

	resp, err := w.llm.Chat(callCtx, openai.ChatRequest{
		Model: w.cfg.Model,
		Messages: []openai.ChatMessage{
			{Role: "user", Content: buildPrompt(p.Title, p.Company, p.Location, p.Description)},
		},
		Temperature:    0.3,
		ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	return parseEnrichment(resp.Choices[0].Message.Content, p.Description)
}

func (w *Worker) profileText(j *domain.Job) string {
	if w.cfg.ProfileText != nil {
		return w.cfg.ProfileText(j)
	}
	return j.Title + " " + j.Description
}

func (w *Worker) fail(ctx context.Context, rawID int64, msg string) {
	logger.Warn("enrich: record failed", "raw_id", rawID, "error", msg)
	if err := w.store.MarkRawJobFailed(ctx, rawID, msg); err != nil {
		logger.Error("enrich: mark failed errored", "raw_id", rawID, "error", err.Error())
	}
}
