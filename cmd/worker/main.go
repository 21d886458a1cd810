// The worker binary runs the processing pipeline: raw-job enrichment,
// embedding backfill, alert dispatch, the reminder daemon, and the
// data hygiene schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aremu/jobalert/internal/clock"
	"github.com/aremu/jobalert/internal/config"
	"github.com/aremu/jobalert/internal/delivery"
	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/embedding"
	"github.com/aremu/jobalert/internal/enrich"
	"github.com/aremu/jobalert/internal/match"
	"github.com/aremu/jobalert/internal/openai"
	"github.com/aremu/jobalert/internal/pkg/distlock"
	"github.com/aremu/jobalert/internal/pkg/logger"
	"github.com/aremu/jobalert/internal/ratelimit"
	"github.com/aremu/jobalert/internal/scheduler"
	"github.com/aremu/jobalert/internal/store"
	"github.com/aremu/jobalert/internal/whatsapp"
	"github.com/aremu/jobalert/internal/window"
)

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	workerID := uuid.New().String()[:8]
	logger.Info("worker starting", "worker_id", workerID)

	st, err := store.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute)
	if err != nil {
		logger.Error("database connect", "error", err.Error())
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("database connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ai := openai.NewClient(cfg.OpenAI.APIKey).
		WithRateLimits(cfg.OpenAI.RequestsPerMinute, cfg.OpenAI.EmbedRequestsPerMinute)
	embedSvc := embedding.NewService(ai, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbedTimeout())

	wa := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Timeout())

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Warn("invalid redis URL, continuing without redis", "error", err.Error())
		} else {
			redisClient = redis.NewClient(opts)
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				logger.Warn("redis unavailable, continuing without it", "error", err.Error())
				redisClient.Close()
				redisClient = nil
			}
			pingCancel()
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var limiter delivery.Limiter
	if redisClient != nil {
		limiter = ratelimit.New(redisClient, ratelimit.Limits{
			PerSecond: cfg.WhatsApp.SendsPerSecond,
			PerMinute: cfg.WhatsApp.SendsPerMinute,
		})
	}
	newLock := func(name string) distlock.Lock {
		return distlock.New(redisClient, st.DB(), name, 10*time.Minute)
	}

	clk := clock.Real()
	ruleM := match.NewRuleMatcher(cfg.Matching.MinRuleScore)
	embedM := match.NewEmbeddingMatcher(cfg.Matching.MinCosineSimilarity)

	dispatcher := delivery.NewDispatcher(st, wa, limiter, ruleM, embedM, clk, delivery.Config{
		DailyCap:          cfg.Delivery.DailyJobCap,
		MaxAlertsPerBatch: cfg.Delivery.MaxAlertsPerBatch,
		Concurrency:       cfg.Delivery.Concurrency,
	})

	dispatchJob := func(ctx context.Context, job *domain.Job) {
		dispatcher.DispatchJob(ctx, job)
	}
	enricher := enrich.NewWorker(st, ai, embedSvc, dispatchJob, enrich.Config{
		BatchSize:   cfg.Enrich.BatchSize,
		Concurrency: cfg.Enrich.Concurrency,
		MaxAttempts: cfg.Enrich.MaxAttempts,
		Lookback:    time.Duration(cfg.Enrich.RawLookbackDays) * 24 * time.Hour,
		Model:       cfg.OpenAI.Model,
		ChatTimeout: cfg.OpenAI.EnrichTimeout(),
		ProfileText: embedding.JobProfileText,
	})

	backfill := embedding.NewBackfillWorker(st, embedSvc,
		time.Duration(cfg.Scheduler.BackfillIntervalMinutes)*time.Minute,
		time.Duration(cfg.Matching.CandidateWindowDays)*24*time.Hour,
		time.Duration(cfg.Scheduler.StaleEmbeddingDays)*24*time.Hour)

	daemon := window.NewDaemon(st, wa, dispatcher, clk, cfg.Window.ReminderInterval())
	daemon.SetLock(newLock("reminder_scan"))

	sched := scheduler.New()
	sched.Add(scheduler.Job{
		Name:       "enrich_cycle",
		Interval:   time.Duration(cfg.Scheduler.EnrichIntervalHours) * time.Hour,
		RunOnStart: true,
		Lock:       newLock("enrich_cycle"),
		Run: func(ctx context.Context) error {
			// Drain the backlog, one claimed batch at a time.
			for {
				n, err := enricher.ProcessBatch(ctx)
				if err != nil || n == 0 {
					return err
				}
			}
		},
	})
	scheduler.AddMaintenanceJobs(sched, st, scheduler.MaintenanceConfig{
		DedupInterval:    time.Duration(cfg.Scheduler.DedupIntervalHours) * time.Hour,
		UndeliveredAfter: time.Duration(cfg.Scheduler.PurgeUndeliveredDays) * 24 * time.Hour,
		WindowRetention:  time.Duration(cfg.Scheduler.WindowRetentionDays) * 24 * time.Hour,
		NewLock:          newLock,
	})

	var wg sync.WaitGroup
	for _, start := range []func(context.Context){backfill.Start, daemon.Start, sched.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(ctx)
		}(start)
	}
	logger.Info("worker running", "worker_id", workerID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}
