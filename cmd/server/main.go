// The server binary hosts the HTTP surface: the WhatsApp webhook, job
// intake, health, and metrics. Background processing lives in
// cmd/worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/aremu/jobalert/internal/api"
	"github.com/aremu/jobalert/internal/bot"
	"github.com/aremu/jobalert/internal/clock"
	"github.com/aremu/jobalert/internal/config"
	"github.com/aremu/jobalert/internal/embedding"
	"github.com/aremu/jobalert/internal/openai"
	"github.com/aremu/jobalert/internal/pkg/logger"
	"github.com/aremu/jobalert/internal/ratelimit"
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

	instanceID := uuid.New().String()[:8]
	logger.Info("server starting", "instance", instanceID)

	st, err := store.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute)
	if err != nil {
		logger.Error("database connect", "error", err.Error())
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("database connected")

	var redisPinger api.Pinger
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		limiter, err := ratelimit.NewFromURL(cfg.Redis.URL, ratelimit.Limits{
			PerSecond: cfg.WhatsApp.SendsPerSecond,
			PerMinute: cfg.WhatsApp.SendsPerMinute,
		})
		if err != nil {
			logger.Warn("redis unavailable, continuing without it", "error", err.Error())
		} else {
			defer limiter.Close()
			redisPinger = limiter
		}
	}

	wa := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Timeout())

	ai := openai.NewClient(cfg.OpenAI.APIKey).
		WithRateLimits(cfg.OpenAI.RequestsPerMinute, cfg.OpenAI.EmbedRequestsPerMinute)
	embedSvc := embedding.NewService(ai, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbedTimeout())

	windows := window.NewManager(st, clock.Real(), cfg.Window.Duration())
	inbound := bot.New(st, windows, wa)

	handlers := api.NewHandlers(api.HandlersConfig{
		Store:        st,
		Inbound:      inbound,
		DB:           st,
		Redis:        redisPinger,
		Chat:         wa,
		Model:        ai,
		Embedding:    embedSvc,
		VerifyToken:  cfg.WhatsApp.VerifyToken,
		AppSecret:    cfg.WhatsApp.AppSecret,
		MetricsToken: cfg.Metrics.Token,
	})
	srv := api.NewServer(handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err.Error())
	}
	logger.Info("server stopped")
}
