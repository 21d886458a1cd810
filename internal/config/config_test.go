package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  url: postgres://localhost/jobalert_test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/jobalert_test", cfg.Database.URL)

	// Defaults applied for everything unspecified
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "https://graph.facebook.com/v18.0", cfg.WhatsApp.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 39, cfg.Matching.MinRuleScore)
	assert.Equal(t, 0.65, cfg.Matching.MinCosineSimilarity)
	assert.Equal(t, 60, cfg.Matching.CandidateWindowDays)
	assert.Equal(t, 10, cfg.Delivery.DailyJobCap)
	assert.Equal(t, 50, cfg.Delivery.MaxAlertsPerBatch)
	assert.Equal(t, 24, cfg.Window.DurationHours)
	assert.Equal(t, 5, cfg.Window.ReminderIntervalMinutes)
	assert.Equal(t, 50, cfg.Enrich.BatchSize)
	assert.Equal(t, 3, cfg.Enrich.MaxAttempts)
	assert.Equal(t, 14, cfg.Enrich.RawLookbackDays)
	assert.Equal(t, 2, cfg.Scheduler.EnrichIntervalHours)
	assert.Equal(t, 5, cfg.Scheduler.DedupIntervalHours)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://yaml/db
matching:
  min_rule_score: 45
`)

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "tok-123")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "555000")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "verify-me")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MIN_MATCH_SCORE", "42")
	t.Setenv("DAILY_JOB_CAP", "7")
	t.Setenv("WINDOW_HOURS", "12")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "tok-123", cfg.WhatsApp.AccessToken)
	assert.Equal(t, "555000", cfg.WhatsApp.PhoneNumberID)
	assert.Equal(t, "verify-me", cfg.WhatsApp.VerifyToken)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 42, cfg.Matching.MinRuleScore)
	assert.Equal(t, 7, cfg.Delivery.DailyJobCap)
	assert.Equal(t, 12, cfg.Window.DurationHours)
}

func TestLoadFromEnvIgnoresBadNumbers(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://x\n")

	t.Setenv("MIN_MATCH_SCORE", "not-a-number")
	t.Setenv("DAILY_JOB_CAP", "-5")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, 39, cfg.Matching.MinRuleScore)
	assert.Equal(t, 10, cfg.Delivery.DailyJobCap)
}
