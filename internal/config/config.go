package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Matching  MatchingConfig  `yaml:"matching"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Window    WindowConfig    `yaml:"window"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("RAILWAY_ENVIRONMENT") != "" || os.Getenv("ECS_CONTAINER_METADATA_URI") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for rate limiting
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials
type WhatsAppConfig struct {
	AccessToken    string `yaml:"access_token"`
	PhoneNumberID  string `yaml:"phone_number_id"`
	VerifyToken    string `yaml:"verify_token"`
	AppSecret      string `yaml:"app_secret"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	SendsPerSecond int    `yaml:"sends_per_second"`
	SendsPerMinute int    `yaml:"sends_per_minute"`
}

// Timeout returns the configured timeout as a duration
func (c WhatsAppConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig holds OpenAI API configuration for enrichment and embeddings
type OpenAIConfig struct {
	APIKey                 string `yaml:"api_key"`
	Model                  string `yaml:"model"`
	EmbeddingModel         string `yaml:"embedding_model"`
	EnrichTimeoutSeconds   int    `yaml:"enrich_timeout_seconds"`
	EmbedTimeoutSeconds    int    `yaml:"embed_timeout_seconds"`
	RequestsPerMinute      int    `yaml:"requests_per_minute"`
	EmbedRequestsPerMinute int    `yaml:"embed_requests_per_minute"`
}

// EnrichTimeout returns the per-call deadline for enrichment requests
func (c OpenAIConfig) EnrichTimeout() time.Duration {
	return time.Duration(c.EnrichTimeoutSeconds) * time.Second
}

// EmbedTimeout returns the per-call deadline for embedding requests
func (c OpenAIConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSeconds) * time.Second
}

// MatchingConfig holds match-engine thresholds
type MatchingConfig struct {
	MinRuleScore        int     `yaml:"min_rule_score"`
	MinCosineSimilarity float64 `yaml:"min_cosine_similarity"`
	CandidateWindowDays int     `yaml:"candidate_window_days"`
	TopK                int     `yaml:"top_k"`
}

// DeliveryConfig holds dispatcher settings
type DeliveryConfig struct {
	DailyJobCap       int `yaml:"daily_job_cap"`
	MaxAlertsPerBatch int `yaml:"max_alerts_per_batch"`
	Concurrency       int `yaml:"concurrency"`
}

// WindowConfig holds 24-hour window settings
type WindowConfig struct {
	DurationHours           int `yaml:"duration_hours"`
	ReminderIntervalMinutes int `yaml:"reminder_interval_minutes"`
}

// Duration returns the outbound window length
func (c WindowConfig) Duration() time.Duration {
	return time.Duration(c.DurationHours) * time.Hour
}

// ReminderInterval returns the reminder daemon cadence
func (c WindowConfig) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalMinutes) * time.Minute
}

// EnrichConfig holds enrichment worker settings
type EnrichConfig struct {
	BatchSize       int `yaml:"batch_size"`
	Concurrency     int `yaml:"concurrency"`
	MaxAttempts     int `yaml:"max_attempts"`
	RawLookbackDays int `yaml:"raw_lookback_days"`
}

// SchedulerConfig holds coarse-cadence maintenance settings
type SchedulerConfig struct {
	EnrichIntervalHours     int `yaml:"enrich_interval_hours"`
	BackfillIntervalMinutes int `yaml:"backfill_interval_minutes"`
	DedupIntervalHours      int `yaml:"dedup_interval_hours"`
	StaleEmbeddingDays      int `yaml:"stale_embedding_days"`
	PurgeUndeliveredDays    int `yaml:"purge_undelivered_days"`
	WindowRetentionDays     int `yaml:"window_retention_days"`
}

// MetricsConfig gates the operational metrics endpoint
type MetricsConfig struct {
	Token string `yaml:"token"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://graph.facebook.com/v18.0"
	}
	if cfg.WhatsApp.TimeoutSeconds == 0 {
		cfg.WhatsApp.TimeoutSeconds = 10
	}
	if cfg.WhatsApp.SendsPerSecond == 0 {
		cfg.WhatsApp.SendsPerSecond = 20
	}
	if cfg.WhatsApp.SendsPerMinute == 0 {
		cfg.WhatsApp.SendsPerMinute = 600
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.EnrichTimeoutSeconds == 0 {
		cfg.OpenAI.EnrichTimeoutSeconds = 30
	}
	if cfg.OpenAI.EmbedTimeoutSeconds == 0 {
		cfg.OpenAI.EmbedTimeoutSeconds = 10
	}
	if cfg.OpenAI.RequestsPerMinute == 0 {
		cfg.OpenAI.RequestsPerMinute = 200
	}
	if cfg.OpenAI.EmbedRequestsPerMinute == 0 {
		cfg.OpenAI.EmbedRequestsPerMinute = 500
	}
	if cfg.Matching.MinRuleScore == 0 {
		cfg.Matching.MinRuleScore = 39
	}
	if cfg.Matching.MinCosineSimilarity == 0 {
		cfg.Matching.MinCosineSimilarity = 0.65
	}
	if cfg.Matching.CandidateWindowDays == 0 {
		cfg.Matching.CandidateWindowDays = 60
	}
	if cfg.Matching.TopK == 0 {
		cfg.Matching.TopK = 50
	}
	if cfg.Delivery.DailyJobCap == 0 {
		cfg.Delivery.DailyJobCap = 10
	}
	if cfg.Delivery.MaxAlertsPerBatch == 0 {
		cfg.Delivery.MaxAlertsPerBatch = 50
	}
	if cfg.Delivery.Concurrency == 0 {
		cfg.Delivery.Concurrency = 10
	}
	if cfg.Window.DurationHours == 0 {
		cfg.Window.DurationHours = 24
	}
	if cfg.Window.ReminderIntervalMinutes == 0 {
		cfg.Window.ReminderIntervalMinutes = 5
	}
	if cfg.Enrich.BatchSize == 0 {
		cfg.Enrich.BatchSize = 50
	}
	if cfg.Enrich.Concurrency == 0 {
		cfg.Enrich.Concurrency = 2
	}
	if cfg.Enrich.MaxAttempts == 0 {
		cfg.Enrich.MaxAttempts = 3
	}
	if cfg.Enrich.RawLookbackDays == 0 {
		cfg.Enrich.RawLookbackDays = 14
	}
	if cfg.Scheduler.EnrichIntervalHours == 0 {
		cfg.Scheduler.EnrichIntervalHours = 2
	}
	if cfg.Scheduler.BackfillIntervalMinutes == 0 {
		cfg.Scheduler.BackfillIntervalMinutes = 15
	}
	if cfg.Scheduler.DedupIntervalHours == 0 {
		cfg.Scheduler.DedupIntervalHours = 5
	}
	if cfg.Scheduler.StaleEmbeddingDays == 0 {
		cfg.Scheduler.StaleEmbeddingDays = 30
	}
	if cfg.Scheduler.PurgeUndeliveredDays == 0 {
		cfg.Scheduler.PurgeUndeliveredDays = 5
	}
	if cfg.Scheduler.WindowRetentionDays == 0 {
		cfg.Scheduler.WindowRetentionDays = 7
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		// Env-only deployment: start from defaults
		cfg = &Config{}
		applyDefaults(cfg)
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("WHATSAPP_ACCESS_TOKEN"); v != "" {
		cfg.WhatsApp.AccessToken = v
	}
	if v := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); v != "" {
		cfg.WhatsApp.PhoneNumberID = v
	}
	if v := os.Getenv("WHATSAPP_VERIFY_TOKEN"); v != "" {
		cfg.WhatsApp.VerifyToken = v
	}
	if v := os.Getenv("WHATSAPP_APP_SECRET"); v != "" {
		cfg.WhatsApp.AppSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}
	if v := os.Getenv("MIN_MATCH_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Matching.MinRuleScore = n
		}
	}
	if v := os.Getenv("DAILY_JOB_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Delivery.DailyJobCap = n
		}
	}
	if v := os.Getenv("WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Window.DurationHours = n
		}
	}

	return cfg, nil
}
