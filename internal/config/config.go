package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"backlinks/internal/provider"
	"backlinks/internal/validation"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env string // "development", "production", etc.

	// Server
	ServerAddr string
	ViewsDir   string

	// Database
	DatabaseURL string

	// Redis backs the provider response cache and the API rate limiter. Optional.
	RedisURL string

	// CORS
	CORSOrigins string // Comma-separated allowed origins

	// API rate limit per client per minute; 0 disables the limiter.
	RateLimitMax int

	// Provider
	Provider              string // env: BACKLINK_PROVIDER, default: "dataforseo"
	DataForSEOLogin       string
	DataForSEOPassword    string
	DataForSEOBaseURL     string
	ProviderTimeout       time.Duration
	ProviderMaxRetries    int
	ProviderRetryDelay    time.Duration
	ProviderRatePerSecond float64
	ProviderCacheTTL      time.Duration // 0 disables caching

	// Pipeline
	PageSize        int
	InsertBatchSize int
	ScoreChunkSize  int

	// Worker and scheduler
	WorkerInterval    time.Duration
	WorkerConcurrency int
	RunTimeout        time.Duration
	RunMaxAttempts    int
	RetryDelay        time.Duration
	ScheduleCron      string // empty disables the scheduler

	// Quota
	UsageMonthlyLimit int64

	// Scoring policy overrides
	ScoringPolicyFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env:          getEnv("ENV", "development"),
		ServerAddr:   getEnv("SERVER_ADDR", ":3000"),
		ViewsDir:     getEnv("VIEWS_DIR", "./views"),
		DatabaseURL:  getEnv("DATABASE_URL", "postgres://localhost:5432/backlinks?sslmode=disable"),
		RedisURL:     getEnv("REDIS_URL", ""),
		CORSOrigins:  getEnv("CORS_ORIGINS", ""),
		RateLimitMax: getInt("RATE_LIMIT_MAX", 120),

		Provider:              getEnv("BACKLINK_PROVIDER", provider.NameDataForSEO),
		DataForSEOLogin:       getEnv("DATAFORSEO_LOGIN", ""),
		DataForSEOPassword:    getEnv("DATAFORSEO_PASSWORD", ""),
		DataForSEOBaseURL:     getEnv("DATAFORSEO_BASE_URL", "https://api.dataforseo.com"),
		ProviderTimeout:       getDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderMaxRetries:    getInt("PROVIDER_MAX_RETRIES", 3),
		ProviderRetryDelay:    getDuration("PROVIDER_RETRY_DELAY", 2*time.Second),
		ProviderRatePerSecond: getFloat("PROVIDER_RATE_PER_SECOND", 2),
		ProviderCacheTTL:      getDuration("PROVIDER_CACHE_TTL", 0),

		PageSize:        getInt("PAGE_SIZE", 100),
		InsertBatchSize: getInt("INSERT_BATCH_SIZE", 100),
		ScoreChunkSize:  getInt("SCORE_CHUNK_SIZE", 200),

		WorkerInterval:    getDuration("WORKER_INTERVAL", 10*time.Second),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),
		RunTimeout:        getDuration("RUN_TIMEOUT", 15*time.Minute),
		RunMaxAttempts:    getInt("RUN_MAX_ATTEMPTS", 3),
		RetryDelay:        getDuration("RUN_RETRY_DELAY", 30*time.Second),
		ScheduleCron:      getEnv("SCHEDULE_CRON", "@daily"),

		UsageMonthlyLimit: int64(getInt("USAGE_MONTHLY_LIMIT", 100000)),

		ScoringPolicyFile: getEnv("SCORING_POLICY_FILE", "scoring.yaml"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// ProviderConfig returns the transport settings handed to provider factories.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Login:         c.DataForSEOLogin,
		Password:      c.DataForSEOPassword,
		BaseURL:       c.DataForSEOBaseURL,
		Timeout:       c.ProviderTimeout,
		MaxAttempts:   c.ProviderMaxRetries,
		RetryDelay:    c.ProviderRetryDelay,
		RatePerSecond: c.ProviderRatePerSecond,
	}
}

// Origins returns the configured CORS origins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// MaxInsertBatchSize keeps one backlink insert statement under the Postgres
// bind parameter limit.
const MaxInsertBatchSize = 5000

// Validate reports settings that cannot work. Missing provider credentials
// are not an error here: runs fail with a configuration error instead.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if ok, msg := validation.ValidateURL(c.DataForSEOBaseURL); !ok {
		errs = append(errs, fmt.Errorf("DATAFORSEO_BASE_URL: %s", msg))
	}
	for key, v := range map[string]int{
		"PAGE_SIZE":          c.PageSize,
		"INSERT_BATCH_SIZE":  c.InsertBatchSize,
		"SCORE_CHUNK_SIZE":   c.ScoreChunkSize,
		"WORKER_CONCURRENCY": c.WorkerConcurrency,
		"RUN_MAX_ATTEMPTS":   c.RunMaxAttempts,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	if c.InsertBatchSize > MaxInsertBatchSize {
		errs = append(errs, fmt.Errorf("INSERT_BATCH_SIZE must be at most %d, got %d", MaxInsertBatchSize, c.InsertBatchSize))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("RUN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
