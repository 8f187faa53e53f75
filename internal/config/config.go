package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server config
	Server ServerConfig

	// database config
	Database DatabaseConfig

	// upstream provider endpoints
	Sources SourcesConfig

	// resilient client policy
	Client ClientConfig

	// cache TTLs
	Cache CacheConfig

	// analysis run limits
	Analysis AnalysisConfig

	// API auth
	Security SecurityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string
	Environment  string // development, staging, production
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL
// disables the analysis history store.
type DatabaseConfig struct {
	URL string
}

// SourcesConfig holds per-provider endpoints.
type SourcesConfig struct {
	SafetyBaseURL     string
	TrialsBaseURL     string
	LiteratureBaseURL string
	NewsFeedURL       string // %s verb for the query; empty disables news
	MarketBaseURL     string // empty means simulated market data
	MarketAPIToken    string
}

// ClientConfig holds the resilient client policy shared by all sources.
type ClientConfig struct {
	MaxRetries     int
	BackoffBase    time.Duration
	RequestTimeout time.Duration
	// MinInterval spaces consecutive calls per source client. The trials
	// registry enforces roughly 1 req/s, hence the separate knob.
	MinInterval       time.Duration
	TrialsMinInterval time.Duration
}

// CacheConfig holds TTLs for the per-source and record-level caches.
type CacheConfig struct {
	SourceTTL       time.Duration
	RecordTTL       time.Duration
	FailedRecordTTL time.Duration
}

// AnalysisConfig holds orchestration limits.
type AnalysisConfig struct {
	// Timeout is the overall deadline for one run when the caller
	// supplies none.
	Timeout time.Duration
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	// APIKeyHash is a bcrypt hash the Authorization bearer token must
	// match. Empty disables authentication (development).
	APIKeyHash string
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found); production
	// sets real environment variables instead.
	_ = godotenv.Load()

	cfg := &Config{}

	// A typo in a duration should fail startup, same as a malformed
	// integer, rather than silently running with the default.
	var durationErrs []error
	duration := func(key string, defaultValue time.Duration) time.Duration {
		value := os.Getenv(key)
		if value == "" {
			return defaultValue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			durationErrs = append(durationErrs, fmt.Errorf("invalid %s: %w", key, err))
			return defaultValue
		}
		return d
	}

	cfg.Server = ServerConfig{
		Address:      getEnvOrDefault("SERVER_ADDRESS", ":8080"),
		Environment:  getEnvOrDefault("APP_ENV", "development"),
		ReadTimeout:  duration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: duration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:  duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
	}

	cfg.Database = DatabaseConfig{
		URL: os.Getenv("DATABASE_URL"),
	}

	cfg.Sources = SourcesConfig{
		SafetyBaseURL:     getEnvOrDefault("SAFETY_BASE_URL", "https://api.fda.gov"),
		TrialsBaseURL:     getEnvOrDefault("TRIALS_BASE_URL", "https://clinicaltrials.gov"),
		LiteratureBaseURL: getEnvOrDefault("LITERATURE_BASE_URL", "https://eutils.ncbi.nlm.nih.gov"),
		NewsFeedURL:       getEnvOrDefault("NEWS_FEED_URL", "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"),
		MarketBaseURL:     os.Getenv("MARKET_BASE_URL"),
		MarketAPIToken:    os.Getenv("MARKET_API_TOKEN"),
	}

	maxRetries, err := strconv.Atoi(getEnvOrDefault("CLIENT_MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLIENT_MAX_RETRIES: %w", err)
	}
	cfg.Client = ClientConfig{
		MaxRetries:        maxRetries,
		BackoffBase:       duration("CLIENT_BACKOFF_BASE", time.Second),
		RequestTimeout:    duration("CLIENT_REQUEST_TIMEOUT", 30*time.Second),
		MinInterval:       duration("CLIENT_MIN_INTERVAL", 0),
		TrialsMinInterval: duration("TRIALS_MIN_INTERVAL", time.Second),
	}

	cfg.Cache = CacheConfig{
		SourceTTL:       duration("SOURCE_CACHE_TTL", 6*time.Hour),
		RecordTTL:       duration("RECORD_CACHE_TTL", time.Hour),
		FailedRecordTTL: duration("FAILED_RECORD_CACHE_TTL", 30*time.Second),
	}

	cfg.Analysis = AnalysisConfig{
		Timeout: duration("ANALYSIS_TIMEOUT", 2*time.Minute),
	}

	cfg.Security = SecurityConfig{
		APIKeyHash: os.Getenv("API_KEY_HASH"),
	}

	if len(durationErrs) > 0 {
		return nil, errors.Join(durationErrs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks required configuration up front - better to fail at
// startup than when a missing value is first used.
func (c *Config) validate() error {
	var errs []error

	if c.Sources.SafetyBaseURL == "" {
		errs = append(errs, errors.New("SAFETY_BASE_URL is required"))
	}
	if c.Sources.TrialsBaseURL == "" {
		errs = append(errs, errors.New("TRIALS_BASE_URL is required"))
	}
	if c.Sources.LiteratureBaseURL == "" {
		errs = append(errs, errors.New("LITERATURE_BASE_URL is required"))
	}

	if c.Client.MaxRetries < 0 || c.Client.MaxRetries > 10 {
		errs = append(errs, errors.New("CLIENT_MAX_RETRIES must be between 0 and 10"))
	}
	if c.Cache.RecordTTL <= 0 {
		errs = append(errs, errors.New("RECORD_CACHE_TTL must be positive"))
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.Server.Environment] {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of: development, staging, production (got: %s)", c.Server.Environment))
	}

	if c.IsProduction() && c.Security.APIKeyHash == "" {
		errs = append(errs, errors.New("API_KEY_HASH is required in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%w", errors.Join(errs...))
	}
	return nil
}

// getEnvOrDefault returns the .env value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// MustLoad is like Load but panics on error. Used in main() where failing
// fast is the right call.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
