// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor
// principles; an optional .env file is read first for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Session verifier names.
const (
	SessionVerifierJWT        = "jwt"
	SessionVerifierAuthCenter = "authcenter"
)

// Quota backend names.
const (
	QuotaBackendRedis    = "redis"
	QuotaBackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL       string `env:"REDIS_URL,required,notEmpty"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Identity: external ids promoted to administrator on sign-in.
	AdminExternalIDs []string `env:"ADMIN_EXTERNAL_IDS" envSeparator:","`

	// Dashboard sessions
	SessionVerifier   string        `env:"SESSION_VERIFIER" envDefault:"jwt"`
	SessionJWTSecret  string        `env:"SESSION_JWT_SECRET"`
	SessionCacheTTL   time.Duration `env:"SESSION_CACHE_TTL" envDefault:"5m"`
	AuthCenterURL     string        `env:"AUTH_CENTER_URL"`
	AuthCenterTimeout time.Duration `env:"AUTH_CENTER_TIMEOUT" envDefault:"10s"`
	AuthCenterRetries int           `env:"AUTH_CENTER_RETRIES" envDefault:"1"`

	// API keys
	AuthMinDuration  time.Duration `env:"AUTH_MIN_DURATION" envDefault:"200ms"`
	APIKeyAutoCreate bool          `env:"APIKEY_SELF_SERVICE_AUTOCREATE" envDefault:"false"`
	APIKeyCacheTTL   time.Duration `env:"APIKEY_CACHE_TTL" envDefault:"5m"`
	Argon2Time       uint32        `env:"ARGON2_TIME" envDefault:"3"`
	Argon2MemoryKB   uint32        `env:"ARGON2_MEMORY_KB" envDefault:"65536"`
	Argon2Threads    uint8         `env:"ARGON2_THREADS" envDefault:"4"`
	LastUsedTimeout  time.Duration `env:"APIKEY_LAST_USED_TIMEOUT" envDefault:"5s"`

	// Quotas
	QuotaBackend      string        `env:"QUOTA_BACKEND" envDefault:"redis"`
	QuotaRetention    time.Duration `env:"QUOTA_RETENTION" envDefault:"48h"`
	DefaultDailyLimit int           `env:"DEFAULT_DAILY_LIMIT" envDefault:"500"`
	DefaultBatchLimit int           `env:"DEFAULT_BATCH_LIMIT" envDefault:"50"`

	// Ingestion: where admitted writes are forwarded. Empty accepts with 202.
	IngestUpstreamURL string `env:"INGEST_UPSTREAM_URL"`

	// Rate limiting (per client IP, ingestion routes)
	RateLimitIngestEnabled bool `env:"RATE_LIMIT_INGEST_ENABLED" envDefault:"true"`
	RateLimitIngestRPS     int  `env:"RATE_LIMIT_INGEST_RPS" envDefault:"20"`
	RateLimitIngestBurst   int  `env:"RATE_LIMIT_INGEST_BURST" envDefault:"40"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Comma-separated list of allowed origins; "chrome-extension://*" allows
	// any extension origin.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 4MB; batches can be large)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"4194304"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.SessionVerifier {
	case SessionVerifierJWT:
		if c.SessionJWTSecret == "" {
			errs = append(errs, errors.New("SESSION_JWT_SECRET is required when SESSION_VERIFIER=jwt"))
		}
	case SessionVerifierAuthCenter:
		if c.AuthCenterURL == "" {
			errs = append(errs, errors.New("AUTH_CENTER_URL is required when SESSION_VERIFIER=authcenter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_VERIFIER %q", c.SessionVerifier))
	}

	if c.QuotaBackend != QuotaBackendRedis && c.QuotaBackend != QuotaBackendPostgres {
		errs = append(errs, fmt.Errorf("unknown QUOTA_BACKEND %q", c.QuotaBackend))
	}
	if c.DefaultDailyLimit < 0 || c.DefaultBatchLimit < 0 {
		errs = append(errs, errors.New("DEFAULT_DAILY_LIMIT and DEFAULT_BATCH_LIMIT must be >= 0"))
	}
	if c.QuotaRetention < 24*time.Hour {
		errs = append(errs, errors.New("QUOTA_RETENTION must be at least 24h"))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for i, id := range cfg.AdminExternalIDs {
		cfg.AdminExternalIDs[i] = strings.TrimSpace(id)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
