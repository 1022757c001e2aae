// Package main is the entrypoint for the edit-business API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/cache"
	"github.com/keenchase/edit-business/internal/config"
	"github.com/keenchase/edit-business/internal/handler"
	"github.com/keenchase/edit-business/internal/idp"
	"github.com/keenchase/edit-business/internal/metrics"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
	"github.com/keenchase/edit-business/internal/server"
	"github.com/keenchase/edit-business/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			repo.Close()
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	recorder := newRecorder(cfg)

	// Initialize services
	hasher := auth.NewHasher(auth.Params{
		Time:    cfg.Argon2Time,
		Memory:  cfg.Argon2MemoryKB,
		Threads: cfg.Argon2Threads,
	})
	creds := service.NewCredentialStore(repo, cacheClient, hasher, service.CredentialOptions{
		AutoCreate:      cfg.APIKeyAutoCreate,
		VerifyCacheTTL:  cfg.APIKeyCacheTTL,
		LastUsedTimeout: cfg.LastUsedTimeout,
	}, recorder, logger)
	settings := service.NewSettingsStore(repo, model.SettingsDefaults{
		DailyLimit: cfg.DefaultDailyLimit,
		BatchLimit: cfg.DefaultBatchLimit,
	}, time.Now, logger)
	quota := service.NewQuotaTracker(settings, newQuotaCounter(cfg, repo, cacheClient), time.Now, recorder, logger)
	admin := service.NewAdminQueryService(repo, repo, creds, settings, quota)
	identifier := service.NewIdentifier(newSessionVerifier(cfg, logger), cacheClient, repo, creds, service.IdentifierOptions{
		AdminExternalIDs: cfg.AdminExternalIDs,
		SessionCacheTTL:  cfg.SessionCacheTTL,
	}, recorder, logger)
	gate := service.NewGate()

	// Initialize handlers
	ingestHandler, err := handler.NewIngestHandler(logger, quota, cfg.IngestUpstreamURL)
	if err != nil {
		logger.Error("invalid ingest upstream", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rt := routes{
		cfg:        cfg,
		logger:     logger,
		identifier: identifier,
		limiter:    cacheClient,
		admitter:   quota,
		index:      handler.New(),
		health: handler.NewHealthHandler(map[string]handler.HealthChecker{
			"postgres": repo,
			"redis":    cacheClient,
		}),
		apiKeys:  handler.NewAPIKeyHandler(logger, creds, gate),
		user:     handler.NewUserHandler(logger, identifier, gate),
		settings: handler.NewSettingsHandler(logger, settings, gate),
		quota:    handler.NewQuotaHandler(logger, quota, gate),
		admin:    handler.NewAdminHandler(logger, admin, creds, settings, gate),
		ingest:   ingestHandler,
	}
	if cfg.MetricsEnabled {
		rt.metrics = handler.NewMetricsHandler(recorder)
	}

	srv := server.New(setupRouter(rt), server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// LIFO: pending last-used writes drain before the stores close.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	srv.OnShutdown("credentials", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			creds.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"session_verifier", cfg.SessionVerifier,
		"quota_backend", cfg.QuotaBackend,
		"ingest_upstream", redactURL(cfg.IngestUpstreamURL),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRecorder(cfg *config.Config) metrics.Recorder {
	if cfg.MetricsEnabled {
		return metrics.NewPrometheus()
	}
	return metrics.NewNoop()
}

func newQuotaCounter(cfg *config.Config, repo *repository.Repository, c *cache.Cache) service.QuotaCounter {
	if cfg.QuotaBackend == config.QuotaBackendPostgres {
		return repo.QuotaCounters()
	}
	return c.QuotaCounters(cfg.QuotaRetention)
}

func newSessionVerifier(cfg *config.Config, logger *slog.Logger) auth.SessionVerifier {
	if cfg.SessionVerifier == config.SessionVerifierAuthCenter {
		return idp.NewClient(idp.Options{
			BaseURL: cfg.AuthCenterURL,
			Timeout: cfg.AuthCenterTimeout,
			Retries: cfg.AuthCenterRetries,
		}, logger)
	}
	return auth.NewJWTVerifier(cfg.SessionJWTSecret)
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
