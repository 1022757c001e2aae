package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/keenchase/edit-business/internal/config"
	"github.com/keenchase/edit-business/internal/handler"
	"github.com/keenchase/edit-business/internal/middleware"
)

// routes bundles everything the router needs.
type routes struct {
	cfg        *config.Config
	logger     *slog.Logger
	identifier middleware.Identifier
	limiter    middleware.IPLimiter
	admitter   middleware.Admitter

	index    *handler.Handler
	health   *handler.HealthHandler
	apiKeys  *handler.APIKeyHandler
	user     *handler.UserHandler
	settings *handler.SettingsHandler
	quota    *handler.QuotaHandler
	admin    *handler.AdminHandler
	ingest   http.Handler
	metrics  http.Handler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt routes) *chi.Mux {
	cfg, logger := rt.cfg, rt.logger
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))

	// Health endpoints (no auth required)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	r.Get("/", rt.index.Index)

	authCfg := middleware.AuthConfig{
		Logger:      logger,
		Identifier:  rt.identifier,
		MinDuration: cfg.AuthMinDuration,
	}
	ingestCfg := middleware.IngestConfig{
		Logger:   logger,
		Admitter: rt.admitter,
		MaxBody:  cfg.MaxRequestBodySize,
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: rt.limiter,
		Enabled: cfg.RateLimitIngestEnabled,
		RPS:     cfg.RateLimitIngestRPS,
		Burst:   cfg.RateLimitIngestBurst,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Dashboard: bearer sessions
		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
			r.Use(middleware.SessionAuth(authCfg))

			r.Route("/api-keys", func(r chi.Router) {
				r.Get("/", rt.apiKeys.List)
				r.Get("/get-or-create", rt.apiKeys.GetOrCreate)
				r.Get("/stats", rt.apiKeys.Stats)
				r.Post("/{keyId}/deactivate", rt.apiKeys.Deactivate)
			})

			r.Route("/user-settings", func(r chi.Router) {
				r.Get("/", rt.settings.GetOrCreate)
				r.Post("/", rt.settings.GetOrCreate)
				r.Post("/toggle-collection", rt.settings.ToggleCollection)
			})

			r.Get("/user/me", rt.user.Me)
			r.Get("/quota", rt.quota.Current)
			r.Get("/stats", rt.admin.Stats)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/check", rt.admin.Check)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin(logger))
					r.Use(middleware.ValidateIDParams(middleware.ParamUserID))

					r.Get("/stats/overview", rt.admin.Overview)
					r.Get("/users", rt.admin.ListUsers)
					r.Route("/users/{userId}", func(r chi.Router) {
						r.Get("/", rt.admin.GetUser)
						r.Put("/settings", rt.admin.UpdateSettings)
						r.Post("/api-keys", rt.admin.IssueAPIKey)
						r.Patch("/api-keys/{keyId}/expiry", rt.admin.UpdateAPIKeyExpiry)
						r.Post("/api-keys/{keyId}/deactivate", rt.admin.DeactivateAPIKey)
					})
				})
			})
		})

		// Extension: API keys, rate limited per IP ahead of argon2
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Use(middleware.APIKeyAuth(authCfg))

			r.Get("/ingest/validate", rt.quota.Validate)

			r.With(middleware.IngestGate(ingestCfg, middleware.CountOne)).Post("/notes", rt.ingest.ServeHTTP)
			r.With(middleware.IngestGate(ingestCfg, middleware.CountItems("notes"))).Post("/notes/batch", rt.ingest.ServeHTTP)
			r.With(middleware.IngestGate(ingestCfg, middleware.CountOne)).Post("/bloggers", rt.ingest.ServeHTTP)
			r.With(middleware.IngestGate(ingestCfg, middleware.CountItems("bloggers"))).Post("/bloggers/batch", rt.ingest.ServeHTTP)
		})
	})

	// 404 and 405 handlers
	r.NotFound(rt.index.NotFound)
	r.MethodNotAllowed(rt.index.MethodNotAllowed)

	return r
}
