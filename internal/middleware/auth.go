package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/model"
)

// DefaultMinAuthDuration is the floor on API-key authentication time.
const DefaultMinAuthDuration = 200 * time.Millisecond

// APIKeyHeader carries the extension's API key.
const APIKeyHeader = "X-API-Key"

// Identifier resolves credentials to an identity.
type Identifier interface {
	FromSession(ctx context.Context, token string) (*model.Identity, error)
	FromAPIKey(ctx context.Context, secret string) (*model.Identity, error)
}

// AuthConfig holds configuration for the auth middlewares.
type AuthConfig struct {
	Logger     *slog.Logger
	Identifier Identifier
	// MinDuration pads API-key authentication so that success and every
	// failure mode take the same time. Zero uses DefaultMinAuthDuration.
	MinDuration time.Duration
}

// SessionAuth authenticates dashboard requests with a bearer session
// token. API keys are not accepted here.
func SessionAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			id, err := cfg.Identifier.FromSession(r.Context(), token)
			if err != nil {
				logAuthFailure(cfg.Logger, r, model.SchemeSession, err)
				httperr.FromError(w, cfg.Logger, err)
				return
			}
			serveIdentified(w, r, next, id)
		})
	}
}

// APIKeyAuth authenticates extension requests with the X-API-Key header.
// Bearer tokens are not accepted here.
func APIKeyAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	minDuration := cfg.MinDuration
	if minDuration <= 0 {
		minDuration = DefaultMinAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id, err := cfg.Identifier.FromAPIKey(r.Context(), strings.TrimSpace(r.Header.Get(APIKeyHeader)))
			padAuth(start, minDuration)
			if err != nil {
				logAuthFailure(cfg.Logger, r, model.SchemeAPIKey, err)
				httperr.FromError(w, cfg.Logger, err)
				return
			}

			cfg.Logger.Debug("authentication successful",
				slog.String("key_id", id.KeyID),
				slog.String("key_prefix", id.KeyPrefix),
				slog.String("user_id", id.UserID),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			serveIdentified(w, r, next, id)
		})
	}
}

func serveIdentified(w http.ResponseWriter, r *http.Request, next http.Handler, id *model.Identity) {
	setLogUserID(r.Context(), id.UserID)
	next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
}

func padAuth(start time.Time, min time.Duration) {
	if elapsed := time.Since(start); elapsed < min {
		time.Sleep(min - elapsed)
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, scheme model.AuthScheme, err error) {
	logger.Warn("authentication failed",
		slog.String("scheme", string(scheme)),
		slog.String("reason", err.Error()),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// extractBearer returns the token of an "Authorization: Bearer" header.
func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
