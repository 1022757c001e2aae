package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/metrics"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
)

// IdentifierOptions configures an Identifier.
type IdentifierOptions struct {
	AdminExternalIDs []string
	SessionCacheTTL  time.Duration
	Now              func() time.Time
}

// Identifier resolves request credentials to an Identity. The role is
// always read from the users table.
type Identifier struct {
	verifier auth.SessionVerifier
	sessions SessionCache
	users    UserRepository
	creds    *CredentialStore
	opts     IdentifierOptions
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewIdentifier creates an Identifier. sessions may be nil.
func NewIdentifier(verifier auth.SessionVerifier, sessions SessionCache, users UserRepository, creds *CredentialStore, opts IdentifierOptions, recorder metrics.Recorder, logger *slog.Logger) *Identifier {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Identifier{
		verifier: verifier,
		sessions: sessions,
		users:    users,
		creds:    creds,
		opts:     opts,
		metrics:  recorder,
		logger:   logger,
	}
}

// FromSession identifies the holder of a dashboard bearer token. Users are
// imported on first sight.
func (i *Identifier) FromSession(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		i.metrics.IncAuthAttempt(string(model.SchemeSession), "missing")
		return nil, ErrUnauthenticated
	}
	tokenHash := auth.QuickHash(token)

	if sess, ok := i.cachedSession(ctx, tokenHash); ok {
		user, err := i.users.GetUserByExternalID(ctx, sess.ExternalID)
		if err == nil {
			i.metrics.IncAuthAttempt(string(model.SchemeSession), "success")
			return sessionIdentity(user), nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		return i.importUser(ctx, sess)
	}

	sess, err := i.verifier.VerifySession(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			i.metrics.IncAuthAttempt(string(model.SchemeSession), "invalid")
			return nil, ErrUnauthenticated
		}
		i.metrics.IncAuthAttempt(string(model.SchemeSession), "error")
		return nil, fmt.Errorf("%w: session verification: %v", ErrUnavailable, err)
	}

	if ttl := i.sessionTTL(sess); ttl > 0 {
		if err := i.sessions.SetSession(ctx, tokenHash, sess, ttl); err != nil {
			i.logger.Debug("session cache write failed", "error", err)
		}
	}
	return i.importUser(ctx, sess)
}

// sessionTTL bounds the cache lifetime by the token's own expiry.
func (i *Identifier) sessionTTL(sess *auth.Session) time.Duration {
	if i.sessions == nil || i.opts.SessionCacheTTL <= 0 {
		return 0
	}
	ttl := i.opts.SessionCacheTTL
	if !sess.ExpiresAt.IsZero() {
		ttl = min(ttl, sess.ExpiresAt.Sub(i.opts.Now()))
	}
	return ttl
}

func (i *Identifier) cachedSession(ctx context.Context, tokenHash string) (*auth.Session, bool) {
	if i.sessions == nil || i.opts.SessionCacheTTL <= 0 {
		return nil, false
	}
	sess, ok, err := i.sessions.GetSession(ctx, tokenHash)
	if err != nil {
		i.logger.Debug("session cache read failed", "error", err)
		return nil, false
	}
	if !ok || sess.Expired(i.opts.Now()) {
		return nil, false
	}
	return sess, true
}

func (i *Identifier) importUser(ctx context.Context, sess *auth.Session) (*model.Identity, error) {
	profile := model.UserProfile{
		ExternalID: sess.ExternalID,
		Nickname:   sess.Nickname,
		AvatarURL:  sess.AvatarURL,
	}
	user, err := i.users.UpsertUser(ctx, ulid.Make().String(), profile, i.opts.AdminExternalIDs, i.opts.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to import user: %w", err)
	}
	i.metrics.IncAuthAttempt(string(model.SchemeSession), "success")
	return sessionIdentity(user), nil
}

// Profile returns the local account behind an identity.
func (i *Identifier) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := i.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FromAPIKey identifies the owner of an API key secret.
func (i *Identifier) FromAPIKey(ctx context.Context, secret string) (*model.Identity, error) {
	if secret == "" {
		i.metrics.IncAuthAttempt(string(model.SchemeAPIKey), "missing")
		return nil, ErrUnauthenticated
	}
	key, err := i.creds.Validate(ctx, secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			i.metrics.IncAuthAttempt(string(model.SchemeAPIKey), "invalid")
		} else {
			i.metrics.IncAuthAttempt(string(model.SchemeAPIKey), "error")
		}
		return nil, err
	}

	user, err := i.users.GetUserByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			i.metrics.IncAuthAttempt(string(model.SchemeAPIKey), "invalid")
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("failed to load key owner: %w", err)
	}

	i.metrics.IncAuthAttempt(string(model.SchemeAPIKey), "success")
	return &model.Identity{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Role:       user.Role,
		Scheme:     model.SchemeAPIKey,
		KeyID:      key.ID,
		KeyPrefix:  key.KeyPrefix,
	}, nil
}

func sessionIdentity(u *model.User) *model.Identity {
	return &model.Identity{
		UserID:     u.ID,
		ExternalID: u.ExternalID,
		Role:       u.Role,
		Scheme:     model.SchemeSession,
	}
}
