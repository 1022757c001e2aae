package service

import (
	"context"
	"time"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/model"
)

// KeyRepository persists API keys.
type KeyRepository interface {
	RotateAPIKey(ctx context.Context, key *model.APIKey) (string, error)
	CreateAPIKeyIfAbsent(ctx context.Context, key *model.APIKey) (*model.APIKey, error)
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	GetActiveAPIKeyByUserID(ctx context.Context, userID string) (*model.APIKey, error)
	GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	UpdateAPIKeyExpiry(ctx context.Context, userID, keyID string, expiresAt *time.Time) (*model.APIKey, error)
	DeactivateAPIKey(ctx context.Context, userID, keyID string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error
}

// UserRepository persists users.
type UserRepository interface {
	UpsertUser(ctx context.Context, id string, profile model.UserProfile, adminExternalIDs []string, now time.Time) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// SettingsRepository persists per-user collection settings.
type SettingsRepository interface {
	EnsureSettings(ctx context.Context, userID string, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error)
	GetSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	SetCollectionEnabled(ctx context.Context, userID string, enabled bool, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error)
	UpdateSettingsLimits(ctx context.Context, userID string, daily, batch *int, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error)
}

// QuotaCounter is a per-user, per-day usage counter. Increment must add n
// only if the result stays within limit, as a single atomic step.
type QuotaCounter interface {
	Increment(ctx context.Context, userID, day string, n, limit int) (int64, bool, error)
	Used(ctx context.Context, userID, day string) (int64, error)
	Refund(ctx context.Context, userID, day string, n int) error
}

// StatsRepository serves admin read models.
type StatsRepository interface {
	ListUserSummaries(ctx context.Context, offset, limit int) ([]model.UserSummary, error)
	GetUserStats(ctx context.Context, userID string) (model.UserStats, error)
	CountUsers(ctx context.Context) (int64, error)
	CountNotes(ctx context.Context) (int64, error)
	CountBloggers(ctx context.Context) (int64, error)
	CountActiveAPIKeys(ctx context.Context) (int64, error)
}

// VerificationCache remembers which key a secret was verified against.
type VerificationCache interface {
	GetVerifiedKeyID(ctx context.Context, secretHash string) (string, bool, error)
	SetVerifiedKeyID(ctx context.Context, secretHash, keyID string, ttl time.Duration) error
	DeleteVerifiedKeyID(ctx context.Context, secretHash string) error
}

// SessionCache remembers verified session identities.
type SessionCache interface {
	GetSession(ctx context.Context, tokenHash string) (*auth.Session, bool, error)
	SetSession(ctx context.Context, tokenHash string, sess *auth.Session, ttl time.Duration) error
}
