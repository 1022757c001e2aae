package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/metrics"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
)

const (
	defaultKeyName    = "extension"
	maxExpiryDays     = 3650
	defaultLastUsedTO = 5 * time.Second
)

// CredentialOptions configures a CredentialStore.
type CredentialOptions struct {
	// AutoCreate lets GetOrCreate issue a key when the user has none.
	AutoCreate bool
	// VerifyCacheTTL bounds how long a verified secret skips argon2.
	// Zero disables the verification cache.
	VerifyCacheTTL  time.Duration
	LastUsedTimeout time.Duration
	Now             func() time.Time
}

// CredentialStore issues, validates and revokes API keys.
type CredentialStore struct {
	keys     KeyRepository
	cache    VerificationCache
	hasher   *auth.Hasher
	opts     CredentialOptions
	metrics  metrics.Recorder
	logger   *slog.Logger
	inflight sync.WaitGroup
}

// NewCredentialStore creates a CredentialStore. cache may be nil.
func NewCredentialStore(keys KeyRepository, cache VerificationCache, hasher *auth.Hasher, opts CredentialOptions, recorder metrics.Recorder, logger *slog.Logger) *CredentialStore {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LastUsedTimeout <= 0 {
		opts.LastUsedTimeout = defaultLastUsedTO
	}
	return &CredentialStore{
		keys:    keys,
		cache:   cache,
		hasher:  hasher,
		opts:    opts,
		metrics: recorder,
		logger:  logger,
	}
}

// GetOrCreate returns the user's active key. Without auto-create a user with
// no active key gets ErrNotFound. With auto-create a new never-expiring key
// is issued and its plaintext returned once; a caller that loses a creation
// race receives the winner's metadata without a secret.
func (s *CredentialStore) GetOrCreate(ctx context.Context, userID string) (*model.IssuedAPIKey, error) {
	key, err := s.keys.GetActiveAPIKeyByUserID(ctx, userID)
	if err == nil {
		return &model.IssuedAPIKey{APIKeyResponse: key.ToResponse()}, nil
	}
	if !errors.Is(err, repository.ErrAPIKeyNotFound) {
		return nil, fmt.Errorf("failed to get active key: %w", err)
	}
	if !s.opts.AutoCreate {
		return nil, fmt.Errorf("%w: no active API key", ErrNotFound)
	}

	gen, err := auth.GenerateAPIKey(s.hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	candidate := s.newKey(userID, gen, nil)

	existing, err := s.keys.CreateAPIKeyIfAbsent(ctx, candidate)
	switch {
	case errors.Is(err, repository.ErrActiveKeyExists) && existing != nil:
		return &model.IssuedAPIKey{APIKeyResponse: existing.ToResponse()}, nil
	case errors.Is(err, repository.ErrUserNotFound):
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to create key: %w", err)
	}

	s.metrics.IncKeyIssued("self_service")
	s.logger.Info("api key issued",
		"user_id", userID,
		"key_id", candidate.ID,
		"key_prefix", candidate.KeyPrefix,
	)
	return &model.IssuedAPIKey{APIKeyResponse: candidate.ToResponse(), Key: gen.Plaintext}, nil
}

// CreateForUser rotates the target user's key: any active key is
// deactivated and a new one inserted in the same transaction.
// expiresInDays nil or <= 0 issues a key that never expires.
func (s *CredentialStore) CreateForUser(ctx context.Context, adminID, targetUserID string, expiresInDays *int) (*model.IssuedAPIKey, error) {
	expiresAt, err := s.expiryFromDays(expiresInDays, true)
	if err != nil {
		return nil, err
	}

	gen, err := auth.GenerateAPIKey(s.hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	key := s.newKey(targetUserID, gen, expiresAt)

	deactivated, err := s.keys.RotateAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to rotate key: %w", err)
	}

	s.metrics.IncKeyIssued("admin_rotate")
	if deactivated != "" {
		s.metrics.IncKeyDeactivated()
	}
	s.logger.Info("api key rotated",
		"admin_id", adminID,
		"user_id", targetUserID,
		"key_id", key.ID,
		"deactivated_key_id", deactivated,
	)
	return &model.IssuedAPIKey{
		APIKeyResponse: key.ToResponse(),
		Key:            gen.Plaintext,
		DeactivatedKey: deactivated,
	}, nil
}

// UpdateExpiry sets or clears the expiry of the target's active key.
// Negative days are rejected; nil or 0 clears the expiry.
func (s *CredentialStore) UpdateExpiry(ctx context.Context, adminID, targetUserID, keyID string, expiresInDays *int) (*model.APIKeyResponse, error) {
	expiresAt, err := s.expiryFromDays(expiresInDays, false)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.UpdateAPIKeyExpiry(ctx, targetUserID, keyID, expiresAt)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, fmt.Errorf("%w: api key", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update expiry: %w", err)
	}

	s.logger.Info("api key expiry updated",
		"admin_id", adminID,
		"user_id", targetUserID,
		"key_id", keyID,
		"expires_at", expiresAt,
	)
	resp := key.ToResponse()
	return &resp, nil
}

// List returns masked metadata for all of a user's keys, newest first.
func (s *CredentialStore) List(ctx context.Context, userID string) ([]model.APIKeyResponse, error) {
	keys, err := s.keys.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	out := make([]model.APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.ToResponse())
	}
	return out, nil
}

// Stats counts the user's keys and reports the most recent use of any of them.
func (s *CredentialStore) Stats(ctx context.Context, userID string) (*model.APIKeyStats, error) {
	keys, err := s.keys.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	now := s.opts.Now()
	stats := &model.APIKeyStats{TotalCount: len(keys)}
	for _, k := range keys {
		if k.UsableAt(now) {
			stats.ActiveCount++
		}
		if k.LastUsedAt != nil && (stats.LastUsed == nil || k.LastUsedAt.After(*stats.LastUsed)) {
			at := *k.LastUsedAt
			stats.LastUsed = &at
		}
	}
	return stats, nil
}

// Deactivate revokes one of the user's keys.
func (s *CredentialStore) Deactivate(ctx context.Context, userID, keyID string) error {
	if err := s.keys.DeactivateAPIKey(ctx, userID, keyID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return fmt.Errorf("%w: api key", ErrNotFound)
		}
		return fmt.Errorf("failed to deactivate key: %w", err)
	}
	s.metrics.IncKeyDeactivated()
	s.logger.Info("api key deactivated", "user_id", userID, "key_id", keyID)
	return nil
}

// Validate resolves a plaintext secret to its key. The key must be active
// and unexpired at the time of the call. Any failure to authenticate is
// reported as ErrInvalidCredential; other errors are infrastructure faults.
func (s *CredentialStore) Validate(ctx context.Context, secret string) (*model.APIKey, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveKeyValidation(time.Since(start)) }()

	parsed, err := auth.ParseAPIKey(secret)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	secretHash := auth.QuickHash(secret)

	if key, ok, err := s.validateCached(ctx, secretHash, parsed.Prefix); ok || err != nil {
		return key, err
	}
	s.metrics.IncKeyVerifyCache(false)

	candidates, err := s.keys.GetActiveAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load key candidates: %w", err)
	}
	if len(candidates) == 0 {
		s.hasher.DummyVerify(secret)
		return nil, ErrInvalidCredential
	}

	var match *model.APIKey
	for _, c := range candidates {
		ok, err := s.hasher.Verify(secret, c.KeyHash)
		if err != nil {
			s.logger.Warn("stored key hash unreadable", "key_id", c.ID, "error", err)
			continue
		}
		if ok {
			match = c
			break
		}
	}
	if match == nil {
		return nil, ErrInvalidCredential
	}

	now := s.opts.Now()
	if !match.UsableAt(now) {
		return nil, ErrInvalidCredential
	}

	if s.cache != nil && s.opts.VerifyCacheTTL > 0 {
		if err := s.cache.SetVerifiedKeyID(ctx, secretHash, match.ID, s.opts.VerifyCacheTTL); err != nil {
			s.logger.Debug("verification cache write failed", "error", err)
		}
	}
	s.touch(ctx, match.ID, now)
	return match, nil
}

// validateCached reports ok=true when the verification cache decided the
// outcome. A cache miss or cache fault returns ok=false with no error.
func (s *CredentialStore) validateCached(ctx context.Context, secretHash, prefix string) (*model.APIKey, bool, error) {
	if s.cache == nil || s.opts.VerifyCacheTTL <= 0 {
		return nil, false, nil
	}
	keyID, hit, err := s.cache.GetVerifiedKeyID(ctx, secretHash)
	if err != nil {
		s.logger.Debug("verification cache read failed", "error", err)
		return nil, false, nil
	}
	if !hit {
		return nil, false, nil
	}

	key, err := s.keys.GetAPIKeyByID(ctx, keyID)
	if errors.Is(err, repository.ErrAPIKeyNotFound) {
		s.forget(ctx, secretHash)
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("failed to load key: %w", err)
	}
	if key.KeyPrefix != prefix {
		s.forget(ctx, secretHash)
		return nil, false, nil
	}

	s.metrics.IncKeyVerifyCache(true)
	now := s.opts.Now()
	if !key.UsableAt(now) {
		s.forget(ctx, secretHash)
		return nil, true, ErrInvalidCredential
	}
	s.touch(ctx, key.ID, now)
	return key, true, nil
}

func (s *CredentialStore) forget(ctx context.Context, secretHash string) {
	if err := s.cache.DeleteVerifiedKeyID(ctx, secretHash); err != nil {
		s.logger.Debug("verification cache delete failed", "error", err)
	}
}

// touch records last use without holding up the request.
func (s *CredentialStore) touch(ctx context.Context, keyID string, at time.Time) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.LastUsedTimeout)
		defer cancel()
		if err := s.keys.UpdateAPIKeyLastUsed(bg, keyID, at); err != nil {
			s.logger.Warn("failed to update last_used_at", "key_id", keyID, "error", err)
		}
	}()
}

// Wait blocks until pending last-used updates have finished.
func (s *CredentialStore) Wait() {
	s.inflight.Wait()
}

func (s *CredentialStore) newKey(userID string, gen *auth.GeneratedKey, expiresAt *time.Time) *model.APIKey {
	return &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Name:      defaultKeyName,
		KeyPrefix: gen.Prefix,
		KeyHash:   gen.Hash,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: s.opts.Now().UTC(),
	}
}

// expiryFromDays converts a day count to an absolute expiry. When
// lenient, negative values mean "never" instead of an error.
func (s *CredentialStore) expiryFromDays(days *int, lenient bool) (*time.Time, error) {
	if days == nil || *days == 0 {
		return nil, nil
	}
	if *days < 0 {
		if lenient {
			return nil, nil
		}
		return nil, invalidArgument("expiresIn must not be negative")
	}
	if *days > maxExpiryDays {
		return nil, invalidArgument("expiresIn must be at most %d days", maxExpiryDays)
	}
	t := s.opts.Now().UTC().Add(time.Duration(*days) * 24 * time.Hour)
	return &t, nil
}
