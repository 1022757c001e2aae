package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
)

// SettingsStore manages per-user collection settings.
type SettingsStore struct {
	repo     SettingsRepository
	defaults model.SettingsDefaults
	now      func() time.Time
	logger   *slog.Logger
}

// NewSettingsStore creates a SettingsStore. Zero defaults fall back to
// the package defaults.
func NewSettingsStore(repo SettingsRepository, defaults model.SettingsDefaults, now func() time.Time, logger *slog.Logger) *SettingsStore {
	if defaults.DailyLimit <= 0 {
		defaults.DailyLimit = model.DefaultDailyLimit
	}
	if defaults.BatchLimit <= 0 {
		defaults.BatchLimit = model.DefaultBatchLimit
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{repo: repo, defaults: defaults, now: now, logger: logger}
}

// Defaults returns the limits applied to users without a settings row.
func (s *SettingsStore) Defaults() model.SettingsDefaults {
	return s.defaults
}

// GetOrCreate returns the user's settings, creating the row with defaults
// if it does not exist yet.
func (s *SettingsStore) GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings, err := s.repo.EnsureSettings(ctx, userID, s.defaults, s.now().UTC())
	if err != nil {
		return nil, mapSettingsError(err)
	}
	return settings, nil
}

// Get returns the persisted settings or, if none exist, unpersisted
// defaults. It never writes.
func (s *SettingsStore) Get(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		return model.DefaultUserSettings(userID, s.defaults), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

// ToggleCollection switches the user's collection on or off. Limits are
// left untouched.
func (s *SettingsStore) ToggleCollection(ctx context.Context, userID string, enabled bool) (*model.UserSettings, error) {
	settings, err := s.repo.SetCollectionEnabled(ctx, userID, enabled, s.defaults, s.now().UTC())
	if err != nil {
		return nil, mapSettingsError(err)
	}
	s.logger.Info("collection toggled", "user_id", userID, "enabled", enabled)
	return settings, nil
}

// UpdateLimits changes the daily and/or batch limit of the target user.
func (s *SettingsStore) UpdateLimits(ctx context.Context, adminID, targetUserID string, daily, batch *int) (*model.UserSettings, error) {
	if daily == nil && batch == nil {
		return nil, invalidArgument("at least one of collectionDailyLimit or collectionBatchLimit is required")
	}
	if daily != nil && *daily < 0 {
		return nil, invalidArgument("collectionDailyLimit must not be negative")
	}
	if batch != nil && *batch < 0 {
		return nil, invalidArgument("collectionBatchLimit must not be negative")
	}

	settings, err := s.repo.UpdateSettingsLimits(ctx, targetUserID, daily, batch, s.defaults, s.now().UTC())
	if err != nil {
		return nil, mapSettingsError(err)
	}
	s.logger.Info("collection limits updated",
		"admin_id", adminID,
		"user_id", targetUserID,
		"daily_limit", settings.DailyLimit,
		"batch_limit", settings.BatchLimit,
	)
	return settings, nil
}

// IsEnabled reports whether the user's collection switch is on.
func (s *SettingsStore) IsEnabled(ctx context.Context, userID string) (bool, error) {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return settings.CollectionEnabled, nil
}

func mapSettingsError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("%w: user", ErrNotFound)
	}
	return fmt.Errorf("failed to write settings: %w", err)
}
