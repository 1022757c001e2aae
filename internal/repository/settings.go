package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/keenchase/edit-business/internal/model"
)

// ErrSettingsNotFound is returned when a user has no persisted settings.
var ErrSettingsNotFound = errors.New("user settings not found")

const settingsColumns = `user_id, collection_enabled, collection_daily_limit, collection_batch_limit, created_at, updated_at`

// EnsureSettings creates the user's settings row from defaults if it does not
// exist and returns the persisted row. Concurrent callers all observe the
// single row that won.
func (r *Repository) EnsureSettings(ctx context.Context, userID string, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	insert := `
		INSERT INTO user_settings (user_id, collection_enabled, collection_daily_limit, collection_batch_limit, created_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, userID, d.DailyLimit, d.BatchLimit, now); err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create user settings: %w", err)
	}

	// Separate statement so the row committed by a concurrent winner is visible.
	return r.GetSettings(ctx, userID)
}

// GetSettings returns the persisted settings row.
func (r *Repository) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM user_settings WHERE user_id = $1`
	return scanSettings(r.db.QueryRow(ctx, query, userID))
}

// SetCollectionEnabled writes only collection_enabled, creating the row from
// defaults first when absent.
func (r *Repository) SetCollectionEnabled(ctx context.Context, userID string, enabled bool, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	query := `
		INSERT INTO user_settings (user_id, collection_enabled, collection_daily_limit, collection_batch_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			collection_enabled = EXCLUDED.collection_enabled,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + settingsColumns

	s, err := scanSettings(r.db.QueryRow(ctx, query, userID, enabled, d.DailyLimit, d.BatchLimit, now))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set collection enabled: %w", err)
	}
	return s, nil
}

// UpdateSettingsLimits applies a partial limit update. Nil limits are left
// unchanged.
func (r *Repository) UpdateSettingsLimits(ctx context.Context, userID string, daily, batch *int, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	query := `
		INSERT INTO user_settings (user_id, collection_enabled, collection_daily_limit, collection_batch_limit, created_at, updated_at)
		VALUES ($1, TRUE, COALESCE($2::int, $4::int), COALESCE($3::int, $5::int), $6, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			collection_daily_limit = COALESCE($2::int, user_settings.collection_daily_limit),
			collection_batch_limit = COALESCE($3::int, user_settings.collection_batch_limit),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + settingsColumns

	s, err := scanSettings(r.db.QueryRow(ctx, query, userID, daily, batch, d.DailyLimit, d.BatchLimit, now))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update settings limits: %w", err)
	}
	return s, nil
}

func scanSettings(row pgx.Row) (*model.UserSettings, error) {
	var s model.UserSettings
	err := row.Scan(
		&s.UserID,
		&s.CollectionEnabled,
		&s.DailyLimit,
		&s.BatchLimit,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	s.Persisted = true
	return &s, nil
}
