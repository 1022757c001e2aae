package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/keenchase/edit-business/internal/model"
)

var (
	// ErrAPIKeyNotFound is returned when no key matches the lookup.
	ErrAPIKeyNotFound = errors.New("API key not found")
	// ErrActiveKeyExists is returned by CreateAPIKeyIfAbsent when the user
	// already has an active key.
	ErrActiveKeyExists = errors.New("active API key already exists")
)

const apiKeyColumns = `id, user_id, name, key_prefix, key_hash, is_active, last_used_at, expires_at, created_at`

// RotateAPIKey deactivates the user's active key, if any, and inserts key as
// the new active key in one transaction. It returns the deactivated key ID.
func (r *Repository) RotateAPIKey(ctx context.Context, key *model.APIKey) (string, error) {
	var deactivated string
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := lockActiveKey(ctx, tx, key.UserID)
		if err != nil {
			return err
		}
		if current != nil {
			if _, err := tx.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, current.ID); err != nil {
				return fmt.Errorf("failed to deactivate API key: %w", err)
			}
			deactivated = current.ID
		}
		return insertAPIKey(ctx, tx, key)
	})
	if err != nil {
		return "", err
	}
	return deactivated, nil
}

// CreateAPIKeyIfAbsent inserts key only if the user has no active key.
// Otherwise it returns the existing active key and ErrActiveKeyExists.
func (r *Repository) CreateAPIKeyIfAbsent(ctx context.Context, key *model.APIKey) (*model.APIKey, error) {
	var existing *model.APIKey
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := lockActiveKey(ctx, tx, key.UserID)
		if err != nil {
			return err
		}
		if current != nil {
			existing = current
			return ErrActiveKeyExists
		}
		return insertAPIKey(ctx, tx, key)
	})
	if errors.Is(err, ErrActiveKeyExists) {
		return existing, err
	}
	return nil, err
}

// lockActiveKey takes the owning user's row lock, serializing activation for
// that user, and returns the current active key if one exists.
func lockActiveKey(ctx context.Context, tx pgx.Tx, userID string) (*model.APIKey, error) {
	var locked string
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 AND is_active`
	current, err := scanAPIKey(tx.QueryRow(ctx, query, userID))
	if errors.Is(err, ErrAPIKeyNotFound) {
		return nil, nil
	}
	return current, err
}

func insertAPIKey(ctx context.Context, tx pgx.Tx, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, name, key_prefix, key_hash, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
	`
	_, err := tx.Exec(ctx, query,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyPrefix,
		key.KeyHash,
		key.ExpiresAt,
		key.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveKeyExists
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}
	key.IsActive = true
	return nil
}

// GetAPIKeyByID retrieves an API key by its ID.
func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.db.QueryRow(ctx, query, id))
}

// GetActiveAPIKeyByUserID retrieves the user's active key.
func (r *Repository) GetActiveAPIKeyByUserID(ctx context.Context, userID string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 AND is_active`
	return scanAPIKey(r.db.QueryRow(ctx, query, userID))
}

// GetActiveAPIKeysByPrefix returns active candidates for verification.
func (r *Repository) GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1 AND is_active`
	return r.queryAPIKeys(ctx, query, prefix)
}

// ListAPIKeysByUserID returns all keys for a user, newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.queryAPIKeys(ctx, query, userID)
}

// UpdateAPIKeyExpiry sets or clears expires_at on an active key owned by userID.
func (r *Repository) UpdateAPIKeyExpiry(ctx context.Context, userID, keyID string, expiresAt *time.Time) (*model.APIKey, error) {
	query := `
		UPDATE api_keys SET expires_at = $3
		WHERE id = $1 AND user_id = $2 AND is_active
		RETURNING ` + apiKeyColumns

	return scanAPIKey(r.db.QueryRow(ctx, query, keyID, userID, expiresAt))
}

// DeactivateAPIKey revokes an active key owned by userID.
func (r *Repository) DeactivateAPIKey(ctx context.Context, userID, keyID string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`,
		keyID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate API key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed records a successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}

func (r *Repository) queryAPIKeys(ctx context.Context, query string, args ...any) ([]*model.APIKey, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}
	return keys, nil
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.KeyPrefix,
		&key.KeyHash,
		&key.IsActive,
		&key.LastUsedAt,
		&key.ExpiresAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}
	return &key, nil
}
