package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/keenchase/edit-business/internal/model"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, external_id, role, nickname, avatar_url, created_at`

// UpsertUser imports or refreshes the local user for an identity-provider
// subject. Users whose external id is listed in adminExternalIDs are promoted
// to administrator; existing administrators are never demoted.
// id and now are only used when the row is inserted.
func (r *Repository) UpsertUser(ctx context.Context, id string, profile model.UserProfile, adminExternalIDs []string, now time.Time) (*model.User, error) {
	query := `
		INSERT INTO users (id, external_id, role, nickname, avatar_url, created_at)
		VALUES ($1, $2, CASE WHEN $2 = ANY($3) THEN 'administrator' ELSE 'owner' END, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			role = CASE WHEN users.external_id = ANY($3) THEN 'administrator' ELSE users.role END,
			nickname = COALESCE(NULLIF(EXCLUDED.nickname, ''), users.nickname),
			avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query,
		id,
		profile.ExternalID,
		pq.Array(adminExternalIDs),
		profile.Nickname,
		profile.AvatarURL,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetUserByExternalID retrieves a user by identity-provider subject.
func (r *Repository) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	return scanUser(r.db.QueryRow(ctx, query, externalID))
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var role string

	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&role,
		&user.Nickname,
		&user.AvatarURL,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.Role = model.Role(role)
	return &user, nil
}
