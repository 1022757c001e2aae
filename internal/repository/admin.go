package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/keenchase/edit-business/internal/model"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ListUserSummaries returns one page of users ordered by creation time with
// per-user collection counts.
func (r *Repository) ListUserSummaries(ctx context.Context, offset, limit int) ([]model.UserSummary, error) {
	query, args, err := psql.
		Select(
			"u.id", "u.external_id", "u.role", "u.nickname", "u.avatar_url", "u.created_at",
			"(SELECT COUNT(*) FROM notes n WHERE n.user_id = u.id) AS total_notes",
			"(SELECT COUNT(*) FROM bloggers b WHERE b.user_id = u.id) AS total_bloggers",
			"EXISTS (SELECT 1 FROM api_keys k WHERE k.user_id = u.id AND k.is_active) AS has_active_key",
		).
		From("users u").
		OrderBy("u.created_at ASC", "u.id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user listing query: %w", err)
	}

	items := make([]model.UserSummary, 0, limit)
	if err := pgxscan.Select(ctx, r.db, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return items, nil
}

// GetUserStats counts the records collected by one user.
func (r *Repository) GetUserStats(ctx context.Context, userID string) (model.UserStats, error) {
	query, args, err := psql.
		Select(
			"(SELECT COUNT(*) FROM notes WHERE user_id = u.id) AS total_notes",
			"(SELECT COUNT(*) FROM bloggers WHERE user_id = u.id) AS total_bloggers",
		).
		From("users u").
		Where(squirrel.Eq{"u.id": userID}).
		ToSql()
	if err != nil {
		return model.UserStats{}, fmt.Errorf("build user stats query: %w", err)
	}

	var stats model.UserStats
	if err := pgxscan.Get(ctx, r.db, &stats, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return model.UserStats{}, ErrUserNotFound
		}
		return model.UserStats{}, fmt.Errorf("failed to get user stats: %w", err)
	}
	return stats, nil
}

// CountUsers returns the number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	return r.count(ctx, "users", nil)
}

// CountNotes returns the number of collected notes.
func (r *Repository) CountNotes(ctx context.Context) (int64, error) {
	return r.count(ctx, "notes", nil)
}

// CountBloggers returns the number of collected bloggers.
func (r *Repository) CountBloggers(ctx context.Context) (int64, error) {
	return r.count(ctx, "bloggers", nil)
}

// CountActiveAPIKeys returns the number of active API keys.
func (r *Repository) CountActiveAPIKeys(ctx context.Context) (int64, error) {
	return r.count(ctx, "api_keys", squirrel.Eq{"is_active": true})
}

func (r *Repository) count(ctx context.Context, table string, where squirrel.Sqlizer) (int64, error) {
	b := psql.Select("COUNT(*)").From(table)
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
