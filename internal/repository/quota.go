package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// QuotaCounters stores daily quota counters in PostgreSQL.
type QuotaCounters struct {
	db DB
}

// QuotaCounters returns the PostgreSQL quota counter backend.
func (r *Repository) QuotaCounters() *QuotaCounters {
	return &QuotaCounters{db: r.db}
}

// Increment adds n to the user's counter for day if the result stays within
// limit. The check and the write are one statement; concurrent callers
// serialize on the (user_id, day) row.
func (q *QuotaCounters) Increment(ctx context.Context, userID, day string, n, limit int) (int64, bool, error) {
	query := `
		INSERT INTO quota_counters (user_id, day, count_used)
		SELECT $1, $2::date, $3::bigint
		WHERE $3::bigint <= $4::bigint
		ON CONFLICT (user_id, day) DO UPDATE
			SET count_used = quota_counters.count_used + EXCLUDED.count_used
			WHERE quota_counters.count_used + EXCLUDED.count_used <= $4::bigint
		RETURNING count_used
	`

	var used int64
	err := q.db.QueryRow(ctx, query, userID, day, n, limit).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to increment quota: %w", err)
	}

	used, err = q.Used(ctx, userID, day)
	if err != nil {
		return 0, false, err
	}
	return used, false, nil
}

// Used returns the counter for day; a missing row reads as zero.
func (q *QuotaCounters) Used(ctx context.Context, userID, day string) (int64, error) {
	var used int64
	err := q.db.QueryRow(ctx,
		`SELECT count_used FROM quota_counters WHERE user_id = $1 AND day = $2::date`,
		userID, day,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}
	return used, nil
}

// Refund subtracts n from the counter for day, never going below zero.
func (q *QuotaCounters) Refund(ctx context.Context, userID, day string, n int) error {
	_, err := q.db.Exec(ctx,
		`UPDATE quota_counters SET count_used = GREATEST(count_used - $3::bigint, 0) WHERE user_id = $1 AND day = $2::date`,
		userID, day, n,
	)
	if err != nil {
		return fmt.Errorf("failed to refund quota: %w", err)
	}
	return nil
}
