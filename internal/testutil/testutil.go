// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keenchase/edit-business/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420421

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// TruncateAll empties every control-plane table. Migrations must have run.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE quota_counters, user_settings, api_keys, notes, bloggers, users`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// NewTestUser inserts a user with the given role and returns it.
func NewTestUser(t testing.TB, ctx context.Context, pool *pgxpool.Pool, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		ID:         ulid.Make().String(),
		ExternalID: UniqueID("ext"),
		Role:       role,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, external_id, role, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.ExternalID, string(user.Role), user.CreatedAt,
	)
	if err != nil {
		t.Fatalf("insert test user: %v", err)
	}
	return user
}

// NewTestAPIKey builds an unsaved key for userID with a placeholder hash.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	return &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Name:      "Test Key",
		KeyPrefix: "abc123",
		KeyHash:   "hash-" + UniqueID("k"),
		CreatedAt: time.Now().UTC(),
	}
}

var uniqueSeq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), uniqueSeq.Add(1))
}
