//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/testutil"
)

func TestIntegrationAPIKey_ConcurrentRotationLeavesOneActiveKey(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	user := testutil.NewTestUser(t, ctx, repo.Pool(), model.RoleOwner)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RotateAPIKey(ctx, testutil.NewTestAPIKey(t, user.ID)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("RotateAPIKey failed: %v", err)
	}

	keys, err := repo.ListAPIKeysByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeysByUserID failed: %v", err)
	}
	if len(keys) != workers {
		t.Fatalf("expected %d keys, got %d", workers, len(keys))
	}
	active := 0
	for _, k := range keys {
		if k.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly one active key, got %d", active)
	}
}

func TestIntegrationAPIKey_CreateIfAbsentRace(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	user := testutil.NewTestUser(t, ctx, repo.Pool(), model.RoleOwner)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateAPIKeyIfAbsent(ctx, testutil.NewTestAPIKey(t, user.ID))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrActiveKeyExists) {
				t.Errorf("CreateAPIKeyIfAbsent failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly one creation, got %d", created)
	}
}

func TestIntegrationAPIKey_ExpiryAndDeactivate(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	owner := testutil.NewTestUser(t, ctx, repo.Pool(), model.RoleOwner)
	other := testutil.NewTestUser(t, ctx, repo.Pool(), model.RoleOwner)

	key := testutil.NewTestAPIKey(t, owner.ID)
	if _, err := repo.RotateAPIKey(ctx, key); err != nil {
		t.Fatalf("RotateAPIKey failed: %v", err)
	}

	expires := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Microsecond)
	if _, err := repo.UpdateAPIKeyExpiry(ctx, other.ID, key.ID, &expires); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("expiry update for wrong owner: expected ErrAPIKeyNotFound, got %v", err)
	}

	updated, err := repo.UpdateAPIKeyExpiry(ctx, owner.ID, key.ID, &expires)
	if err != nil {
		t.Fatalf("UpdateAPIKeyExpiry failed: %v", err)
	}
	if updated.ExpiresAt == nil || !updated.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at = %v, want %v", updated.ExpiresAt, expires)
	}

	if err := repo.DeactivateAPIKey(ctx, owner.ID, key.ID); err != nil {
		t.Fatalf("DeactivateAPIKey failed: %v", err)
	}
	if _, err := repo.UpdateAPIKeyExpiry(ctx, owner.ID, key.ID, nil); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("expiry update on inactive key: expected ErrAPIKeyNotFound, got %v", err)
	}
	if cands, _ := repo.GetActiveAPIKeysByPrefix(ctx, key.KeyPrefix); len(cands) != 0 {
		t.Errorf("deactivated key is still a candidate")
	}
}

func TestIntegrationQuota_ConcurrentIncrements(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	user := testutil.NewTestUser(t, ctx, repo.Pool(), model.RoleOwner)
	counters := repo.QuotaCounters()

	const limit, workers = 25, 60
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := counters.Increment(ctx, user.ID, "2025-01-02", 1, limit)
			if err != nil {
				t.Errorf("Increment failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("admitted %d, want %d", admitted, limit)
	}
	used, err := counters.Used(ctx, user.ID, "2025-01-02")
	if err != nil || used != limit {
		t.Errorf("Used() = %d, %v; want %d", used, err, limit)
	}
}

func TestIntegrationSettings_EnsureIsIdempotent(t *testing.T) {
	ctx, repo := newIntegrationEnv(t)
	user := testutil.NewTestUser(t, ctx, repo.Pool(), model.RoleOwner)
	defaults := model.SettingsDefaults{DailyLimit: 500, BatchLimit: 50}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.EnsureSettings(ctx, user.ID, defaults, time.Now()); err != nil {
				t.Errorf("EnsureSettings failed: %v", err)
			}
		}()
	}
	wg.Wait()

	daily := 5
	if _, err := repo.UpdateSettingsLimits(ctx, user.ID, &daily, nil, defaults, time.Now()); err != nil {
		t.Fatalf("UpdateSettingsLimits failed: %v", err)
	}
	s, err := repo.EnsureSettings(ctx, user.ID, defaults, time.Now())
	if err != nil {
		t.Fatalf("EnsureSettings failed: %v", err)
	}
	if s.DailyLimit != 5 || s.BatchLimit != 50 {
		t.Errorf("limits = %d/%d, want 5/50", s.DailyLimit, s.BatchLimit)
	}
}

func newIntegrationEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := testutil.TruncateAll(ctx, repo.Pool()); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return ctx, repo
}
