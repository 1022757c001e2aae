package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keenchase/edit-business/internal/metrics"
	"github.com/keenchase/edit-business/internal/model"
)

type quotaFixture struct {
	store    *store
	clock    *testClock
	settings *SettingsStore
	quota    *QuotaTracker
	rec      *metrics.InMemoryRecorder
}

func newQuotaFixture(t *testing.T, daily, batch int) *quotaFixture {
	t.Helper()
	st := newStore()
	st.addUser("u1", model.RoleOwner)
	clock := newTestClock(epoch)
	rc, _ := newRedisCache(t)
	rec := metrics.NewInMemory()

	settings := NewSettingsStore(st, model.SettingsDefaults{DailyLimit: 500, BatchLimit: 50}, clock.Now, nil)
	if _, err := settings.UpdateLimits(context.Background(), "admin", "u1", intPtr(daily), intPtr(batch)); err != nil {
		t.Fatalf("UpdateLimits: %v", err)
	}
	return &quotaFixture{
		store:    st,
		clock:    clock,
		settings: settings,
		quota:    NewQuotaTracker(settings, rc.QuotaCounters(48*time.Hour), clock.Now, rec, nil),
		rec:      rec,
	}
}

func TestCheckAndIncrement_DailyFiveBatchThree(t *testing.T) {
	f := newQuotaFixture(t, 5, 3)
	ctx := context.Background()

	usage, err := f.quota.CheckAndIncrement(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("first batch of 3: %v", err)
	}
	if usage.Used != 3 || usage.Remaining != 2 {
		t.Errorf("expected used=3 remaining=2, got %+v", usage)
	}

	_, err = f.quota.CheckAndIncrement(ctx, "u1", 3)
	var qe *QuotaError
	if !errors.As(err, &qe) || !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("second batch of 3: expected daily limit error, got %v", err)
	}
	if qe.Used != 3 || qe.Limit != 5 || qe.Requested != 3 {
		t.Errorf("unexpected quota error %+v", qe)
	}
	if !qe.ResetAt.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected reset %v", qe.ResetAt)
	}

	usage, err = f.quota.CheckAndIncrement(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("batch of 2: %v", err)
	}
	if usage.Used != 5 || usage.Remaining != 0 {
		t.Errorf("expected used=5 remaining=0, got %+v", usage)
	}

	snap := f.rec.Snapshot()
	if snap.QuotaDecisions[metrics.QuotaAdmitted] != 2 || snap.QuotaDecisions[metrics.QuotaDailyExceeded] != 1 {
		t.Errorf("unexpected decisions %v", snap.QuotaDecisions)
	}
}

func TestCheckAndIncrement_BatchLargerThanLimitAlwaysFails(t *testing.T) {
	f := newQuotaFixture(t, 1000, 10)
	ctx := context.Background()

	if _, err := f.quota.CheckAndIncrement(ctx, "u1", 4); err != nil {
		t.Fatalf("batch of 4: %v", err)
	}
	_, err := f.quota.CheckAndIncrement(ctx, "u1", 11)
	var qe *QuotaError
	if !errors.As(err, &qe) || !errors.Is(err, ErrBatchLimitExceeded) {
		t.Fatalf("expected ErrBatchLimitExceeded, got %v", err)
	}
	if qe.Used != 4 || qe.Limit != 10 || qe.DailyLimit != 1000 || qe.Requested != 11 {
		t.Errorf("unexpected quota error %+v", qe)
	}
	usage, err := f.quota.CurrentUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("CurrentUsage: %v", err)
	}
	if usage.Used != 4 {
		t.Errorf("rejected batch must not consume quota, used=%d", usage.Used)
	}
}

func TestCheckAndIncrement_InvalidAndZeroLimits(t *testing.T) {
	f := newQuotaFixture(t, 0, 10)
	ctx := context.Background()

	for _, n := range []int{0, -4} {
		if _, err := f.quota.CheckAndIncrement(ctx, "u1", n); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("requested=%d: expected ErrInvalidArgument, got %v", n, err)
		}
	}
	if _, err := f.quota.CheckAndIncrement(ctx, "u1", 1); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Errorf("daily limit 0 must block, got %v", err)
	}
}

func TestCheckAndIncrement_ConcurrentSingles(t *testing.T) {
	f := newQuotaFixture(t, 30, 5)
	ctx := context.Background()

	if _, err := f.quota.CheckAndIncrement(ctx, "u1", 4); err != nil {
		t.Fatalf("prior usage: %v", err)
	}

	const n = 80
	var admitted, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.quota.CheckAndIncrement(ctx, "u1", 1)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrDailyLimitExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 26 {
		t.Errorf("expected 26 admitted, got %d", admitted.Load())
	}
	if rejected.Load() != n-26 {
		t.Errorf("expected %d rejected, got %d", n-26, rejected.Load())
	}
	usage, _ := f.quota.CurrentUsage(ctx, "u1")
	if usage.Used != 30 {
		t.Errorf("expected used=30, got %d", usage.Used)
	}
}

func TestCheckAndIncrement_RollsOverAtUTCMidnight(t *testing.T) {
	f := newQuotaFixture(t, 2, 2)
	ctx := context.Background()

	f.clock.Set(time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC))
	if _, err := f.quota.CheckAndIncrement(ctx, "u1", 2); err != nil {
		t.Fatalf("before midnight: %v", err)
	}
	if _, err := f.quota.CheckAndIncrement(ctx, "u1", 1); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected exhausted, got %v", err)
	}

	f.clock.Set(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	usage, err := f.quota.CheckAndIncrement(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("after midnight: %v", err)
	}
	if usage.Day != "2026-03-11" || usage.Used != 2 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestAdmit_DisabledCollection(t *testing.T) {
	f := newQuotaFixture(t, 10, 5)
	ctx := context.Background()

	if _, err := f.quota.Admit(ctx, "u1", 2); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := f.settings.ToggleCollection(ctx, "u1", false); err != nil {
		t.Fatalf("ToggleCollection: %v", err)
	}
	_, err := f.quota.Admit(ctx, "u1", 1)
	var qe *QuotaError
	if !errors.As(err, &qe) || !errors.Is(err, ErrCollectionDisabled) {
		t.Fatalf("expected ErrCollectionDisabled, got %v", err)
	}
	if qe.Used != 2 || qe.Limit != 10 || !qe.ResetAt.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected quota error %+v", qe)
	}
	usage, _ := f.quota.CurrentUsage(ctx, "u1")
	if usage.Used != 2 || usage.Enabled {
		t.Errorf("unexpected usage %+v", usage)
	}

	if _, err := f.settings.ToggleCollection(ctx, "u1", true); err != nil {
		t.Fatalf("ToggleCollection: %v", err)
	}
	if _, err := f.quota.Admit(ctx, "u1", 1); err != nil {
		t.Fatalf("Admit after re-enabling: %v", err)
	}
}

func TestRefund(t *testing.T) {
	f := newQuotaFixture(t, 10, 5)
	ctx := context.Background()

	if _, err := f.quota.CheckAndIncrement(ctx, "u1", 4); err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	if err := f.quota.Refund(ctx, "u1", 3); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if err := f.quota.Refund(ctx, "u1", 5); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	usage, _ := f.quota.CurrentUsage(ctx, "u1")
	if usage.Used != 0 {
		t.Errorf("refund must floor at zero, used=%d", usage.Used)
	}
	if got := f.rec.Snapshot().QuotaRefundedUnits; got != 8 {
		t.Errorf("expected 8 refunded units recorded, got %d", got)
	}
}

func TestCheckAndIncrement_FailsClosed(t *testing.T) {
	st := newStore()
	st.addUser("u1", model.RoleOwner)
	settings := NewSettingsStore(st, model.SettingsDefaults{}, nil, nil)
	q := NewQuotaTracker(settings, brokenCounter{}, nil, nil, nil)

	_, err := q.CheckAndIncrement(context.Background(), "u1", 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
