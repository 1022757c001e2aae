package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/keenchase/edit-business/internal/model"
)

func TestSettings_GetOrCreateIsIdempotent(t *testing.T) {
	st := newStore()
	st.addUser("u1", model.RoleOwner)
	s := NewSettingsStore(st, model.SettingsDefaults{DailyLimit: 100, BatchLimit: 10}, newTestClock(epoch).Now, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.GetOrCreate(context.Background(), "u1")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			if got.DailyLimit != 100 || got.BatchLimit != 10 || !got.CollectionEnabled {
				t.Errorf("unexpected settings %+v", got)
			}
		}()
	}
	wg.Wait()

	if len(st.settings) != 1 {
		t.Errorf("expected one settings row, got %d", len(st.settings))
	}
}

func TestSettings_GetDoesNotWrite(t *testing.T) {
	st := newStore()
	st.addUser("u1", model.RoleOwner)
	s := NewSettingsStore(st, model.SettingsDefaults{}, nil, nil)

	got, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Persisted {
		t.Error("defaults must not be marked persisted")
	}
	if got.DailyLimit != model.DefaultDailyLimit || got.BatchLimit != model.DefaultBatchLimit {
		t.Errorf("unexpected defaults %+v", got)
	}
	if len(st.settings) != 0 {
		t.Error("Get must not create a row")
	}
}

func TestSettings_ToggleKeepsLimits(t *testing.T) {
	st := newStore()
	st.addUser("u1", model.RoleOwner)
	s := NewSettingsStore(st, model.SettingsDefaults{}, nil, nil)
	ctx := context.Background()

	if _, err := s.UpdateLimits(ctx, "admin", "u1", intPtr(7), nil); err != nil {
		t.Fatalf("UpdateLimits: %v", err)
	}
	got, err := s.ToggleCollection(ctx, "u1", false)
	if err != nil {
		t.Fatalf("ToggleCollection: %v", err)
	}
	if got.CollectionEnabled || got.DailyLimit != 7 || got.BatchLimit != model.DefaultBatchLimit {
		t.Errorf("unexpected settings %+v", got)
	}
	enabled, err := s.IsEnabled(ctx, "u1")
	if err != nil || enabled {
		t.Errorf("IsEnabled = %v, %v", enabled, err)
	}
}

func TestSettings_UpdateLimitsValidation(t *testing.T) {
	st := newStore()
	st.addUser("u1", model.RoleOwner)
	s := NewSettingsStore(st, model.SettingsDefaults{}, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		daily, batch *int
		wantErr      error
	}{
		{"both nil", nil, nil, ErrInvalidArgument},
		{"negative daily", intPtr(-1), nil, ErrInvalidArgument},
		{"negative batch", nil, intPtr(-5), ErrInvalidArgument},
		{"zero daily allowed", intPtr(0), nil, nil},
		{"batch only", nil, intPtr(20), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateLimits(ctx, "admin", "u1", tt.daily, tt.batch)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := s.UpdateLimits(ctx, "admin", "ghost", intPtr(1), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
}
