package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/cache"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
)

var testHasher = auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1})

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// store is an in-memory stand-in for the Postgres repository. It keeps the
// one-active-key rule under a single mutex.
type store struct {
	mu       sync.Mutex
	users    map[string]*model.User
	keys     map[string]*model.APIKey
	settings map[string]*model.UserSettings
	stats    map[string]model.UserStats
	lastUsed chan string
	failKeys error
}

func newStore() *store {
	return &store{
		users:    make(map[string]*model.User),
		keys:     make(map[string]*model.APIKey),
		settings: make(map[string]*model.UserSettings),
		stats:    make(map[string]model.UserStats),
		lastUsed: make(chan string, 64),
	}
}

func (s *store) addUser(id string, role model.Role) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{
		ID:         id,
		ExternalID: "ext-" + id,
		Role:       role,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, len(s.users), 0, time.UTC),
	}
	s.users[id] = u
	return u
}

func cloneKey(k *model.APIKey) *model.APIKey {
	c := *k
	return &c
}

func (s *store) activeLocked(userID string) *model.APIKey {
	for _, k := range s.keys {
		if k.UserID == userID && k.IsActive {
			return k
		}
	}
	return nil
}

func (s *store) RotateAPIKey(_ context.Context, key *model.APIKey) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[key.UserID]; !ok {
		return "", repository.ErrUserNotFound
	}
	var old string
	if active := s.activeLocked(key.UserID); active != nil {
		active.IsActive = false
		old = active.ID
	}
	key.IsActive = true
	s.keys[key.ID] = cloneKey(key)
	return old, nil
}

func (s *store) CreateAPIKeyIfAbsent(_ context.Context, key *model.APIKey) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[key.UserID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	if active := s.activeLocked(key.UserID); active != nil {
		return cloneKey(active), repository.ErrActiveKeyExists
	}
	key.IsActive = true
	s.keys[key.ID] = cloneKey(key)
	return nil, nil
}

func (s *store) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failKeys != nil {
		return nil, s.failKeys
	}
	k, ok := s.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	return cloneKey(k), nil
}

func (s *store) GetActiveAPIKeyByUserID(_ context.Context, userID string) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k := s.activeLocked(userID); k != nil {
		return cloneKey(k), nil
	}
	return nil, repository.ErrAPIKeyNotFound
}

func (s *store) GetActiveAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failKeys != nil {
		return nil, s.failKeys
	}
	var out []*model.APIKey
	for _, k := range s.keys {
		if k.IsActive && k.KeyPrefix == prefix {
			out = append(out, cloneKey(k))
		}
	}
	return out, nil
}

func (s *store) ListAPIKeysByUserID(_ context.Context, userID string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.APIKey
	for _, k := range s.keys {
		if k.UserID == userID {
			out = append(out, cloneKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *store) UpdateAPIKeyExpiry(_ context.Context, userID, keyID string, expiresAt *time.Time) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok || k.UserID != userID || !k.IsActive {
		return nil, repository.ErrAPIKeyNotFound
	}
	k.ExpiresAt = expiresAt
	return cloneKey(k), nil
}

func (s *store) DeactivateAPIKey(_ context.Context, userID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok || k.UserID != userID || !k.IsActive {
		return repository.ErrAPIKeyNotFound
	}
	k.IsActive = false
	return nil
}

func (s *store) UpdateAPIKeyLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	if k, ok := s.keys[id]; ok {
		k.LastUsedAt = &at
	}
	s.mu.Unlock()
	select {
	case s.lastUsed <- id:
	default:
	}
	return nil
}

func (s *store) activeCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.keys {
		if k.UserID == userID && k.IsActive {
			n++
		}
	}
	return n
}

func (s *store) UpsertUser(_ context.Context, id string, p model.UserProfile, adminIDs []string, now time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	isAdmin := false
	for _, a := range adminIDs {
		if a == p.ExternalID {
			isAdmin = true
		}
	}
	for _, u := range s.users {
		if u.ExternalID == p.ExternalID {
			if isAdmin {
				u.Role = model.RoleAdministrator
			}
			if p.Nickname != "" {
				u.Nickname = p.Nickname
			}
			c := *u
			return &c, nil
		}
	}
	u := &model.User{ID: id, ExternalID: p.ExternalID, Role: model.RoleOwner, Nickname: p.Nickname, AvatarURL: p.AvatarURL, CreatedAt: now}
	if isAdmin {
		u.Role = model.RoleAdministrator
	}
	s.users[id] = u
	c := *u
	return &c, nil
}

func (s *store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *store) GetUserByExternalID(_ context.Context, externalID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *store) setRole(id string, role model.Role) {
	s.mu.Lock()
	s.users[id].Role = role
	s.mu.Unlock()
}

func (s *store) EnsureSettings(_ context.Context, userID string, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID, d, now)
}

func (s *store) ensureLocked(userID string, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	if _, ok := s.users[userID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	st, ok := s.settings[userID]
	if !ok {
		st = model.DefaultUserSettings(userID, d)
		st.CreatedAt, st.UpdatedAt, st.Persisted = now, now, true
		s.settings[userID] = st
	}
	c := *st
	return &c, nil
}

func (s *store) GetSettings(_ context.Context, userID string) (*model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		return nil, repository.ErrSettingsNotFound
	}
	c := *st
	return &c, nil
}

func (s *store) SetCollectionEnabled(_ context.Context, userID string, enabled bool, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureLocked(userID, d, now); err != nil {
		return nil, err
	}
	st := s.settings[userID]
	st.CollectionEnabled, st.UpdatedAt = enabled, now
	c := *st
	return &c, nil
}

func (s *store) UpdateSettingsLimits(_ context.Context, userID string, daily, batch *int, d model.SettingsDefaults, now time.Time) (*model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureLocked(userID, d, now); err != nil {
		return nil, err
	}
	st := s.settings[userID]
	if daily != nil {
		st.DailyLimit = *daily
	}
	if batch != nil {
		st.BatchLimit = *batch
	}
	st.UpdatedAt = now
	c := *st
	return &c, nil
}

func (s *store) ListUserSummaries(_ context.Context, offset, limit int) ([]model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	var out []model.UserSummary
	for i := offset; i < len(users) && i < offset+limit; i++ {
		u := users[i]
		out = append(out, model.UserSummary{
			ID:            u.ID,
			ExternalID:    u.ExternalID,
			Role:          u.Role,
			CreatedAt:     u.CreatedAt,
			TotalNotes:    s.stats[u.ID].TotalNotes,
			TotalBloggers: s.stats[u.ID].TotalBloggers,
			HasActiveKey:  s.activeLocked(u.ID) != nil,
		})
	}
	return out, nil
}

func (s *store) GetUserStats(_ context.Context, userID string) (model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return model.UserStats{}, repository.ErrUserNotFound
	}
	return s.stats[userID], nil
}

func (s *store) CountUsers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *store) CountNotes(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, st := range s.stats {
		n += st.TotalNotes
	}
	return n, nil
}

func (s *store) CountBloggers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, st := range s.stats {
		n += st.TotalBloggers
	}
	return n, nil
}

func (s *store) CountActiveAPIKeys(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range s.keys {
		if k.IsActive {
			n++
		}
	}
	return n, nil
}

// brokenCounter fails every call.
type brokenCounter struct{}

var errBackendDown = errors.New("backend down")

func (brokenCounter) Increment(context.Context, string, string, int, int) (int64, bool, error) {
	return 0, false, errBackendDown
}
func (brokenCounter) Used(context.Context, string, string) (int64, error) { return 0, errBackendDown }
func (brokenCounter) Refund(context.Context, string, string, int) error   { return errBackendDown }

func newRedisCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewFromClient(client), mr
}
