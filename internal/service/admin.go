package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
)

// Listing bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AdminQueryService serves the read-only administrator views.
type AdminQueryService struct {
	stats    StatsRepository
	users    UserRepository
	creds    *CredentialStore
	settings *SettingsStore
	quota    *QuotaTracker
}

// NewAdminQueryService creates an AdminQueryService.
func NewAdminQueryService(stats StatsRepository, users UserRepository, creds *CredentialStore, settings *SettingsStore, quota *QuotaTracker) *AdminQueryService {
	return &AdminQueryService{
		stats:    stats,
		users:    users,
		creds:    creds,
		settings: settings,
		quota:    quota,
	}
}

// NormalizePage clamps page and size to the accepted range.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// ListUsers returns one page of users ordered by creation time.
func (s *AdminQueryService) ListUsers(ctx context.Context, page, size int) (*model.UserPage, error) {
	page, size = NormalizePage(page, size)

	total, err := s.stats.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	result := &model.UserPage{
		Items:      []model.UserSummary{},
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}

	if page > result.TotalPages {
		return result, nil
	}
	offset := (page - 1) * size

	items, err := s.stats.ListUserSummaries(ctx, offset, size)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if items != nil {
		result.Items = items
	}
	return result, nil
}

// GetUserDetail returns the user's profile, stats, settings, keys and
// today's usage. Nothing is written.
func (s *AdminQueryService) GetUserDetail(ctx context.Context, userID string) (*model.UserDetail, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	detail := &model.UserDetail{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.stats.GetUserStats(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get user stats: %w", err)
		}
		detail.Stats = stats
		return nil
	})
	g.Go(func() error {
		settings, err := s.settings.Get(gctx, userID)
		detail.Settings = settings
		return err
	})
	g.Go(func() error {
		keys, err := s.creds.List(gctx, userID)
		detail.APIKeys = keys
		return err
	})
	g.Go(func() error {
		usage, err := s.quota.CurrentUsage(gctx, userID)
		detail.Usage = usage
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// UserStats returns how many notes and bloggers a user has collected.
func (s *AdminQueryService) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	stats, err := s.stats.GetUserStats(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserStats{}, fmt.Errorf("%w: user", ErrNotFound)
		}
		return model.UserStats{}, fmt.Errorf("failed to get user stats: %w", err)
	}
	return stats, nil
}

// Overview returns system-wide totals.
func (s *AdminQueryService) Overview(ctx context.Context) (*model.Overview, error) {
	var out model.Overview
	g, gctx := errgroup.WithContext(ctx)

	counters := []struct {
		name string
		fn   func(context.Context) (int64, error)
		dst  *int64
	}{
		{"users", s.stats.CountUsers, &out.TotalUsers},
		{"notes", s.stats.CountNotes, &out.TotalNotes},
		{"bloggers", s.stats.CountBloggers, &out.TotalBloggers},
		{"active api keys", s.stats.CountActiveAPIKeys, &out.ActiveAPIKeys},
	}
	for _, c := range counters {
		g.Go(func() error {
			n, err := c.fn(gctx)
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", c.name, err)
			}
			*c.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsAdmin reports whether the identity holds the administrator role.
func (s *AdminQueryService) IsAdmin(id *model.Identity) bool {
	return id.IsAdmin()
}
