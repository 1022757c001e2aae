package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keenchase/edit-business/internal/metrics"
	"github.com/keenchase/edit-business/internal/model"
)

// QuotaTracker enforces per-user daily and batch limits.
type QuotaTracker struct {
	settings *SettingsStore
	counter  QuotaCounter
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewQuotaTracker creates a QuotaTracker.
func NewQuotaTracker(settings *SettingsStore, counter QuotaCounter, now func() time.Time, recorder metrics.Recorder, logger *slog.Logger) *QuotaTracker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &QuotaTracker{
		settings: settings,
		counter:  counter,
		metrics:  recorder,
		logger:   logger,
		now:      now,
	}
}

// CheckAndIncrement admits requested units for today if both the batch and
// the daily limit allow it. Rejections are *QuotaError values.
func (q *QuotaTracker) CheckAndIncrement(ctx context.Context, userID string, requested int) (*model.QuotaUsage, error) {
	if requested < 1 {
		return nil, invalidArgument("requested count must be at least 1")
	}
	settings, err := q.settings.Get(ctx, userID)
	if err != nil {
		q.metrics.IncQuotaDecision(metrics.QuotaError)
		return nil, err
	}
	return q.increment(ctx, settings, requested)
}

// Admit is CheckAndIncrement preceded by the collection kill switch.
func (q *QuotaTracker) Admit(ctx context.Context, userID string, requested int) (*model.QuotaUsage, error) {
	if requested < 1 {
		return nil, invalidArgument("requested count must be at least 1")
	}
	settings, err := q.settings.Get(ctx, userID)
	if err != nil {
		q.metrics.IncQuotaDecision(metrics.QuotaError)
		return nil, err
	}
	if !settings.CollectionEnabled {
		q.metrics.IncQuotaDecision(metrics.QuotaDisabled)
		return nil, q.rejection(ctx, settings, ErrCollectionDisabled, settings.DailyLimit, requested)
	}
	return q.increment(ctx, settings, requested)
}

// rejection builds a QuotaError carrying today's usage. A counter that
// cannot be read makes the rejection an ErrUnavailable.
func (q *QuotaTracker) rejection(ctx context.Context, settings *model.UserSettings, kind error, limit, requested int) error {
	now := q.now().UTC()
	used, err := q.counter.Used(ctx, settings.UserID, model.DayKey(now))
	if err != nil {
		q.logger.Error("quota backend failure", "user_id", settings.UserID, "error", err)
		return fmt.Errorf("%w: quota backend: %v", ErrUnavailable, err)
	}
	return &QuotaError{
		Kind:       kind,
		Used:       used,
		Limit:      limit,
		DailyLimit: settings.DailyLimit,
		Requested:  requested,
		ResetAt:    model.NextReset(now),
	}
}

func (q *QuotaTracker) increment(ctx context.Context, settings *model.UserSettings, requested int) (*model.QuotaUsage, error) {
	now := q.now().UTC()
	day := model.DayKey(now)
	resetAt := model.NextReset(now)

	if requested > settings.BatchLimit {
		q.metrics.IncQuotaDecision(metrics.QuotaBatchExceeded)
		return nil, q.rejection(ctx, settings, ErrBatchLimitExceeded, settings.BatchLimit, requested)
	}

	used, admitted, err := q.counter.Increment(ctx, settings.UserID, day, requested, settings.DailyLimit)
	if err != nil {
		q.metrics.IncQuotaDecision(metrics.QuotaError)
		q.logger.Error("quota backend failure", "user_id", settings.UserID, "error", err)
		return nil, fmt.Errorf("%w: quota backend: %v", ErrUnavailable, err)
	}
	if !admitted {
		q.metrics.IncQuotaDecision(metrics.QuotaDailyExceeded)
		return nil, &QuotaError{
			Kind:       ErrDailyLimitExceeded,
			Used:       used,
			Limit:      settings.DailyLimit,
			DailyLimit: settings.DailyLimit,
			Requested:  requested,
			ResetAt:    resetAt,
		}
	}

	q.metrics.IncQuotaDecision(metrics.QuotaAdmitted)
	return usage(settings, day, used, resetAt), nil
}

// CurrentUsage returns today's usage snapshot for the user.
func (q *QuotaTracker) CurrentUsage(ctx context.Context, userID string) (*model.QuotaUsage, error) {
	settings, err := q.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := q.now().UTC()
	day := model.DayKey(now)
	used, err := q.counter.Used(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("%w: quota backend: %v", ErrUnavailable, err)
	}
	return usage(settings, day, used, model.NextReset(now)), nil
}

// Refund returns n units to today's counter.
func (q *QuotaTracker) Refund(ctx context.Context, userID string, n int) error {
	return q.RefundDay(ctx, userID, model.DayKey(q.now()), n)
}

// RefundDay returns n units to the counter of the given day. The counter
// never drops below zero.
func (q *QuotaTracker) RefundDay(ctx context.Context, userID, day string, n int) error {
	if n < 1 {
		return nil
	}
	if err := q.counter.Refund(ctx, userID, day, n); err != nil {
		return fmt.Errorf("failed to refund quota: %w", err)
	}
	q.metrics.AddQuotaRefunded(n)
	q.logger.Info("quota refunded", "user_id", userID, "day", day, "units", n)
	return nil
}

func usage(settings *model.UserSettings, day string, used int64, resetAt time.Time) *model.QuotaUsage {
	remaining := int64(settings.DailyLimit) - used
	if remaining < 0 {
		remaining = 0
	}
	return &model.QuotaUsage{
		Day:        day,
		Used:       used,
		DailyLimit: settings.DailyLimit,
		BatchLimit: settings.BatchLimit,
		Remaining:  remaining,
		Enabled:    settings.CollectionEnabled,
		ResetAt:    resetAt,
	}
}
