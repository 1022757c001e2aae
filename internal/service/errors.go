// Package service implements the credential, quota, settings and admin
// operations of the collection control plane.
package service

import (
	"errors"
	"fmt"
	"time"
)

// Service errors. Lower layers map their own errors onto these; only the
// HTTP layer turns them into status codes.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrForbidden          = errors.New("forbidden")
	ErrCollectionDisabled = errors.New("collection is disabled")
	ErrBatchLimitExceeded = errors.New("batch limit exceeded")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrUnavailable        = errors.New("service temporarily unavailable")
)

// QuotaError describes a rejected admission together with today's usage.
// It matches ErrCollectionDisabled, ErrBatchLimitExceeded or
// ErrDailyLimitExceeded with errors.Is. Limit is the limit that was hit;
// for a disabled account it is the daily limit.
type QuotaError struct {
	Kind       error
	Used       int64
	Limit      int
	DailyLimit int
	Requested  int
	ResetAt    time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: requested %d, used %d of %d", e.Kind, e.Requested, e.Used, e.Limit)
}

// Is reports whether target is the error kind.
func (e *QuotaError) Is(target error) bool {
	return target == e.Kind
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
