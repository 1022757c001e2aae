// Package httperr writes the JSON error envelope and maps service errors
// to HTTP statuses.
package httperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/keenchase/edit-business/internal/service"
)

// Error codes.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeCollectionDisabled = "COLLECTION_DISABLED"
	CodeBatchLimit         = "BATCH_LIMIT_EXCEEDED"
	CodeDailyLimit         = "DAILY_LIMIT_EXCEEDED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Body is the inner error object.
type Body struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details Details `json:"details,omitempty"`
}

// Details carries quota context for rejected admissions.
type Details map[string]any

// Response is the error envelope.
type Response struct {
	Error Body `json:"error"`
}

// Write sends an error envelope.
func Write(w http.ResponseWriter, status int, code, message string, details Details) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: Body{Code: code, Message: message, Details: details}})
}

// Unauthorized sends the uniform 401 body. Missing, malformed, unknown,
// revoked and expired credentials are indistinguishable.
func Unauthorized(w http.ResponseWriter) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or missing credentials", nil)
}

// Forbidden sends the uniform 403 body.
func Forbidden(w http.ResponseWriter) {
	Write(w, http.StatusForbidden, CodeForbidden, "Access denied", nil)
}

// FromError maps err to a status and writes it. Unknown errors become a
// 500 and are logged; their text never reaches the client.
func FromError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var qe *service.QuotaError

	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredential):
		Unauthorized(w)
	case errors.Is(err, service.ErrForbidden):
		Forbidden(w)
	case errors.As(err, &qe):
		writeQuota(w, qe)
	case errors.Is(err, service.ErrCollectionDisabled):
		Write(w, http.StatusForbidden, CodeCollectionDisabled, "Collection is disabled for this account", nil)
	case errors.Is(err, service.ErrInvalidArgument):
		Write(w, http.StatusBadRequest, CodeInvalidArgument, err.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		Write(w, http.StatusNotFound, CodeNotFound, "Resource not found", nil)
	case errors.Is(err, service.ErrUnavailable):
		if logger != nil {
			logger.Error("dependency unavailable", slog.String("error", err.Error()))
		}
		Write(w, http.StatusServiceUnavailable, CodeUnavailable, "Service temporarily unavailable", nil)
	default:
		if logger != nil {
			logger.Error("internal error", slog.String("error", err.Error()))
		}
		Write(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	}
}

func writeQuota(w http.ResponseWriter, qe *service.QuotaError) {
	details := Details{
		"used":       qe.Used,
		"limit":      qe.Limit,
		"dailyLimit": qe.DailyLimit,
		"requested":  qe.Requested,
		"resetAt":    qe.ResetAt.UTC().Format(time.RFC3339),
	}

	switch {
	case errors.Is(qe, service.ErrCollectionDisabled):
		Write(w, http.StatusForbidden, CodeCollectionDisabled, "Collection is disabled for this account", details)
		return
	case errors.Is(qe, service.ErrBatchLimitExceeded):
		Write(w, http.StatusTooManyRequests, CodeBatchLimit, "Batch size exceeds the per-request limit", details)
		return
	}

	w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(qe.ResetAt, time.Now())))
	Write(w, http.StatusTooManyRequests, CodeDailyLimit, "Daily collection limit reached", details)
}

// RetryAfterSeconds returns whole seconds until reset, at least 1.
func RetryAfterSeconds(reset, now time.Time) int {
	secs := int(math.Ceil(reset.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
