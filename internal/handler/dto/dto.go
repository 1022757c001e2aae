// Package dto defines request and response bodies of the HTTP API.
package dto

import "github.com/keenchase/edit-business/internal/model"

// ToggleCollectionRequest is the body of POST /user-settings/toggle-collection.
type ToggleCollectionRequest struct {
	Enabled *bool `json:"enabled"`
}

// ExpiryRequest is the body of admin key issuance and expiry updates.
// ExpiresIn is a number of days; absent or 0 means the key never expires.
type ExpiryRequest struct {
	ExpiresIn *int `json:"expiresIn"`
}

// UpdateLimitsRequest is the body of PUT /admin/users/{userId}/settings.
type UpdateLimitsRequest struct {
	CollectionDailyLimit *int `json:"collectionDailyLimit"`
	CollectionBatchLimit *int `json:"collectionBatchLimit"`
}

// AdminCheckResponse answers GET /admin/check.
type AdminCheckResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

// APIKeyListResponse wraps a user's keys.
type APIKeyListResponse struct {
	Items []model.APIKeyResponse `json:"items"`
}

// ValidateResponse answers GET /ingest/validate.
type ValidateResponse struct {
	Valid     bool              `json:"valid"`
	UserID    string            `json:"userId"`
	KeyPrefix string            `json:"keyPrefix"`
	Usage     *model.QuotaUsage `json:"usage"`
}

// IngestAcceptedResponse is returned when no upstream is configured.
type IngestAcceptedResponse struct {
	Accepted int               `json:"accepted"`
	Usage    *model.QuotaUsage `json:"usage"`
}
