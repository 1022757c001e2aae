package model

import (
	"strings"
	"time"
)

// APIKeyScheme is the leading segment of every plaintext key.
const APIKeyScheme = "eb"

// APIKey represents an ingestion credential. Only the hash is stored.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name,omitempty"`
	KeyPrefix  string     `json:"keyPrefix"`
	KeyHash    string     `json:"-"` // Never serialize
	IsActive   bool       `json:"isActive"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// IsExpiredAt reports whether the key has expired at the given instant.
// A key with no expiry never expires; expiry is inclusive of expires_at.
func (k *APIKey) IsExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// UsableAt reports whether the key is active and unexpired at now.
func (k *APIKey) UsableAt(now time.Time) bool {
	return k.IsActive && !k.IsExpiredAt(now)
}

// MaskedKey renders the key without its secret, e.g. eb_7a9f3c_********.
func MaskedKey(prefix string) string {
	return APIKeyScheme + "_" + prefix + "_" + strings.Repeat("*", 8)
}

// APIKeyResponse is the public, secret-free view of a key.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	MaskedKey  string     `json:"maskedKey"`
	KeyPrefix  string     `json:"keyPrefix"`
	IsActive   bool       `json:"isActive"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ToResponse converts an APIKey to its masked response form.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		MaskedKey:  MaskedKey(k.KeyPrefix),
		KeyPrefix:  k.KeyPrefix,
		IsActive:   k.IsActive,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		CreatedAt:  k.CreatedAt,
	}
}

// IssuedAPIKey is the result of a creation event. Key holds the plaintext
// and is populated only on the call that created it.
type IssuedAPIKey struct {
	APIKeyResponse
	Key            string `json:"key,omitempty"`
	DeactivatedKey string `json:"deactivatedKeyId,omitempty"`
}

// APIKeyStats summarizes a user's keys. ActiveCount counts keys usable now.
type APIKeyStats struct {
	TotalCount  int        `json:"totalCount"`
	ActiveCount int        `json:"activeCount"`
	LastUsed    *time.Time `json:"lastUsed"`
}
