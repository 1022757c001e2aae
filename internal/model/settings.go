package model

import "time"

// Built-in collection limits used when configuration does not override them.
const (
	DefaultDailyLimit = 500
	DefaultBatchLimit = 50
)

// SettingsDefaults are applied when a settings row is created.
type SettingsDefaults struct {
	DailyLimit int
	BatchLimit int
}

// UserSettings holds per-user collection settings.
type UserSettings struct {
	UserID            string    `json:"userId"`
	CollectionEnabled bool      `json:"collectionEnabled"`
	DailyLimit        int       `json:"collectionDailyLimit"`
	BatchLimit        int       `json:"collectionBatchLimit"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// Persisted is false when the value was synthesized from defaults.
	Persisted bool `json:"-"`
}

// DefaultUserSettings returns unpersisted settings built from d.
func DefaultUserSettings(userID string, d SettingsDefaults) *UserSettings {
	return &UserSettings{
		UserID:            userID,
		CollectionEnabled: true,
		DailyLimit:        d.DailyLimit,
		BatchLimit:        d.BatchLimit,
	}
}
