package model

import "time"

// UserStats counts the records a user has collected.
type UserStats struct {
	TotalNotes    int64 `json:"totalNotes" db:"total_notes"`
	TotalBloggers int64 `json:"totalBloggers" db:"total_bloggers"`
}

// UserSummary is one row of the admin user listing.
type UserSummary struct {
	ID            string    `json:"id" db:"id"`
	ExternalID    string    `json:"externalId" db:"external_id"`
	Role          Role      `json:"role" db:"role"`
	Nickname      string    `json:"nickname,omitempty" db:"nickname"`
	AvatarURL     string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	TotalNotes    int64     `json:"totalNotes" db:"total_notes"`
	TotalBloggers int64     `json:"totalBloggers" db:"total_bloggers"`
	HasActiveKey  bool      `json:"hasActiveKey" db:"has_active_key"`
}

// UserPage is a page of the admin user listing.
type UserPage struct {
	Items      []UserSummary `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalPages int           `json:"totalPages"`
}

// UserDetail aggregates everything an administrator sees for one user.
type UserDetail struct {
	User     *User            `json:"user"`
	Stats    UserStats        `json:"stats"`
	Settings *UserSettings    `json:"settings"`
	APIKeys  []APIKeyResponse `json:"apiKeys"`
	Usage    *QuotaUsage      `json:"usage"`
}

// Overview holds system-wide totals.
type Overview struct {
	TotalUsers    int64 `json:"totalUsers"`
	TotalNotes    int64 `json:"totalNotes"`
	TotalBloggers int64 `json:"totalBloggers"`
	ActiveAPIKeys int64 `json:"activeApiKeys"`
}
