// Package model defines domain entities for the application.
package model

import "time"

// Role is the authorization role of a user.
type Role string

// Roles known to the control plane.
const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdministrator
}

// User is a local account linked to an identity-provider subject.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Role       Role      `json:"role"`
	Nickname   string    `json:"nickname,omitempty"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsAdmin returns true if the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdministrator
}

// UserProfile is the subset of identity-provider data copied onto a User.
type UserProfile struct {
	ExternalID string
	Nickname   string
	AvatarURL  string
}
