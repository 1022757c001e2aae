package model

// AuthScheme names how a request was identified.
type AuthScheme string

// Supported authentication schemes. They are never mixed on one route.
const (
	SchemeSession AuthScheme = "session"
	SchemeAPIKey  AuthScheme = "api_key"
)

// Identity holds the authenticated caller for one request.
// Role is loaded from storage per request and never cached.
type Identity struct {
	UserID     string
	ExternalID string
	Role       Role
	Scheme     AuthScheme
	KeyID      string
	KeyPrefix  string
}

// IsAdmin returns true if the caller is an administrator.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdministrator
}

// GetUserID returns the caller's user ID, or "" for a nil identity.
func (i *Identity) GetUserID() string {
	if i == nil {
		return ""
	}
	return i.UserID
}
