package service

import (
	"github.com/keenchase/edit-business/internal/model"
)

// Operation names an action subject to authorization.
type Operation string

// Operations. Admin-only operations require the administrator role;
// self-only operations may only target the caller; all others allow the
// caller or an administrator.
const (
	OpViewAPIKey       Operation = "api_key.view"
	OpListAPIKeys      Operation = "api_key.list"
	OpDeactivateAPIKey Operation = "api_key.deactivate"
	OpViewSettings     Operation = "settings.view"
	OpToggleCollection Operation = "settings.toggle_collection"
	OpViewQuota        Operation = "quota.view"
	OpViewStats        Operation = "stats.view"
	OpViewProfile      Operation = "user.view"

	OpAdminListUsers    Operation = "admin.users.list"
	OpAdminViewUser     Operation = "admin.users.view"
	OpAdminIssueAPIKey  Operation = "admin.api_key.issue"
	OpAdminUpdateExpiry Operation = "admin.api_key.expiry"
	OpAdminUpdateLimits Operation = "admin.settings.limits"
	OpAdminOverview     Operation = "admin.overview"
)

var adminOnly = map[Operation]bool{
	OpAdminListUsers:    true,
	OpAdminViewUser:     true,
	OpAdminIssueAPIKey:  true,
	OpAdminUpdateExpiry: true,
	OpAdminUpdateLimits: true,
	OpAdminOverview:     true,
}

var selfOnly = map[Operation]bool{
	OpToggleCollection: true,
}

// Gate decides whether an identity may perform an operation on a target
// user. It never looks the target up, so a denial reveals nothing about
// whether the target exists.
type Gate struct{}

// NewGate creates a Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Authorize returns nil if id may perform op on targetUserID.
func (g *Gate) Authorize(id *model.Identity, targetUserID string, op Operation) error {
	if id == nil || id.UserID == "" {
		return ErrUnauthenticated
	}

	switch {
	case adminOnly[op]:
		if id.IsAdmin() {
			return nil
		}
	case selfOnly[op]:
		if id.UserID == targetUserID {
			return nil
		}
	default:
		if id.UserID == targetUserID || id.IsAdmin() {
			return nil
		}
	}
	return ErrForbidden
}

// IsAdmin reports whether id holds the administrator role.
func (g *Gate) IsAdmin(id *model.Identity) bool {
	return id.IsAdmin()
}
