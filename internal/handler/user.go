package handler

import (
	"log/slog"
	"net/http"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/service"
)

// UserHandler serves the caller's own account.
type UserHandler struct {
	logger   *slog.Logger
	profiles ProfileService
	gate     Authorizer
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(logger *slog.Logger, profiles ProfileService, gate Authorizer) *UserHandler {
	return &UserHandler{logger: logger, profiles: profiles, gate: gate}
}

// Me handles GET /api/v1/user/me. The account was imported by SessionAuth.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewProfile); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	user, err := h.profiles.Profile(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
