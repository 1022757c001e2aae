package handler

import (
	"log/slog"
	"net/http"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/handler/dto"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/service"
)

// SettingsHandler serves the caller's collection settings.
type SettingsHandler struct {
	logger   *slog.Logger
	settings SettingsService
	gate     Authorizer
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(logger *slog.Logger, settings SettingsService, gate Authorizer) *SettingsHandler {
	return &SettingsHandler{logger: logger, settings: settings, gate: gate}
}

// GetOrCreate handles GET and POST /api/v1/user-settings
func (h *SettingsHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewSettings); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	settings, err := h.settings.GetOrCreate(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ToggleCollection handles POST /api/v1/user-settings/toggle-collection
func (h *SettingsHandler) ToggleCollection(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpToggleCollection); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	var req dto.ToggleCollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}
	if req.Enabled == nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidArgument, "enabled is required", nil)
		return
	}

	settings, err := h.settings.ToggleCollection(r.Context(), id.UserID, *req.Enabled)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
