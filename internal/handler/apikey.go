package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/handler/dto"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/middleware"
	"github.com/keenchase/edit-business/internal/service"
)

// APIKeyHandler serves the self-service key endpoints.
type APIKeyHandler struct {
	logger *slog.Logger
	creds  CredentialService
	gate   Authorizer
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(logger *slog.Logger, creds CredentialService, gate Authorizer) *APIKeyHandler {
	return &APIKeyHandler{logger: logger, creds: creds, gate: gate}
}

// GetOrCreate handles GET /api/v1/api-keys/get-or-create
func (h *APIKeyHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewAPIKey); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	key, err := h.creds.GetOrCreate(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if key.Key != "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, key)
}

// List handles GET /api/v1/api-keys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpListAPIKeys); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	keys, err := h.creds.List(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.APIKeyListResponse{Items: keys})
}

// Deactivate handles POST /api/v1/api-keys/{keyId}/deactivate
func (h *APIKeyHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpDeactivateAPIKey); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	if err := h.creds.Deactivate(r.Context(), id.UserID, chi.URLParam(r, middleware.ParamKeyID)); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/api-keys/stats
func (h *APIKeyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewAPIKey); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	stats, err := h.creds.Stats(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
