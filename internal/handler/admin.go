package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/handler/dto"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/middleware"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/service"
)

// AdminHandler serves the administrator endpoints. Every action is
// authorized before the target user is looked up.
type AdminHandler struct {
	logger   *slog.Logger
	admin    AdminService
	creds    CredentialService
	settings SettingsService
	gate     Authorizer
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(logger *slog.Logger, admin AdminService, creds CredentialService, settings SettingsService, gate Authorizer) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		admin:    admin,
		creds:    creds,
		settings: settings,
		gate:     gate,
	}
}

// Check handles GET /api/v1/admin/check
func (h *AdminHandler) Check(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		httperr.Unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, dto.AdminCheckResponse{IsAdmin: id.IsAdmin()})
}

// ListUsers handles GET /api/v1/admin/users?page=&size=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r, "", service.OpAdminListUsers)
	if !ok {
		return
	}

	page, err := intQuery(r, "page")
	if err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidArgument, "page must be an integer", nil)
		return
	}
	size, err := intQuery(r, "size")
	if err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidArgument, "size must be an integer", nil)
		return
	}

	result, err := h.admin.ListUsers(r.Context(), page, size)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	h.logger.Debug("admin listed users", slog.String("admin_id", id.UserID), slog.Int("page", result.Page))
	writeJSON(w, http.StatusOK, result)
}

// GetUser handles GET /api/v1/admin/users/{userId}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, middleware.ParamUserID)
	if _, ok := h.authorize(w, r, target, service.OpAdminViewUser); !ok {
		return
	}

	detail, err := h.admin.GetUserDetail(r.Context(), target)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// IssueAPIKey handles POST /api/v1/admin/users/{userId}/api-keys
func (h *AdminHandler) IssueAPIKey(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, middleware.ParamUserID)
	id, ok := h.authorize(w, r, target, service.OpAdminIssueAPIKey)
	if !ok {
		return
	}

	var req dto.ExpiryRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}

	issued, err := h.creds.CreateForUser(r.Context(), id.UserID, target, req.ExpiresIn)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// UpdateAPIKeyExpiry handles PATCH /api/v1/admin/users/{userId}/api-keys/{keyId}/expiry
func (h *AdminHandler) UpdateAPIKeyExpiry(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, middleware.ParamUserID)
	id, ok := h.authorize(w, r, target, service.OpAdminUpdateExpiry)
	if !ok {
		return
	}

	var req dto.ExpiryRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}

	key, err := h.creds.UpdateExpiry(r.Context(), id.UserID, target, chi.URLParam(r, middleware.ParamKeyID), req.ExpiresIn)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// DeactivateAPIKey handles POST /api/v1/admin/users/{userId}/api-keys/{keyId}/deactivate
func (h *AdminHandler) DeactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, middleware.ParamUserID)
	id, ok := h.authorize(w, r, target, service.OpDeactivateAPIKey)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, middleware.ParamKeyID)
	if err := h.creds.Deactivate(r.Context(), target, keyID); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	h.logger.Info("admin deactivated api key",
		slog.String("admin_id", id.UserID),
		slog.String("user_id", target),
		slog.String("key_id", keyID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings handles PUT /api/v1/admin/users/{userId}/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, middleware.ParamUserID)
	id, ok := h.authorize(w, r, target, service.OpAdminUpdateLimits)
	if !ok {
		return
	}

	var req dto.UpdateLimitsRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}

	settings, err := h.settings.UpdateLimits(r.Context(), id.UserID, target, req.CollectionDailyLimit, req.CollectionBatchLimit)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Overview handles GET /api/v1/admin/stats/overview
func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, "", service.OpAdminOverview); !ok {
		return
	}

	overview, err := h.admin.Overview(r.Context())
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Stats handles GET /api/v1/stats for the caller's own collection totals.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewStats); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	stats, err := h.admin.UserStats(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request, target string, op service.Operation) (*model.Identity, bool) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, target, op); err != nil {
		httperr.FromError(w, h.logger, err)
		return nil, false
	}
	return id, true
}

// intQuery parses an optional integer query parameter. Absent means 0.
func intQuery(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
