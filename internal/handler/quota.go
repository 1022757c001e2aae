package handler

import (
	"log/slog"
	"net/http"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/handler/dto"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/service"
)

// QuotaHandler reports usage to the dashboard and the extension.
type QuotaHandler struct {
	logger *slog.Logger
	quota  QuotaService
	gate   Authorizer
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(logger *slog.Logger, quota QuotaService, gate Authorizer) *QuotaHandler {
	return &QuotaHandler{logger: logger, quota: quota, gate: gate}
}

// Current handles GET /api/v1/quota
func (h *QuotaHandler) Current(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewQuota); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	usage, err := h.quota.CurrentUsage(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// Validate handles GET /api/v1/ingest/validate. The extension calls it to
// check its key and show remaining quota.
func (h *QuotaHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := h.gate.Authorize(id, id.GetUserID(), service.OpViewQuota); err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}

	usage, err := h.quota.CurrentUsage(r.Context(), id.UserID)
	if err != nil {
		httperr.FromError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ValidateResponse{
		Valid:     true,
		UserID:    id.UserID,
		KeyPrefix: id.KeyPrefix,
		Usage:     usage,
	})
}
