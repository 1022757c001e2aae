// Package handler provides HTTP request handlers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/service"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "edit-business"

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Authorizer decides whether an identity may act on a user.
type Authorizer interface {
	Authorize(id *model.Identity, targetUserID string, op service.Operation) error
}

// CredentialService manages API keys.
type CredentialService interface {
	GetOrCreate(ctx context.Context, userID string) (*model.IssuedAPIKey, error)
	CreateForUser(ctx context.Context, adminID, targetUserID string, expiresInDays *int) (*model.IssuedAPIKey, error)
	UpdateExpiry(ctx context.Context, adminID, targetUserID, keyID string, expiresInDays *int) (*model.APIKeyResponse, error)
	List(ctx context.Context, userID string) ([]model.APIKeyResponse, error)
	Deactivate(ctx context.Context, userID, keyID string) error
	Stats(ctx context.Context, userID string) (*model.APIKeyStats, error)
}

// ProfileService reads the caller's local account.
type ProfileService interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// SettingsService manages collection settings.
type SettingsService interface {
	GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error)
	ToggleCollection(ctx context.Context, userID string, enabled bool) (*model.UserSettings, error)
	UpdateLimits(ctx context.Context, adminID, targetUserID string, daily, batch *int) (*model.UserSettings, error)
}

// QuotaService reports and refunds usage.
type QuotaService interface {
	CurrentUsage(ctx context.Context, userID string) (*model.QuotaUsage, error)
	RefundDay(ctx context.Context, userID, day string, n int) error
}

// AdminService serves the administrator read models.
type AdminService interface {
	ListUsers(ctx context.Context, page, size int) (*model.UserPage, error)
	GetUserDetail(ctx context.Context, userID string) (*model.UserDetail, error)
	Overview(ctx context.Context) (*model.Overview, error)
	UserStats(ctx context.Context, userID string) (model.UserStats, error)
}

// Handler serves the root and fallback routes.
type Handler struct {
	started time.Time
}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{started: time.Now()}
}

// Index describes the service.
// GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": ServiceName,
		"version": Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "Resource not found", nil)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httperr.Write(w, http.StatusMethodNotAllowed, httperr.CodeMethodNotAllowed, "Method not allowed", nil)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func invalidBody(w http.ResponseWriter) {
	httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidRequest, "Invalid request body", nil)
}
