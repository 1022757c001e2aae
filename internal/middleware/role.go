package middleware

import (
	"log/slog"
	"net/http"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/httperr"
)

// RequireAdmin rejects callers without the administrator role.
// Must be applied after SessionAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				httperr.Unauthorized(w)
				return
			}
			if !id.IsAdmin() {
				logger.Warn("admin access denied",
					slog.String("user_id", id.UserID),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				httperr.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
