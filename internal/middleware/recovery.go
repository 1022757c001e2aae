package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/keenchase/edit-business/internal/httperr"
)

// Recoverer recovers from panics, logs them with the stack and answers
// with the standard 500 envelope.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "Internal server error", nil)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
