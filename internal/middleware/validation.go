package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/keenchase/edit-business/internal/httperr"
)

// Path parameter names carrying entity ids.
const (
	ParamUserID = "userId"
	ParamKeyID  = "keyId"
)

// ErrInvalidID is returned for ids that are not ULIDs.
var ErrInvalidID = errors.New("invalid identifier")

// ValidateID checks that s is a canonical ULID.
func ValidateID(s string) error {
	if len(s) != ulid.EncodedSize {
		return ErrInvalidID
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return ErrInvalidID
	}
	return nil
}

// ValidateIDParams rejects requests whose named chi URL parameters are
// present but not ULIDs. A malformed id can never name an entity, so it is
// reported as not found.
func ValidateIDParams(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range params {
				v := chi.URLParam(r, p)
				if v == "" {
					continue
				}
				if err := ValidateID(v); err != nil {
					httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "Resource not found", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
