package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/model"
)

// Admitter admits units of collection for a user.
type Admitter interface {
	Admit(ctx context.Context, userID string, requested int) (*model.QuotaUsage, error)
}

// ItemCounter returns how many records a request body carries.
type ItemCounter func(body []byte) (int, error)

// ErrMalformedBody is returned by counters for bodies they cannot read.
var ErrMalformedBody = errors.New("request body is not valid JSON")

// CountOne is the counter for single-record endpoints.
func CountOne([]byte) (int, error) {
	return 1, nil
}

// CountItems counts the elements of the array under field, or of the
// body itself when it is a top-level array.
func CountItems(field string) ItemCounter {
	return func(body []byte) (int, error) {
		if !gjson.ValidBytes(body) {
			return 0, ErrMalformedBody
		}
		root := gjson.ParseBytes(body)
		if root.IsArray() {
			return int(root.Get("#").Int()), nil
		}
		if arr := root.Get(field); arr.IsArray() {
			return int(arr.Get("#").Int()), nil
		}
		return 0, nil
	}
}

// Admission records what the gate admitted for this request.
type Admission struct {
	UserID string
	Units  int
	Usage  *model.QuotaUsage
}

type admissionKey struct{}

// AdmissionFromContext returns the admission stored by IngestGate.
func AdmissionFromContext(ctx context.Context) *Admission {
	a, _ := ctx.Value(admissionKey{}).(*Admission)
	return a
}

// IngestConfig configures the ingestion gate.
type IngestConfig struct {
	Logger   *slog.Logger
	Admitter Admitter
	MaxBody  int64
}

// IngestGate counts the records in the body, checks the kill switch and
// charges the quota before the request may continue. The body is handed
// on unchanged. Must be applied after APIKeyAuth.
func IngestGate(cfg IngestConfig, count ItemCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				httperr.Unauthorized(w)
				return
			}

			body, err := readBody(w, r, cfg.MaxBody)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httperr.Write(w, http.StatusRequestEntityTooLarge, httperr.CodePayloadTooLarge, "Request body too large", nil)
					return
				}
				httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidRequest, "Unable to read request body", nil)
				return
			}

			n, err := count(body)
			if err != nil {
				httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidRequest, err.Error(), nil)
				return
			}

			usage, err := cfg.Admitter.Admit(r.Context(), id.UserID, n)
			if err != nil {
				cfg.Logger.Info("ingestion rejected",
					slog.String("user_id", id.UserID),
					slog.Int("requested", n),
					slog.String("reason", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				httperr.FromError(w, cfg.Logger, err)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			ctx := context.WithValue(r.Context(), admissionKey{}, &Admission{UserID: id.UserID, Units: n, Usage: usage})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	var src io.Reader = r.Body
	if limit > 0 {
		src = http.MaxBytesReader(w, r.Body, limit)
	}
	return io.ReadAll(src)
}
