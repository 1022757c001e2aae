package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestValidateID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"valid ulid", "01HV6Z8K3Q9X4M2N7P5R1T0W8Y", nil},
		{"empty", "", ErrInvalidID},
		{"too short", "01HV6Z8K3Q", ErrInvalidID},
		{"invalid characters", "01HV6Z8K3Q9X4M2N7P5R1T0WUU", ErrInvalidID},
		{"sql fragment", "1' OR '1'='1'--------------", ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidateID(tt.id); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateID(%q) = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIDParams(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.With(ValidateIDParams(ParamUserID, ParamKeyID)).
		Get("/users/{userId}/keys/{keyId}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	tests := []struct {
		path string
		want int
	}{
		{"/users/01HV6Z8K3Q9X4M2N7P5R1T0W8Y/keys/01HV6Z8K3Q9X4M2N7P5R1T0W8Z", http.StatusOK},
		{"/users/not-an-id/keys/01HV6Z8K3Q9X4M2N7P5R1T0W8Z", http.StatusNotFound},
		{"/users/01HV6Z8K3Q9X4M2N7P5R1T0W8Y/keys/x", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}
