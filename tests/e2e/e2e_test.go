//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
)

// credential selects the header a request authenticates with.
type credential struct {
	bearer string
	apiKey string
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// TestE2ESmoke drives a running server through the full lifecycle: an
// owner signs in, an administrator issues a key and sets limits, the
// extension spends the quota, and the key is revoked.
func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("EB_BASE_URL", "http://localhost:8080")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatalf("DATABASE_URL is required for e2e tests")
	}
	secret := os.Getenv("SESSION_JWT_SECRET")
	if secret == "" {
		t.Fatalf("SESSION_JWT_SECRET is required for e2e tests")
	}

	suffix := ulid.Make().String()
	adminSession := sessionFor(t, secret, bootstrapAdmin(t, dbURL, "e2e-admin-"+suffix))
	ownerSession := sessionFor(t, secret, "e2e-owner-"+suffix)
	owner := credential{bearer: ownerSession}
	admin := credential{bearer: adminSession}

	// First bearer request imports the owner.
	var settings model.UserSettings
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/user-settings", owner, nil, &settings); status != http.StatusOK {
		t.Fatalf("expected 200 from user-settings, got %d", status)
	}
	ownerID := settings.UserID
	if ownerID == "" || !settings.CollectionEnabled {
		t.Fatalf("unexpected settings: %+v", settings)
	}

	var check struct {
		IsAdmin bool `json:"isAdmin"`
	}
	doJSON(t, http.MethodGet, baseURL+"/api/v1/admin/check", owner, nil, &check)
	if check.IsAdmin {
		t.Fatal("owner reported as admin")
	}
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/admin/users", owner, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for owner on admin users, got %d", status)
	}

	limits := map[string]any{"collectionDailyLimit": 5, "collectionBatchLimit": 3}
	if status := doJSON(t, http.MethodPut, baseURL+"/api/v1/admin/users/"+ownerID+"/settings", admin, limits, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from limit update, got %d", status)
	}

	var issued model.IssuedAPIKey
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/users/"+ownerID+"/api-keys", admin, map[string]any{"expiresIn": 30}, &issued)
	if status != http.StatusCreated || issued.Key == "" {
		t.Fatalf("expected 201 with key from issuance, got %d", status)
	}
	ext := credential{apiKey: issued.Key}

	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/ingest/validate", ext, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from validate, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/ingest/validate", owner, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("bearer accepted on ingestion route: %d", status)
	}

	// limit 5, batch 3: 3 admitted, 3 rejected, 2 admitted, 1 rejected.
	assertIngest(t, baseURL, ext, 4, http.StatusTooManyRequests, "BATCH_LIMIT_EXCEEDED")
	assertIngest(t, baseURL, ext, 3, 0, "")
	assertIngest(t, baseURL, ext, 3, http.StatusTooManyRequests, "DAILY_LIMIT_EXCEEDED")
	assertIngest(t, baseURL, ext, 2, 0, "")
	assertIngest(t, baseURL, ext, 1, http.StatusTooManyRequests, "DAILY_LIMIT_EXCEEDED")

	var usage model.QuotaUsage
	doJSON(t, http.MethodGet, baseURL+"/api/v1/quota", owner, nil, &usage)
	if usage.Used != 5 || usage.Remaining != 0 {
		t.Fatalf("unexpected usage: %+v", usage)
	}

	if status := doJSON(t, http.MethodPost, baseURL+"/api/v1/user-settings/toggle-collection", owner, map[string]any{"enabled": false}, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from toggle, got %d", status)
	}
	assertIngest(t, baseURL, ext, 1, http.StatusForbidden, "COLLECTION_DISABLED")

	deactivate := fmt.Sprintf("%s/api/v1/admin/users/%s/api-keys/%s/deactivate", baseURL, ownerID, issued.ID)
	if status := doJSON(t, http.MethodPost, deactivate, admin, nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204 from deactivate, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/ingest/validate", ext, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("revoked key still accepted: %d", status)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func bootstrapAdmin(t *testing.T, dbURL, externalID string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer repo.Close()

	user, err := repo.UpsertUser(ctx, ulid.Make().String(), model.UserProfile{ExternalID: externalID}, []string{externalID}, time.Now().UTC())
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if !user.IsAdmin() {
		t.Fatalf("bootstrap user not promoted: %s", user.Role)
	}
	return externalID
}

func sessionFor(t *testing.T, secret, externalID string) string {
	t.Helper()
	token, err := auth.IssueSessionToken(secret, externalID, 10*time.Minute)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return token
}

func assertIngest(t *testing.T, baseURL string, cred credential, n, wantStatus int, wantCode string) {
	t.Helper()

	notes := make([]map[string]any, n)
	for i := range notes {
		notes[i] = map[string]any{"noteId": fmt.Sprintf("e2e-%d", i)}
	}

	var env errorEnvelope
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/notes/batch", cred, map[string]any{"notes": notes}, &env)
	if wantStatus == 0 {
		// Admitted: the upstream, if any, decides the final status.
		if status == http.StatusTooManyRequests || status == http.StatusForbidden || status == http.StatusUnauthorized {
			t.Fatalf("batch of %d rejected with %d (%s)", n, status, env.Error.Code)
		}
		return
	}
	if status != wantStatus || env.Error.Code != wantCode {
		t.Fatalf("batch of %d: expected %d %s, got %d %s", n, wantStatus, wantCode, status, env.Error.Code)
	}
	for _, field := range []string{"used", "limit", "resetAt"} {
		if _, ok := env.Error.Details[field]; !ok {
			t.Errorf("batch of %d: %s rejection missing %s in details", n, wantCode, field)
		}
	}
}

func doJSON(t *testing.T, method, url string, cred credential, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+cred.bearer)
	}
	if cred.apiKey != "" {
		req.Header.Set("X-API-Key", cred.apiKey)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}
