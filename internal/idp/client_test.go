package idp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keenchase/edit-business/internal/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthCenter(t *testing.T, validToken string, infoStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/verify-token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body.Token != validToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"userId":"ext-1","unionId":"u-1"}}`))
	})
	mux.HandleFunc("/api/auth/user-info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if infoStatus != http.StatusOK {
			w.WriteHeader(infoStatus)
			_, _ = w.Write([]byte(`{"success":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"userId":"ext-1","profile":{"nickname":"Ann","avatarUrl":"https://img/a.png"}}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_VerifySession(t *testing.T) {
	srv := newAuthCenter(t, "good", http.StatusOK)
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, discardLogger())

	sess, err := c.VerifySession(context.Background(), "good")
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if sess.ExternalID != "ext-1" || sess.Nickname != "Ann" || sess.AvatarURL != "https://img/a.png" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestClient_VerifySession_RejectedToken(t *testing.T) {
	srv := newAuthCenter(t, "good", http.StatusOK)
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, discardLogger())

	_, err := c.VerifySession(context.Background(), "bad")
	if !errors.Is(err, auth.ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestClient_VerifySession_ProfileFailureIsNotFatal(t *testing.T) {
	srv := newAuthCenter(t, "good", http.StatusNotFound)
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, discardLogger())

	sess, err := c.VerifySession(context.Background(), "good")
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if sess.ExternalID != "ext-1" || sess.Nickname != "" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestClient_VerifySession_ServerErrorIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, Retries: 1}, discardLogger())
	_, err := c.VerifySession(context.Background(), "good")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 1 retry (2 calls), got %d", calls.Load())
	}
}

func TestClient_VerifySession_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	// Cleanups run LIFO: unblock the handler before closing the server.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewClient(Options{BaseURL: srv.URL, Timeout: 5 * time.Second}, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.VerifySession(ctx, "good")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("request was not cancelled with the context")
	}
}
