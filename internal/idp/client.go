// Package idp is a client for the external identity provider ("auth center")
// that issues dashboard bearer tokens.
package idp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/keenchase/edit-business/internal/auth"
)

// ErrUnavailable indicates the provider could not be reached or answered
// with a server error. It is distinct from a rejected token.
var ErrUnavailable = errors.New("identity provider unavailable")

// Client verifies bearer tokens against the auth center.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data,omitempty"`
}

type verifyData struct {
	UserID  string `json:"userId"`
	UnionID string `json:"unionId"`
}

type userInfoData struct {
	UserID  string `json:"userId"`
	UnionID string `json:"unionId"`
	Profile struct {
		Nickname  string `json:"nickname"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"profile"`
}

// NewClient creates an auth center client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second)
	c.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r != nil && r.StatusCode() >= http.StatusInternalServerError
	})

	return &Client{http: c, logger: logger}
}

// VerifySession implements auth.SessionVerifier.
// The profile lookup is best effort; a verified token with no profile still
// yields a session.
func (c *Client) VerifySession(ctx context.Context, token string) (*auth.Session, error) {
	var verified envelope[verifyData]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"token": token}).
		SetResult(&verified).
		SetError(&verified).
		Post("/api/auth/verify-token")
	if err != nil {
		return nil, fmt.Errorf("%w: verify token: %w", ErrUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: verify token: status %d", ErrUnavailable, resp.StatusCode())
	}
	if resp.IsError() || !verified.Success || verified.Data == nil || verified.Data.UserID == "" {
		return nil, auth.ErrInvalidSession
	}

	sess := &auth.Session{ExternalID: verified.Data.UserID}

	info, err := c.userInfo(ctx, token)
	if err != nil {
		c.logger.Warn("auth center user info lookup failed",
			slog.String("external_id", sess.ExternalID),
			slog.String("error", err.Error()),
		)
		return sess, nil
	}
	if info.UserID != "" && info.UserID != sess.ExternalID {
		return nil, auth.ErrInvalidSession
	}
	sess.Nickname = info.Profile.Nickname
	sess.AvatarURL = info.Profile.AvatarURL
	return sess, nil
}

func (c *Client) userInfo(ctx context.Context, token string) (*userInfoData, error) {
	var out envelope[userInfoData]
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		SetError(&out).
		Get("/api/auth/user-info")
	if err != nil {
		return nil, err
	}
	if resp.IsError() || !out.Success || out.Data == nil {
		return nil, fmt.Errorf("user info: status %d: %s", resp.StatusCode(), out.Message)
	}
	return out.Data, nil
}
