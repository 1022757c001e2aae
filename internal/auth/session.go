package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession indicates the bearer token was rejected.
var ErrInvalidSession = errors.New("invalid session token")

// Session is what an identity provider asserts about a bearer token.
// A zero ExpiresAt means the provider did not state one.
type Session struct {
	ExternalID string    `json:"external_id"`
	Nickname   string    `json:"nickname,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the session is past its stated expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionVerifier turns an opaque bearer token into a Session.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*Session, error)
}

// SessionClaims are the JWT claims carried by dashboard session tokens.
type SessionClaims struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 session tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

// VerifySession implements SessionVerifier.
func (v *JWTVerifier) VerifySession(_ context.Context, token string) (*Session, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.UserID == "" {
		return nil, ErrInvalidSession
	}

	sess := &Session{
		ExternalID: claims.UserID,
		Nickname:   claims.Nickname,
		AvatarURL:  claims.AvatarURL,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// IssueSessionToken signs a session token for externalID valid for ttl.
func IssueSessionToken(secret, externalID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: externalID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}
