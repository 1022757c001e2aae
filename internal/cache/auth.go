package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keenchase/edit-business/internal/auth"
)

const (
	verifiedKeyPrefix = "auth:key:"
	sessionPrefix     = "auth:session:"
)

// GetVerifiedKeyID returns the key ID previously verified for a secret hash.
// A miss returns ok=false with a nil error.
func (c *Cache) GetVerifiedKeyID(ctx context.Context, secretHash string) (string, bool, error) {
	id, err := c.client.Get(ctx, verifiedKeyPrefix+secretHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get verified key: %w", err)
	}
	return id, true, nil
}

// SetVerifiedKeyID remembers that secretHash verified against keyID.
func (c *Cache) SetVerifiedKeyID(ctx context.Context, secretHash, keyID string, ttl time.Duration) error {
	return c.client.Set(ctx, verifiedKeyPrefix+secretHash, keyID, ttl).Err()
}

// DeleteVerifiedKeyID forgets a verification result.
func (c *Cache) DeleteVerifiedKeyID(ctx context.Context, secretHash string) error {
	return c.client.Del(ctx, verifiedKeyPrefix+secretHash).Err()
}

// GetSession returns a cached verified session for a token hash.
// Corrupted entries are treated as misses.
func (c *Cache) GetSession(ctx context.Context, tokenHash string) (*auth.Session, bool, error) {
	data, err := c.client.Get(ctx, sessionPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}

	var sess auth.Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.ExternalID == "" {
		return nil, false, nil
	}
	return &sess, true, nil
}

// SetSession caches a verified session. Only identity is stored; roles are
// always read from the database.
func (c *Cache) SetSession(ctx context.Context, tokenHash string, sess *auth.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return c.client.Set(ctx, sessionPrefix+tokenHash, data, ttl).Err()
}
