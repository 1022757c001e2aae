package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const quotaKeyPrefix = "quota:daily:"

// quotaIncrementScript adds ARGV[1] to the counter only if the result stays
// within ARGV[2]. Returns {admitted, used}.
var quotaIncrementScript = redis.NewScript(`
	local key = KEYS[1]
	local n = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + n > limit then
		return {0, used}
	end

	used = redis.call('INCRBY', key, n)
	if redis.call('TTL', key) < 0 then
		redis.call('EXPIRE', key, ttl)
	end
	return {1, used}
`)

// quotaRefundScript subtracts ARGV[1] without going below zero.
var quotaRefundScript = redis.NewScript(`
	local key = KEYS[1]
	local n = tonumber(ARGV[1])

	local used = tonumber(redis.call('GET', key) or '0')
	if used <= 0 then
		return 0
	end
	if n > used then
		n = used
	end
	return redis.call('DECRBY', key, n)
`)

// QuotaCounters stores daily quota counters in Redis, one key per user and
// UTC day, expiring after the retention window.
type QuotaCounters struct {
	client    *redis.Client
	retention time.Duration
}

// QuotaCounters returns the Redis quota counter backend.
func (c *Cache) QuotaCounters(retention time.Duration) *QuotaCounters {
	if retention < 24*time.Hour {
		retention = 48 * time.Hour
	}
	return &QuotaCounters{client: c.client, retention: retention}
}

func quotaKey(userID, day string) string {
	return quotaKeyPrefix + userID + ":" + day
}

// Increment atomically adds n for day if the total stays within limit.
func (q *QuotaCounters) Increment(ctx context.Context, userID, day string, n, limit int) (int64, bool, error) {
	res, err := quotaIncrementScript.Run(ctx, q.client,
		[]string{quotaKey(userID, day)},
		n, limit, int64(q.retention.Seconds()),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("increment quota: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("increment quota: unexpected reply %v", res)
	}
	return res[1], res[0] == 1, nil
}

// Used returns the counter for day; a missing key reads as zero.
func (q *QuotaCounters) Used(ctx context.Context, userID, day string) (int64, error) {
	used, err := q.client.Get(ctx, quotaKey(userID, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return used, nil
}

// Refund returns n units for day, flooring the counter at zero.
func (q *QuotaCounters) Refund(ctx context.Context, userID, day string, n int) error {
	if err := quotaRefundScript.Run(ctx, q.client, []string{quotaKey(userID, day)}, n).Err(); err != nil {
		return fmt.Errorf("refund quota: %w", err)
	}
	return nil
}
