package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter budgets query requests per caller over fixed one-minute
// windows. Counters live in Redis so every server instance shares the same
// view of a caller's spend.
type RateLimiter struct {
	client            *Client
	requestsPerMinute int
	burst             int
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute plus a
// burst allowance per window.
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

// Allow records one request for key and reports whether it fits the current
// window's budget, along with the remaining allowance and when the window
// rolls over.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	counterKey := rateLimitPrefix + key
	windowEnd := time.Now().Truncate(time.Minute).Add(time.Minute)

	// INCR and ExpireNX in one round trip; the expiry only sticks on the
	// request that opens the window.
	pipe := r.client.rdb.Pipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.ExpireNX(ctx, counterKey, time.Minute)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, 0, time.Time{}, err
	}

	budget := int64(r.requestsPerMinute + r.burst)
	spent := incr.Val()

	remaining := int(budget - spent)
	if remaining < 0 {
		remaining = 0
	}

	return spent <= budget, remaining, windowEnd, nil
}

// Reset clears the current window for key.
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.rdb.Del(ctx, rateLimitPrefix+key).Err()
}
