package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Set stores value under key. A zero ttl keeps it until deleted.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.store.Get(ctx, key).Result()
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.store.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one hit against scope in the current window and
// reports whether the count is still within limit. Windows are aligned to
// the epoch and each gets its own key. The expiry is re-asserted on every
// hit so a lost EXPIRE cannot leave a counter behind.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		return false, 0, fmt.Errorf("window must be positive")
	}
	bucket := c.now().UnixNano() / int64(window)
	key := c.rateLimitKey(scope, strconv.FormatInt(bucket, 10))

	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if err := c.store.ExpireNX(ctx, key, window).Err(); err != nil {
		return false, count, fmt.Errorf("expire %s: %w", key, err)
	}
	return count <= limit, count, nil
}
