package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Allow counts one request against a fixed window for key. It returns whether the
// request fits inside limit and how long until the window resets.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 || window <= 0 {
		return true, 0, nil
	}

	now := c.now()
	slot := now.UnixNano() / int64(window)
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, slot)

	var incr *redis.IntCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, window)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("counting request: %w", err)
	}

	resetIn := time.Duration((slot+1)*int64(window) - now.UnixNano())
	return incr.Val() <= int64(limit), resetIn, nil
}
