package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter counts login attempts per identifier in a rolling window.
// Keys expire on their own, so there is nothing to clean up.
type LoginLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLoginLimiter(client *redis.Client, limit int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow records one attempt for key and reports whether it is still under the
// limit. The first attempt in a window sets the key's expiry.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil || l.limit <= 0 {
		return true, nil
	}

	redisKey := fmt.Sprintf("login_attempts:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("incr login attempts: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire login attempts: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

// Reset forgets the attempt counter for key, called after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, key string) error {
	if l.client == nil {
		return nil
	}
	return l.client.Del(ctx, fmt.Sprintf("login_attempts:%s", key)).Err()
}
