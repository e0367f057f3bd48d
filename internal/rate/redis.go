package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts hits in Redis under <prefix>:rl:<key>. Fixed-window
// semantics: the TTL is set only on the first hit of a window, so the window
// boundary is the first request, not a wall-clock grid.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewRedis creates a limiter allowing limit hits per window per key.
func NewRedis(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + ":rl:" + key
}

// Allow charges one unit. Over the limit it returns a *LimitError with the
// remaining window as retry-after.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := l.key(key)

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > l.limit {
		retryAfter := l.window
		if pttl, err := l.redis.PTTL(ctx, k).Result(); err == nil && pttl > 0 {
			retryAfter = pttl
		}
		return &LimitError{RetryAfter: retryAfter}
	}
	return nil
}

// Reset clears the key's window.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
