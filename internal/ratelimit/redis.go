package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts hits with INCR and starts the window with EXPIRE on the first hit, so every
// instance sharing the redis shares the budget.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	limit  Limit
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter returns a limiter whose counters live under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, limit Limit) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{redis: client, prefix: prefix, limit: limit.normalized()}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.limit.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count <= int64(l.limit.Max), nil
}
