package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiterTest(t *testing.T, limit Limit) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "miniredis start")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisLimiter(rdb, "rl", limit), mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	l, mr := newRedisLimiterTest(t, Limit{Window: 10 * time.Second, Max: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "login:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
	}
	ok, err := l.Allow(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("rl:login:1.2.3.4"))

	mr.FastForward(10 * time.Second)
	ok, err = l.Allow(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newRedisLimiterTest(t, Limit{})
	mr.Close()

	_, err := l.Allow(context.Background(), "login:1.2.3.4")
	assert.ErrorIs(t, err, ErrUnavailable)
}
