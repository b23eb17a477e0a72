package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloggers-platform/backend/internal/device/domain"
)

func newRedisRepoTest(t *testing.T) (*RedisRepository, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "miniredis start")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisRepository(rdb, "ds"), mr, rdb
}

func testSession(deviceID, userID string, lastActive time.Time) *domain.Session {
	return &domain.Session{
		DeviceID:      deviceID,
		UserID:        userID,
		IP:            "10.0.0.1",
		Title:         "Chrome",
		IssuedAt:      lastActive,
		LastActiveAt:  lastActive,
		WindowSeconds: int64((20 * 24 * time.Hour).Seconds()),
		LastTokenID:   "jti-0",
	}
}

func TestRedisRepository_CreateGet(t *testing.T) {
	repo, mr, _ := newRedisRepoTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Create(ctx, testSession("d1", "u1", now)))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "Chrome", got.Title)
	assert.True(t, now.Equal(got.LastActiveAt))
	assert.True(t, now.Equal(got.IssuedAt))
	assert.Equal(t, "jti-0", got.LastTokenID)
	assert.Greater(t, mr.TTL("ds:d1"), time.Duration(0), "hash expires with the window")

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisRepository_Touch(t *testing.T) {
	repo, _, _ := newRedisRepoTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Create(ctx, testSession("d1", "u1", now)))

	later := now.Add(time.Minute)
	ok, err := repo.Touch(ctx, "d1", later, "jti-0", "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Touch(ctx, "d1", later.Add(time.Minute), "jti-0", "jti-x")
	require.NoError(t, err)
	assert.False(t, ok, "stale previous token id loses")

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastActiveAt))
	assert.Equal(t, "jti-1", got.LastTokenID)

	ok, err = repo.Touch(ctx, "gone", later, "", "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRepository_DeleteIdempotent(t *testing.T) {
	repo, _, rdb := newRedisRepoTest(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("d1", "u1", time.Now().UTC())))

	ok, err := repo.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := rdb.SMembers(ctx, "dsu:u1").Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisRepository_ListAndDeleteAllExcept(t *testing.T) {
	repo, _, _ := newRedisRepoTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Create(ctx, testSession("d1", "u1", now)))
	require.NoError(t, repo.Create(ctx, testSession("d2", "u1", now.Add(time.Second))))
	require.NoError(t, repo.Create(ctx, testSession("d3", "u1", now.Add(2*time.Second))))
	require.NoError(t, repo.Create(ctx, testSession("x1", "u2", now)))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "d3", list[0].DeviceID, "newest activity first")

	n, err := repo.DeleteAllExcept(ctx, "u1", "d2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d2", list[0].DeviceID)

	other, err := repo.ListByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestRedisRepository_ListPrunesExpired(t *testing.T) {
	repo, mr, rdb := newRedisRepoTest(t)
	ctx := context.Background()
	s := testSession("d1", "u1", time.Now().UTC())
	s.WindowSeconds = 60
	require.NoError(t, repo.Create(ctx, s))

	mr.FastForward(2 * time.Minute)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	members, err := rdb.SMembers(ctx, "dsu:u1").Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}
