package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"bloggers-platform/backend/internal/device/domain"
)

// ErrRedisUnavailable wraps transport failures from the redis backend.
var ErrRedisUnavailable = errors.New("redis unavailable")

const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if ARGV[4] ~= "" and redis.call("HGET", KEYS[1], "last_token_id") ~= ARGV[4] then
  return 0
end
redis.call("HSET", KEYS[1], "last_active_at", ARGV[1], "last_token_id", ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIREAT", KEYS[1], ARGV[3])
end
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const deleteSessionScript = `
local user_id = redis.call("HGET", KEYS[1], "user_id")
if not user_id then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. user_id, ARGV[2])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisRepository stores each device session as a hash that expires with its window, plus a
// per-user set indexing the user's device ids. Index entries whose hash has expired are pruned
// lazily on ListByUser.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository returns a device session store in the given key namespace.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "ds"
	}
	return &RedisRepository{redis: client, prefix: prefix}
}

func (r *RedisRepository) key(deviceID string) string {
	return r.prefix + ":" + deviceID
}

func (r *RedisRepository) userPrefix() string {
	return r.prefix + "u:"
}

func (r *RedisRepository) userKey(userID string) string {
	return r.userPrefix() + userID
}

func (r *RedisRepository) Create(ctx context.Context, s *domain.Session) error {
	key := r.key(s.DeviceID)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"user_id":        s.UserID,
			"ip":             s.IP,
			"title":          s.Title,
			"issued_at":      formatTime(s.IssuedAt),
			"last_active_at": formatTime(s.LastActiveAt),
			"window_seconds": s.WindowSeconds,
			"last_token_id":  s.LastTokenID,
		})
		if s.WindowSeconds > 0 {
			pipe.ExpireAt(ctx, key, s.ExpiresAt())
		}
		pipe.SAdd(ctx, r.userKey(s.UserID), s.DeviceID)
		return nil
	})
	if err != nil {
		return oops.Code("DEVICE_SESSION_CREATE_FAILED").With("device_id", s.DeviceID).Wrapf(ErrRedisUnavailable, "%v", err)
	}
	return nil
}

func (r *RedisRepository) GetByID(ctx context.Context, deviceID string) (*domain.Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(deviceID)).Result()
	if err != nil {
		return nil, oops.Code("DEVICE_SESSION_QUERY_FAILED").With("device_id", deviceID).Wrapf(ErrRedisUnavailable, "%v", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	s, err := decodeSession(deviceID, fields)
	if err != nil {
		return nil, oops.Code("DEVICE_SESSION_CORRUPT").With("device_id", deviceID).Wrap(err)
	}
	return s, nil
}

func (r *RedisRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, oops.Code("DEVICE_SESSION_LIST_FAILED").With("user_id", userID).Wrapf(ErrRedisUnavailable, "%v", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("DEVICE_SESSION_LIST_FAILED").With("user_id", userID).Wrapf(ErrRedisUnavailable, "%v", err)
	}

	var (
		out   []*domain.Session
		stale []any
	)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		s, err := decodeSession(ids[i], fields)
		if err != nil {
			return nil, oops.Code("DEVICE_SESSION_CORRUPT").With("device_id", ids[i]).Wrap(err)
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		if err := r.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, oops.Code("DEVICE_SESSION_LIST_FAILED").With("user_id", userID).Wrapf(ErrRedisUnavailable, "%v", err)
		}
	}
	sortByActivity(out)
	return out, nil
}

func (r *RedisRepository) Touch(ctx context.Context, deviceID string, lastActiveAt time.Time, prevTokenID, tokenID string) (bool, error) {
	var expireAtMs int64
	s, err := r.GetByID(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}
	if s.WindowSeconds > 0 {
		expireAtMs = lastActiveAt.Add(s.Window()).UnixMilli()
	}
	n, err := touchSessionLua.Run(ctx, r.redis, []string{r.key(deviceID)},
		formatTime(lastActiveAt), tokenID, expireAtMs, prevTokenID).Int64()
	if err != nil {
		return false, oops.Code("DEVICE_SESSION_TOUCH_FAILED").With("device_id", deviceID).Wrapf(ErrRedisUnavailable, "%v", err)
	}
	return n == 1, nil
}

func (r *RedisRepository) Delete(ctx context.Context, deviceID string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, r.redis, []string{r.key(deviceID)}, r.userPrefix(), deviceID).Int64()
	if err != nil {
		return false, oops.Code("DEVICE_SESSION_DELETE_FAILED").With("device_id", deviceID).Wrapf(ErrRedisUnavailable, "%v", err)
	}
	return n == 1, nil
}

// DeleteAllExcept is not atomic across devices: a device created for userID between the index
// read and the deletes survives the call.
func (r *RedisRepository) DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int64, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, oops.Code("DEVICE_SESSION_DELETE_FAILED").With("user_id", userID).Wrapf(ErrRedisUnavailable, "%v", err)
	}

	var dels []*redis.IntCmd
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			if id == keepDeviceID {
				continue
			}
			dels = append(dels, pipe.Del(ctx, r.key(id)))
			pipe.SRem(ctx, userKey, id)
		}
		return nil
	})
	if err != nil {
		return 0, oops.Code("DEVICE_SESSION_DELETE_FAILED").With("user_id", userID).Wrapf(ErrRedisUnavailable, "%v", err)
	}
	var n int64
	for _, cmd := range dels {
		n += cmd.Val()
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixNano(), 10)
}

func parseTime(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func decodeSession(deviceID string, fields map[string]string) (*domain.Session, error) {
	issuedAt, err := parseTime(fields["issued_at"])
	if err != nil {
		return nil, err
	}
	lastActiveAt, err := parseTime(fields["last_active_at"])
	if err != nil {
		return nil, err
	}
	window, err := strconv.ParseInt(fields["window_seconds"], 10, 64)
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		DeviceID:      deviceID,
		UserID:        fields["user_id"],
		IP:            fields["ip"],
		Title:         fields["title"],
		IssuedAt:      issuedAt,
		LastActiveAt:  lastActiveAt,
		WindowSeconds: window,
		LastTokenID:   fields["last_token_id"],
	}, nil
}
