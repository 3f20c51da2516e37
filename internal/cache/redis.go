package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/roombooking/config"
	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var setIfCurrentScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

type RedisCache struct {
	client     redis.UniversalClient
	bookingTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, bookingTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		bookingTTL,
	)
}

func NewRedisCacheWithClient(client redis.UniversalClient, bookingTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, bookingTTL: bookingTTL}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetBookings returns the cached listing, or nil on a miss, together with the listing version.
// The version must be handed back to SetBookings.
func (c *RedisCache) GetBookings(ctx context.Context) ([]domain.BookingSummary, int64, error) {
	vals, err := c.client.MGet(ctx, bookingsKey(), bookingsVersionKey()).Result()
	if err != nil {
		return nil, 0, err
	}
	version, err := parseVersion(vals[1])
	if err != nil {
		return nil, 0, err
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, version, nil
	}
	var bookings []domain.BookingSummary
	if err := json.Unmarshal([]byte(data), &bookings); err != nil {
		return nil, 0, err
	}
	return bookings, version, nil
}

// SetBookings stores the listing only while the version is still the one read before loading it.
// A concurrent InvalidateBookings bumps the version and the stale listing is dropped.
func (c *RedisCache) SetBookings(ctx context.Context, version int64, bookings []domain.BookingSummary) error {
	payload, err := json.Marshal(bookings)
	if err != nil {
		return err
	}
	return setIfCurrentScript.Run(ctx, c.client,
		[]string{bookingsKey(), bookingsVersionKey()},
		strconv.FormatInt(version, 10), payload, c.bookingTTL.Milliseconds(),
	).Err()
}

func (c *RedisCache) InvalidateBookings(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, bookingsVersionKey())
		pipe.Del(ctx, bookingsKey())
		return nil
	})
	return err
}

func (c *RedisCache) AcquireRoomLock(ctx context.Context, room int, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, roomLockKey(room), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (c *RedisCache) ReleaseRoomLock(ctx context.Context, room int, token string) error {
	return releaseScript.Run(ctx, c.client, []string{roomLockKey(room)}, token).Err()
}

func bookingsKey() string {
	return "cache:bookings"
}

func bookingsVersionKey() string {
	return "cache:bookings:version"
}

func parseVersion(v interface{}) (int64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse listing version: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected listing version type %T", v)
	}
}

func roomLockKey(room int) string {
	return fmt.Sprintf("lock:room:%d", room)
}
