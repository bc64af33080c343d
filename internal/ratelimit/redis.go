package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the sorted set to the window, then adds the
// current request only when fewer than ARGV[3] members remain.
//
// KEYS[1] window key; ARGV[1] now (ms); ARGV[2] window (ms); ARGV[3] limit;
// ARGV[4] unique member.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= limit then
  return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return 1
`)

// RedisLimiter is a sliding-window backend shared by every replica that
// points at the same Redis. Errors fail open.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewRedis creates a Redis-backed limiter. Keys are namespaced with prefix.
func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, logger: logger, now: time.Now}
}

// AllowContext implements Backend.
func (r *RedisLimiter) AllowContext(ctx context.Context, key string, limit int, window time.Duration) bool {
	now := r.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(window.Milliseconds(), 10),
		strconv.Itoa(limit),
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int()
	if err != nil {
		r.logger.Warn("rate limiter unavailable, admitting request", "key", key, "error", err)
		return true
	}
	return res == 1
}

// Ping reports whether Redis is reachable.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
