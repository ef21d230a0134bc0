package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "booking:ratelimit:"

// slidingWindow trims the sorted set to the window, then admits the hit if
// there is room. Scores are unix milliseconds. It returns
// {allowed, remaining, retry_after_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, 0, retry}
`)

// RedisLimiter shares a sliding window between service instances.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter admits at most limit requests per key within window.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, limit: max(limit, 1), window: window, now: now}
}

// Allow runs the window script atomically on the server.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	nowMillis := l.now().UnixMilli()
	result, err := slidingWindow.Run(ctx, l.client,
		[]string{redisKeyPrefix + HashKey(key)},
		nowMillis,
		l.window.Milliseconds(),
		l.limit,
		strconv.FormatInt(nowMillis, 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", result)
	}

	return Decision{
		Allowed:    result[0] == 1,
		Limit:      l.limit,
		Remaining:  int(result[1]),
		RetryAfter: time.Duration(result[2]) * time.Millisecond,
	}, nil
}
