package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for an atomic sliding-window admission. The sorted set holds
// one member per admitted call scored by its admission time in ms.
const slidingWindowLuaScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count < limit then
    redis.call("ZADD", key, now, member)
    redis.call("PEXPIRE", key, window)
    return {1, 0}
end

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
    wait = 1
end
return {0, wait}
`

// RedisWindow is a SlidingWindow whose call log lives in a Redis sorted set
// so several processes share one budget.
type RedisWindow struct {
	client *redis.Client
	key    string
	limit  int
	window time.Duration
	script *redis.Script

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRedisWindow creates a distributed limiter on the given key.
func NewRedisWindow(client *redis.Client, key string, limit int, window time.Duration) *RedisWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindow{
		client: client,
		key:    "ratelimit:" + key,
		limit:  limit,
		window: window,
		script: redis.NewScript(slidingWindowLuaScript),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// NewRedisWindowFromURL connects to Redis and returns a distributed limiter.
func NewRedisWindowFromURL(ctx context.Context, redisURL, key string, limit int, window time.Duration) (*RedisWindow, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[RateLimiter] Connected to Redis, budget %d per %s on %q", limit, window, key)
	return NewRedisWindow(client, key, limit, window), nil
}

// WithClock replaces the time source and the wait primitive.
func (w *RedisWindow) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *RedisWindow {
	w.now = now
	w.sleep = sleep
	return w
}

// Acquire blocks until the shared window admits the call.
func (w *RedisWindow) Acquire(ctx context.Context) error {
	member := randomMember()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := w.script.Run(ctx, w.client, []string{w.key},
			w.now().UnixMilli(), w.window.Milliseconds(), w.limit, member).Int64Slice()
		if err != nil {
			return fmt.Errorf("ratelimit: redis admission: %w", err)
		}
		if len(res) == 2 && res[0] == 1 {
			return nil
		}
		wait := time.Duration(res[1]) * time.Millisecond
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func randomMember() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
