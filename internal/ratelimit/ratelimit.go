// Package ratelimit throttles outbound WhatsApp traffic with atomic
// Redis counters, keeping every worker process under the shared Cloud
// API budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aremu/jobalert/internal/pkg/logger"
)

// Limits define the outbound message budget.
type Limits struct {
	PerSecond int
	PerMinute int
}

// DefaultLimits stay well under the Cloud API's 80 msg/s tier.
var DefaultLimits = Limits{PerSecond: 40, PerMinute: 1200}

// Lua script for atomic multi-window rate limit check. All windows are
// checked before any counter is incremented.
const checkLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local increment = tonumber(ARGV[1])
local secondLimit = tonumber(ARGV[2])
local minuteLimit = tonumber(ARGV[3])
local secondTTL = tonumber(ARGV[4])
local minuteTTL = tonumber(ARGV[5])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")

if secCurrent + increment > secondLimit then
    return {0, 1, secCurrent}
end
if minCurrent + increment > minuteLimit then
    return {0, 2, minCurrent}
end

local newSec = redis.call("INCRBY", secondKey, increment)
if newSec == increment then
    redis.call("EXPIRE", secondKey, secondTTL)
end

local newMin = redis.call("INCRBY", minuteKey, increment)
if newMin == increment then
    redis.call("EXPIRE", minuteKey, minuteTTL)
end

return {1, 0, newMin}
`

// Limiter enforces the outbound budget across processes.
type Limiter struct {
	redis  *redis.Client
	limits Limits
	prefix string
	script *redis.Script
	now    func() time.Time
}

// New creates a limiter on an existing Redis client.
func New(client *redis.Client, limits Limits) *Limiter {
	if limits.PerSecond <= 0 {
		limits.PerSecond = DefaultLimits.PerSecond
	}
	if limits.PerMinute <= 0 {
		limits.PerMinute = DefaultLimits.PerMinute
	}
	return &Limiter{
		redis:  client,
		limits: limits,
		prefix: "ratelimit:whatsapp",
		script: redis.NewScript(checkLuaScript),
		now:    time.Now,
	}
}

// NewFromURL connects to Redis and verifies the connection.
func NewFromURL(redisURL string, limits Limits) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return New(client, limits), nil
}

// Allow atomically reserves one send slot. When denied it returns the
// time to wait before the next attempt.
func (l *Limiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := l.now()
	secondKey := fmt.Sprintf("%s:sec:%d", l.prefix, now.Unix())
	minuteKey := fmt.Sprintf("%s:min:%d", l.prefix, now.Unix()/60)

	result, err := l.script.Run(ctx, l.redis,
		[]string{secondKey, minuteKey},
		1,
		l.limits.PerSecond,
		l.limits.PerMinute,
		2,   // second TTL
		120, // minute TTL
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}

	switch result[1].(int64) {
	case 1:
		return false, time.Second, nil
	default:
		return false, time.Duration(60-now.Second()) * time.Second, nil
	}
}

// Wait blocks until a send slot is available or ctx is cancelled. On
// Redis errors it lets the send through: a flaky limiter must not stop
// deliveries.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := l.Allow(ctx)
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing send", "error", err.Error())
			return nil
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Usage reports the current counters against their limits.
func (l *Limiter) Usage(ctx context.Context) (map[string]int64, error) {
	now := l.now()
	secondKey := fmt.Sprintf("%s:sec:%d", l.prefix, now.Unix())
	minuteKey := fmt.Sprintf("%s:min:%d", l.prefix, now.Unix()/60)

	pipe := l.redis.Pipeline()
	secCmd := pipe.Get(ctx, secondKey)
	minCmd := pipe.Get(ctx, minuteKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sec, _ := secCmd.Int64()
	min, _ := minCmd.Int64()

	return map[string]int64{
		"second_current": sec,
		"second_limit":   int64(l.limits.PerSecond),
		"minute_current": min,
		"minute_limit":   int64(l.limits.PerMinute),
	}, nil
}

// Ping verifies the Redis connection, for health checks.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *Limiter) Close() error {
	return l.redis.Close()
}
