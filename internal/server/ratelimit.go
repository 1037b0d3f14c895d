package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// tokenBucketScript implements an atomic token bucket per key. State lives in
// a redis hash so the limit holds across replicas of this service.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_per_s = tonumber(ARGV[3])
	local ttl_s = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'refilled_ms')
	local tokens = tonumber(state[1])
	local refilled = tonumber(state[2])
	if tokens == nil or refilled == nil then
		tokens = capacity
		refilled = now_ms
	end

	local elapsed = math.max(0, now_ms - refilled)
	tokens = math.min(capacity, tokens + (elapsed / 1000) * refill_per_s)

	local allowed = 0
	if tokens >= 1 then
		allowed = 1
		tokens = tokens - 1
	end

	redis.call('HMSET', key, 'tokens', tokens, 'refilled_ms', now_ms)
	redis.call('EXPIRE', key, ttl_s)
	return { allowed, math.floor(tokens) }
`)

// RateLimitConfig tunes the presence write limiter.
type RateLimitConfig struct {
	Burst     int
	PerSecond int
}

// NewPresenceRateLimit returns a middleware limiting presence broadcasts per
// user via a redis-backed token bucket. A nil client disables limiting; a
// redis failure fails open.
func NewPresenceRateLimit(client *redis.Client, cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if client == nil || cfg.Burst <= 0 || cfg.PerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		subject := c.GetString(userIDContextKey)
		if subject == "" {
			subject = c.ClientIP()
		}
		key := "movee:ratelimit:presence:" + subject

		args := []interface{}{
			time.Now().UnixMilli(),
			cfg.Burst,
			cfg.PerSecond,
			int64((time.Duration(cfg.Burst/cfg.PerSecond+1) * time.Second).Seconds()),
		}
		values, err := tokenBucketScript.Run(c.Request.Context(), client, []string{key}, args...).Int64Slice()
		if err != nil || len(values) != 2 {
			logger.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(values[1], 10))
		if values[0] != 1 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests"})
			return
		}
		c.Next()
	}
}
