package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultRateLimit  = 1000
	DefaultRateWindow = time.Minute
)

// RateLimiter is a fixed-window limiter keyed by client IP and route.
type RateLimiter struct {
	redis  RedisClient
	limit  int64
	window time.Duration
	logger *zap.Logger
}

func NewRateLimiter(redis RedisClient, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		redis:  redis,
		limit:  int64(limit),
		window: window,
		logger: logger,
	}
}

func (rl *RateLimiter) key(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	secs := int64(rl.window / time.Second)
	if secs < 1 {
		secs = 1
	}
	bucket := time.Now().Unix() / secs
	return "rate_limit:" + c.ClientIP() + ":" + c.Request.Method + ":" + path + ":" + strconv.FormatInt(bucket, 10)
}

// RateLimit lets requests through when redis is unavailable.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := rl.key(c)

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Error("failed to increment rate limit counter",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.Next()
			return
		}

		if count == 1 {
			if err := rl.redis.Expire(ctx, key, rl.window).Err(); err != nil {
				rl.logger.Error("failed to set rate limit expiry",
					zap.Error(err),
					zap.String("key", key),
				)
			}
		}

		remaining := rl.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
