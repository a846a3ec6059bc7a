package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/ariebrainware/ltt-bedboard/config"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimit  = 120
	defaultRateWindow = time.Minute
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func rateLimitKey(subject, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s", endpoint, subject)
}

// RateLimiter limits requests per device and route. Requests without a device
// id are keyed by client IP. Without Redis every request passes.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit == 0 {
		cfg.Limit = defaultRateLimit
	}
	if cfg.Window == 0 {
		cfg.Window = defaultRateWindow
	}

	return func(c *gin.Context) {
		subject, ok := GetDeviceID(c)
		if !ok {
			subject = c.ClientIP()
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		allowed, err := checkRateLimit(c.Request.Context(), rateLimitKey(subject, endpoint), cfg.Limit, cfg.Window)
		if err != nil {
			// Redis trouble must not take the board down.
			util.LogBoardEvent(util.BoardEvent{
				EventType: util.EventRateLimitExceeded,
				DeviceID:  subject,
				IP:        c.ClientIP(),
				Message:   fmt.Sprintf("Rate limit check failed: %v", err),
			})
			c.Next()
			return
		}

		if !allowed {
			util.LogBoardEvent(util.BoardEvent{
				EventType: util.EventRateLimitExceeded,
				DeviceID:  subject,
				IP:        c.ClientIP(),
				Message:   fmt.Sprintf("Rate limit exceeded for endpoint: %s", endpoint),
			})
			util.CallTooManyRequests(c, util.APIErrorParams{
				Msg: "Too many requests. Please try again later.",
				Err: fmt.Errorf("rate limit exceeded"),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkRateLimit reports whether the request counted under key is within limit.
func checkRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return true, nil
	}

	pipe := rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return incrCmd.Val() <= int64(limit), nil
}

// ResetRateLimit clears the counter of subject on endpoint.
func ResetRateLimit(ctx context.Context, subject, endpoint string) error {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return fmt.Errorf("redis not available")
	}
	return rdb.Del(ctx, rateLimitKey(subject, endpoint)).Err()
}
