package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/battle-arena/arena-backend/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Capacity   int64                     // Maximum burst size
	RefillRate int64                     // Requests per second
	KeyFunc    func(*gin.Context) string // Function to extract rate limit key
}

// PlayerKeyFunc X-Player-ID 헤더 기준, 없으면 IP
func PlayerKeyFunc(c *gin.Context) string {
	if playerID := c.GetHeader("X-Player-ID"); playerID != "" {
		return fmt.Sprintf("player:%s", playerID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// IPKeyFunc uses only IP address (for public endpoints)
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	limiter := ratelimit.NewRateLimiter(config.Capacity, config.RefillRate)

	if config.KeyFunc == nil {
		config.KeyFunc = PlayerKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
			c.Header("Retry-After", "1")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per second", config.RefillRate),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limiter.Remaining(key), 10))

		c.Next()
	}
}

// SubmissionRateLimit 플레이어별 제출 제한
func SubmissionRateLimit(burst, perSecond int64) gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Capacity:   burst,
		RefillRate: perSecond,
		KeyFunc:    PlayerKeyFunc,
	})
}

// QueueRateLimit 큐 가입/이탈 제한 (스팸 방지)
func QueueRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Capacity:   10,
		RefillRate: 2,
		KeyFunc:    PlayerKeyFunc,
	})
}

// GeneralAPIRateLimit - 100 burst, 10 requests per second per player/IP
func GeneralAPIRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Capacity:   100,
		RefillRate: 10,
		KeyFunc:    PlayerKeyFunc,
	})
}
