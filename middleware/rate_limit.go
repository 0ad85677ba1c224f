package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientBucket counts requests from one client within the current window
type clientBucket struct {
	count       int
	windowStart time.Time
}

// RateLimiter caps requests per client IP over a fixed window. Each client
// gets its own window so one chatty uploader cannot reset everyone else.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rate    int
	window  time.Duration
}

// NewRateLimiter creates a limiter allowing rate requests per window
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*clientBucket),
		rate:    rate,
		window:  window,
	}
}

// Allow records one request from the client and reports whether it is
// within the limit
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	bucket, ok := rl.buckets[clientIP]
	if !ok || now.Sub(bucket.windowStart) > rl.window {
		rl.buckets[clientIP] = &clientBucket{count: 1, windowStart: now}
		return true
	}

	if bucket.count >= rl.rate {
		return false
	}
	bucket.count++
	return true
}

// RateLimit middleware limits requests per IP
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			slog.Warn("rate limit exceeded",
				"client_ip", clientIP,
				"request_id", GetRequestID(c),
			)

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
