package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suryadevkumar/SheSecure-sub000/internal/utils"
)

// RateLimiter tracks per-client token buckets
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	burst    int
	cleanup  time.Duration
}

type visitor struct {
	tokens   int
	lastFill time.Time
	lastSeen time.Time
}

// NewRateLimiter creates a limiter refilling rate tokens per second up to
// burst capacity
func NewRateLimiter(rate, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    burst,
		cleanup:  3 * time.Minute,
	}
	go rl.cleanupVisitors()
	return rl
}

// Allow reports whether a request from key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{tokens: rl.burst, lastFill: now}
		rl.visitors[key] = v
	}

	refill := int(now.Sub(v.lastFill).Seconds()) * rl.rate
	if refill > 0 {
		v.tokens += refill
		if v.tokens > rl.burst {
			v.tokens = rl.burst
		}
		v.lastFill = now
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(rl.cleanup)

		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.cleanup {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

var (
	// Recovery query and other API calls
	apiLimiter = NewRateLimiter(50, 20)

	// New WebSocket connections; reconnect storms should back off, not
	// hammer the upgrade endpoint
	wsLimiter = NewRateLimiter(5, 10)
)

// RateLimit limits API requests per client
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !apiLimiter.Allow(clientKey(c)) {
			c.Header("Retry-After", "1")
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebSocketRateLimit limits connection attempts per client
func WebSocketRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !wsLimiter.Allow(clientKey(c)) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Connection rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return userID
	}
	return c.ClientIP()
}
