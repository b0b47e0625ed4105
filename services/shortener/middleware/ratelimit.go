package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/artromone/linkpulse/pkg/ratelimit"
)

type RateLimiter struct {
	limiter *ratelimit.Limiter
	keyFunc func(c *gin.Context) string
}

// NewRateLimiter limits each client to rate requests per window. keyFunc
// picks the client key and defaults to gin's ClientIP.
func NewRateLimiter(rate int, per time.Duration, keyFunc func(c *gin.Context) string) *RateLimiter {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	return &RateLimiter{
		limiter: ratelimit.New(rate, per),
		keyFunc: keyFunc,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow(rl.keyFunc(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) Stop() {
	rl.limiter.Stop()
}
