package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimit counts requests per client IP inside a fixed window. The
// ingestion and tagging endpoints are expensive; this keeps a misbehaving
// frontend from piling up background jobs.
type rateLimit struct {
	mu       sync.Mutex
	visitors map[string]int
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *rateLimit {
	rl := &rateLimit{
		visitors: make(map[string]int),
		limit:    limit,
		window:   window,
	}
	go rl.resetLoop()
	return rl
}

func (rl *rateLimit) resetLoop() {
	for {
		time.Sleep(rl.window)
		rl.mu.Lock()
		rl.visitors = make(map[string]int)
		rl.mu.Unlock()
	}
}

func (rl *rateLimit) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.mu.Lock()
		ip := c.ClientIP()
		rl.visitors[ip]++
		over := rl.visitors[ip] > rl.limit
		rl.mu.Unlock()

		if over {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, try again later"})
			return
		}
		c.Next()
	}
}
