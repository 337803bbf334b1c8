package ratelimit

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"aichatgo/internal/redis"
)

// Limiter applies a fixed-window request cap per client per route, counted
// in redis so all instances share one budget. Rate limiting is a boundary
// concern: with no redis client configured the limiter is a passthrough.
type Limiter struct {
	cache  *redis.Client
	limit  int64
	window time.Duration
}

func New(cache *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cache: cache, limit: int64(limit), window: window}
}

// Middleware returns the gin handler enforcing the limit.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.cache == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := fmt.Sprintf("rl:%s:%s", c.FullPath(), c.ClientIP())
		count, err := l.cache.Incr(ctx, key)
		if err != nil {
			// The limiter guards the boundary; a cache outage must not
			// take the service down with it.
			log.Printf("rate limiter unavailable: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := l.cache.ExpireNX(ctx, key, l.window); err != nil {
				log.Printf("rate limiter expire: %v", err)
			}
		}
		if count > l.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
