package middlewares

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = 24 * time.Hour

// Counter counts hits on key within a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RedisCounter keeps one INCR counter per key that expires with the window.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment %s: %w", key, err)
	}

	// TTL is set only by the hit that created the key
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire %s: %w", key, err)
		}
		return count, window, nil
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// lost its expiry, e.g. the EXPIRE after a crash never ran
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire %s: %w", key, err)
		}
		ttl = window
	}
	return count, ttl, nil
}

// IssueRateLimiter caps the wrapped route at limit calls per day for each
// caller. Signed-in users are counted by id, anonymous reporters by client
// IP. Routes sharing a prefix share the budget.
func IssueRateLimiter(counter Counter, prefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(userIDKey)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		key := prefix + ":" + caller

		count, ttl, err := counter.Hit(c.Request.Context(), key, rateLimitWindow)
		if err != nil {
			log.WithError(err).Error("Rate limiter unavailable")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limiter unavailable"})
			return
		}

		if count > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": ttl.Seconds(),
			})
			return
		}

		c.Next()
	}
}
