package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// WindowCounter increments a fixed-window counter and reports its new value.
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter implements WindowCounter with INCR + EXPIRE.
type RedisCounter struct {
	rdb redis.Cmdable
}

func NewRedisCounter(rdb redis.Cmdable) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Set expiration on first request
	if count == 1 {
		r.rdb.Expire(ctx, key, window)
	}
	return count, nil
}

// RateLimit limits requests per user (or per IP for anonymous callers) within
// a fixed window. The bucket name separates independent limits, e.g. "chat".
// It fails open when the counter is unavailable.
func RateLimit(counter WindowCounter, bucket string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip rate limiting for health checks
		if c.FullPath() == "/health" {
			c.Next()
			return
		}

		subject := GetUserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		key := "ratelimit:" + bucket + ":" + subject

		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		count, err := counter.Incr(ctx, key, window)
		cancel()
		if err != nil {
			// Fail open - don't block requests if Redis is down
			slog.Warn("Rate limiter unavailable", "bucket", bucket, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{
					"retry_after": int(window.Seconds()),
					"limit":       limit,
					"bucket":      bucket,
				})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
