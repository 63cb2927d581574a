package middleware

import (
	"strconv"
	"time"

	"github.com/ads-hunter/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware is a fixed-window counter per caller. Mounted before auth it keys on the
// client IP; mounted after, on the tenant. Redis errors let the request through.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if id := GetTenantID(c); id != uuid.Nil {
			subject = "tenant:" + id.String()
		}
		bucket := time.Now().Unix() / int64(window.Seconds())
		key := "rl:" + subject + ":" + strconv.FormatInt(bucket, 10)

		ctx := c.UserContext()
		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			return c.Next()
		}

		count := incr.Val()
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			c.Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error:     "rate limit exceeded",
				Code:      "rate_limited",
				RequestID: GetRequestID(c),
			})
		}
		return c.Next()
	}
}
