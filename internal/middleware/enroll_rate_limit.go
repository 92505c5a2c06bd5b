package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const defaultEnrollPerMin = 10

// EnrollRateLimit caps bulk enrollments per client IP in fixed one-minute windows kept
// in Redis. It is a no-op without Redis and fails open on cache errors.
func EnrollRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultEnrollPerMin
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		window := time.Now().Unix() / 60
		key := "rl:enroll:" + c.IP() + ":" + strconv.FormatInt(window, 10)

		var incr *redis.IntCmd
		_, err := cache.TxPipelined(c.UserContext(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.UserContext(), key)
			pipe.Expire(c.UserContext(), key, time.Minute)
			return nil
		})
		if err != nil {
			if logger != nil {
				logger.Warn("enroll rate limit unavailable", slog.Any("error", err))
			}
			return c.Next()
		}

		cnt := incr.Val()
		remaining := int64(maxPerMin) - cnt
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many enrollment requests, try again later")
		}
		return c.Next()
	}
}
