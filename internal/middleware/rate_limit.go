package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-judge/internal/utils"
)

// RateLimit throttles each authenticated user (or client IP when anonymous)
// to max requests per window for the named bucket. Exceeding the budget
// yields a 429 envelope.
func RateLimit(bucket string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return bucket + ":" + rateLimitSubject(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many code runs, slow down", fiber.Map{
				"retry_after_seconds": int(window.Seconds()),
			})
		},
	})
}

func rateLimitSubject(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalUserID).(uint); ok && id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.IP()
}
