package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit is a fixed-window per-IP limiter for the credential endpoints.
// With no Redis client configured it passes everything through, and a limiter
// outage never blocks logins.
func RateLimit(rdb *redis.Client, limit int64, window time.Duration) echo.MiddlewareFunc {
	if rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("ratelimit:%s:%s", c.Path(), c.RealIP())

			// INCR and EXPIRE travel in one pipeline so a counter can never
			// be created without a TTL. ExpireNX only arms the window once.
			pipe := rdb.TxPipeline()
			incr := pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			if _, err := pipe.Exec(ctx); err != nil {
				return next(c)
			}
			if incr.Val() > limit {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}
