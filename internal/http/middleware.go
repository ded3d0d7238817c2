package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/UncleMcDonald/SmartScrape/internal/metrics"
)

// requestLogMiddleware assigns a request id and records logs and metrics
// for every request.
func requestLogMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)

		err := c.Next()
		if err != nil {
			// Let the app error handler set the status before it is recorded.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		attrs := []any{
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		if n := c.Locals("url_count"); n != nil {
			attrs = append(attrs, "urls", n)
		}
		logger.Info("request", attrs...)

		return err
	}
}

// counterStore is the subset of redis used by the rate limiter.
type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// rateLimitMiddleware enforces a per-minute fixed-window limit per client IP
// using Redis.
func rateLimitMiddleware(limit int, rdb counterStore, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limit <= 0 {
			return c.Next()
		}

		key := rateLimitKey(c.IP(), now().UTC())

		ctx := c.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(errorResponse(
				CodeInternalError,
				fmt.Sprintf("rate limit increment failed: %v", err),
			))
		}
		if count == 1 {
			// first hit opens the window
			_ = rdb.Expire(ctx, key, time.Minute)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse(
				CodeRateLimitExceeded,
				"Rate limit exceeded, try again later",
			))
		}

		return c.Next()
	}
}

func rateLimitKey(client string, t time.Time) string {
	return fmt.Sprintf("smartscrape:rl:%s:%s", client, t.Format("200601021504"))
}
