package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type memCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	fail    bool
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *memCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.fail {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memCounter) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	m.expires[key] = d
	return redis.NewBoolResult(true, nil)
}

func rateLimitedApp(limit int, store counterStore, now func() time.Time) *fiber.App {
	app := fiber.New()
	app.Get("/x", rateLimitMiddleware(limit, store, now), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	return app
}

func TestRateLimitMiddleware(t *testing.T) {
	store := newMemCounter()
	clock := time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)
	app := rateLimitedApp(2, store, func() time.Time { return clock })

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
		if err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}

	if len(store.counts) != 1 {
		t.Fatalf("expected a single window key, got %v", store.counts)
	}
	var key string
	for k := range store.counts {
		key = k
	}
	if store.counts[key] != 3 {
		t.Fatalf("expected 3 hits on %s, got %v", key, store.counts)
	}
	if store.expires[key] != time.Minute {
		t.Fatalf("expected TTL to be set once on first hit, got %v", store.expires)
	}

	// next window starts fresh
	clock = clock.Add(time.Minute)
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected new window to allow, got %d", resp.StatusCode)
	}
}

func TestRateLimitMiddlewareStoreFailure(t *testing.T) {
	store := newMemCounter()
	store.fail = true
	app := rateLimitedApp(5, store, time.Now)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestRateLimitKey(t *testing.T) {
	got := rateLimitKey("10.0.0.1", time.Date(2024, 5, 1, 9, 7, 59, 0, time.UTC))
	if got != "smartscrape:rl:10.0.0.1:202405010907" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRequestLogMiddlewareSetsRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(requestLogMiddleware(slog.Default()))
	app.Get("/x", func(c *fiber.Ctx) error {
		if c.Locals("request_id") == nil {
			t.Fatalf("request_id not set")
		}
		return c.SendStatus(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if got := resp.Header.Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil), -1)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 through error handler, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}
