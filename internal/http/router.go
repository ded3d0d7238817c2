package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/UncleMcDonald/SmartScrape/internal/batch"
	"github.com/UncleMcDonald/SmartScrape/internal/config"
	"github.com/UncleMcDonald/SmartScrape/internal/fields"
	"github.com/UncleMcDonald/SmartScrape/internal/metrics"
	"github.com/UncleMcDonald/SmartScrape/internal/model"
	"github.com/UncleMcDonald/SmartScrape/internal/pipeline"
)

// URLProcessor runs the single-URL pipeline.
type URLProcessor interface {
	Configured() bool
	Process(ctx context.Context, rawURL string, req pipeline.Request) model.Outcome
	Table() *fields.Table
}

// BatchRunner runs a batch to completion.
type BatchRunner interface {
	Run(ctx context.Context, urls []string, instruction string, opts batch.Options) (*model.BatchOutcome, error)
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Config   *config.Config
	Pipeline URLProcessor
	Batch    BatchRunner
	// Redis is optional; without it rate limiting is off and deep health
	// reports redis as disabled.
	Redis  *redis.Client
	Engine string
	Logger *slog.Logger
}

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

func NewServer(d Deps) *Server {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORS.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-Id",
	}))

	// Inject config and collaborators into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("pipeline", d.Pipeline)
		c.Locals("batch", d.Batch)
		return c.Next()
	})

	app.Use(requestLogMiddleware(logger))
	app.Use(recover.New())

	app.Get("/healthz", healthHandler(d.Redis, d.Engine))

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	var rateMw fiber.Handler = func(c *fiber.Ctx) error { return c.Next() }
	if d.Redis != nil && cfg.RateLimit.PerMinute > 0 {
		rateMw = rateLimitMiddleware(cfg.RateLimit.PerMinute, d.Redis, time.Now)
	}

	app.Post("/process", rateMw, processHandler)
	app.Post("/api/batch-process", rateMw, batchProcessHandler)

	return &Server{app: app, config: cfg, logger: logger}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("server_listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func healthHandler(rdb *redis.Client, engine string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		llmStatus := "disabled"
		if p, ok := c.Locals("pipeline").(URLProcessor); ok && p != nil && p.Configured() {
			llmStatus = "ok"
		}

		status := "ok"
		if redisStatus == "error" {
			status = "error"
		}
		return c.JSON(fiber.Map{
			"status":  status,
			"redis":   redisStatus,
			"browser": engine,
			"llm":     llmStatus,
		})
	}
}

// errorHandler renders unhandled errors and recovered panics in the
// standard envelope.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := CodeInternalError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			switch {
			case status == fiber.StatusNotFound:
				code = "NOT_FOUND"
			case status < 500:
				code = CodeInvalidInput
			}
		}
		logger.Error("request_failed", "path", c.Path(), "status", status, "error", err)
		return c.Status(status).JSON(errorResponse(code, err.Error()))
	}
}
