package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/UncleMcDonald/SmartScrape/internal/batch"
	"github.com/UncleMcDonald/SmartScrape/internal/blockdetect"
	"github.com/UncleMcDonald/SmartScrape/internal/config"
	"github.com/UncleMcDonald/SmartScrape/internal/content"
	"github.com/UncleMcDonald/SmartScrape/internal/extract"
	"github.com/UncleMcDonald/SmartScrape/internal/fields"
	server "github.com/UncleMcDonald/SmartScrape/internal/http"
	"github.com/UncleMcDonald/SmartScrape/internal/identity"
	"github.com/UncleMcDonald/SmartScrape/internal/llm"
	"github.com/UncleMcDonald/SmartScrape/internal/pipeline"
	"github.com/UncleMcDonald/SmartScrape/internal/scraper"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	var client llm.Client
	if c, prov, model, err := llm.NewClientFromConfig(cfg, "", ""); err != nil {
		logger.Warn("llm_unavailable", "provider", prov, "error", err)
	} else {
		client = c
		logger.Info("llm_configured", "provider", prov, "model", model)
	}

	fetcher := scraper.NewFetcher(
		newDriver(cfg.Browser),
		identity.NewGenerator(identity.OptionsFromConfig(cfg.Identity)),
		blockdetect.New(cfg.BlockDetection.Threshold),
		scraper.OptionsFromConfig(cfg.Browser, cfg.BlockDetection),
		logger,
	)
	if cfg.Robots.Respect {
		fetcher.WithRobots(scraper.NewRobotsGate(&http.Client{Timeout: 10 * time.Second}, cfg.Robots.UserAgent, logger))
	}

	table := fields.DefaultTable()
	adapter := extract.NewAdapter(client, cfg.Content.MaxChars, logger)
	pipe := pipeline.New(
		fetcher,
		content.New(content.Options{Format: cfg.Content.Format, MaxImageCandidates: cfg.Content.MaxImageCandidates}, logger),
		adapter,
		table,
		logger,
	)
	coordinator := batch.NewCoordinator(pipe, fields.NewResolver(adapter, table, logger), table, cfg.Batch.DefaultParallel, logger)

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	s := server.NewServer(server.Deps{
		Config:   cfg,
		Pipeline: pipe,
		Batch:    coordinator,
		Redis:    rdb,
		Engine:   fetcher.Engine(),
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown_failed", "error", err)
		}
	}()

	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func newDriver(b config.BrowserConfig) scraper.Driver {
	if strings.EqualFold(b.Engine, "http") {
		return scraper.NewHTTPDriver(&http.Client{})
	}
	return scraper.NewRodDriver(b.ControlURL, b.BinPath)
}

func newLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
