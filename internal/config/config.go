package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// BrowserConfig controls how pages are fetched. Engine selects the
// automation driver: "rod" drives a headless Chromium, "http" issues a
// plain GET and is meant for hosts without a browser.
type BrowserConfig struct {
	Engine            string   `yaml:"engine"`
	ControlURL        string   `yaml:"controlURL"`
	BinPath           string   `yaml:"binPath"`
	Headless          bool     `yaml:"headless"`
	PageLoadTimeoutMs int      `yaml:"pageLoadTimeoutMs"`
	ReadyWaitMs       int      `yaml:"readyWaitMs"`
	MaxRetries        int      `yaml:"maxRetries"`
	BackoffBaseMs     int      `yaml:"backoffBaseMs"`
	BackoffJitterMs   int      `yaml:"backoffJitterMs"`
	PauseMinMs        int      `yaml:"pauseMinMs"`
	PauseMaxMs        int      `yaml:"pauseMaxMs"`
	ExtraFlags        []string `yaml:"extraFlags"`
}

func (b BrowserConfig) PageLoadTimeout() time.Duration {
	return time.Duration(b.PageLoadTimeoutMs) * time.Millisecond
}

func (b BrowserConfig) ReadyWait() time.Duration {
	return time.Duration(b.ReadyWaitMs) * time.Millisecond
}

type IdentityConfig struct {
	MobileRatio       float64 `yaml:"mobileRatio"`
	MinVersion        int     `yaml:"minVersion"`
	MaxVersion        int     `yaml:"maxVersion"`
	SafariMinVersion  int     `yaml:"safariMinVersion"`
	SafariMaxVersion  int     `yaml:"safariMaxVersion"`
	MaxUniqueAttempts int     `yaml:"maxUniqueAttempts"`
}

// BlockDetectionConfig tunes the access-denied scorer. When RetryOnBlock
// is set a blocked page counts as a transient fetch failure.
type BlockDetectionConfig struct {
	Threshold    int  `yaml:"threshold"`
	RetryOnBlock bool `yaml:"retryOnBlock"`
}

type RobotsConfig struct {
	Respect   bool   `yaml:"respect"`
	UserAgent string `yaml:"userAgent"`
}

// ContentConfig controls what is handed to the LLM. Format is "text"
// (visible text) or "markdown".
type ContentConfig struct {
	Format             string `yaml:"format"`
	MaxChars           int    `yaml:"maxChars"`
	MaxImageCandidates int    `yaml:"maxImageCandidates"`
}

type BatchConfig struct {
	DefaultParallel int `yaml:"defaultParallel"`
	MaxURLs         int `yaml:"maxURLs"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	Temperature     float64         `yaml:"temperature"`
	TimeoutMs       int             `yaml:"timeoutMs"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server                     ServerConfig         `yaml:"server"`
	CORS                       CORSConfig           `yaml:"cors"`
	Browser                    BrowserConfig        `yaml:"browser"`
	Identity                   IdentityConfig       `yaml:"identity"`
	BlockDetection             BlockDetectionConfig `yaml:"blockDetection"`
	Robots                     RobotsConfig         `yaml:"robots"`
	Content                    ContentConfig        `yaml:"content"`
	Batch                      BatchConfig          `yaml:"batch"`
	Redis                      RedisConfig          `yaml:"redis"`
	RateLimit                  RateLimitConfig      `yaml:"ratelimit"`
	LLM                        LLMConfig            `yaml:"llm"`
	Logging                    LoggingConfig        `yaml:"logging"`
	UseProductionOptimizations bool                 `yaml:"useProductionOptimizations"`
}

// Default returns a configuration with every tunable populated. Values
// read from YAML or the environment are layered on top of it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5000},
		CORS: CORSConfig{AllowOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}},
		Browser: BrowserConfig{
			Engine:            "rod",
			Headless:          true,
			PageLoadTimeoutMs: 30000,
			ReadyWaitMs:       10000,
			MaxRetries:        3,
			BackoffBaseMs:     3000,
			BackoffJitterMs:   2000,
			PauseMinMs:        500,
			PauseMaxMs:        2000,
		},
		Identity: IdentityConfig{
			MobileRatio:       0.3,
			MinVersion:        118,
			MaxVersion:        125,
			SafariMinVersion:  17,
			SafariMaxVersion:  18,
			MaxUniqueAttempts: 9,
		},
		BlockDetection: BlockDetectionConfig{Threshold: 3},
		Robots:         RobotsConfig{Respect: false, UserAgent: "SmartScrapeBot"},
		Content:        ContentConfig{Format: "text", MaxChars: 3000, MaxImageCandidates: 5},
		Batch:          BatchConfig{DefaultParallel: 3, MaxURLs: 100},
		RateLimit:      RateLimitConfig{PerMinute: 0},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Temperature:     0,
			TimeoutMs:       60000,
			OpenAI:          OpenAIConfig{Model: "gpt-4"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over Default. A missing file is not an
// error; the defaults (plus environment overrides) are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv layers the environment-level tunables over cfg. lookup is
// usually os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL)
	str("ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey)
	str("GOOGLE_API_KEY", &cfg.LLM.Google.APIKey)
	str("LLM_PROVIDER", &cfg.LLM.DefaultProvider)
	str("REDIS_URL", &cfg.Redis.URL)
	str("BROWSER_CONTROL_URL", &cfg.Browser.ControlURL)
	str("LOG_LEVEL", &cfg.Logging.Level)

	if v, ok := lookup("LLM_MODEL"); ok && strings.TrimSpace(v) != "" {
		model := strings.TrimSpace(v)
		switch cfg.LLM.DefaultProvider {
		case "anthropic":
			cfg.LLM.Anthropic.Model = model
		case "google":
			cfg.LLM.Google.Model = model
		default:
			cfg.LLM.OpenAI.Model = model
		}
	}

	if v, ok := lookup("LLM_TEMPERATURE"); ok && strings.TrimSpace(v) != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
		}
		cfg.LLM.Temperature = t
	}

	if err := integer("DEFAULT_PARALLEL_COUNT", &cfg.Batch.DefaultParallel); err != nil {
		return err
	}
	if err := integer("MAX_BATCH_SIZE", &cfg.Batch.MaxURLs); err != nil {
		return err
	}

	// REQUEST_TIMEOUT is expressed in seconds.
	var timeoutSec int
	if err := integer("REQUEST_TIMEOUT", &timeoutSec); err != nil {
		return err
	}
	if timeoutSec > 0 {
		cfg.Browser.PageLoadTimeoutMs = timeoutSec * 1000
	}

	if v, ok := lookup("USE_PRODUCTION_OPTIMIZATIONS"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid USE_PRODUCTION_OPTIMIZATIONS: %w", err)
		}
		cfg.UseProductionOptimizations = b
	}

	return nil
}
