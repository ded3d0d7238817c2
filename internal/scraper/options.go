package scraper

import (
	"time"

	"github.com/UncleMcDonald/SmartScrape/internal/config"
	"github.com/UncleMcDonald/SmartScrape/internal/identity"
)

// Options is the fetcher policy: retry budget, backoff shape, per-attempt
// time boxes and the flags handed to every session.
type Options struct {
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffJitter   time.Duration
	PageLoadTimeout time.Duration
	ReadyWait       time.Duration
	PauseMin        time.Duration
	PauseMax        time.Duration
	Headless        bool
	Interact        bool
	RetryOnBlock    bool
	AcceptLanguage  string
	ExtraFlags      []string
}

// OptionsFromConfig builds fetcher options from the browser and block
// detection sections of the config file.
func OptionsFromConfig(b config.BrowserConfig, bd config.BlockDetectionConfig) Options {
	return Options{
		MaxRetries:      b.MaxRetries,
		BackoffBase:     time.Duration(b.BackoffBaseMs) * time.Millisecond,
		BackoffJitter:   time.Duration(b.BackoffJitterMs) * time.Millisecond,
		PageLoadTimeout: b.PageLoadTimeout(),
		ReadyWait:       b.ReadyWait(),
		PauseMin:        time.Duration(b.PauseMinMs) * time.Millisecond,
		PauseMax:        time.Duration(b.PauseMaxMs) * time.Millisecond,
		Headless:        b.Headless,
		Interact:        true,
		RetryOnBlock:    bd.RetryOnBlock,
		ExtraFlags:      b.ExtraFlags,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BackoffBase < 0 {
		o.BackoffBase = 0
	}
	if o.BackoffJitter < 0 {
		o.BackoffJitter = 0
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 30 * time.Second
	}
	if o.ReadyWait <= 0 {
		o.ReadyWait = 10 * time.Second
	}
	if o.PauseMax < o.PauseMin {
		o.PauseMax = o.PauseMin
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = "en-US,en;q=0.9"
	}
	return o
}

// sessionConfig derives the per-attempt session settings. production trades
// rendering fidelity for lower resource use by not loading images.
func (o Options) sessionConfig(id identity.Identity, production bool) SessionConfig {
	flags := make([]string, len(o.ExtraFlags))
	copy(flags, o.ExtraFlags)
	return SessionConfig{
		Headless:          o.Headless,
		UserAgent:         id.UserAgent,
		AcceptLanguage:    o.AcceptLanguage,
		Viewport:          id.Viewport,
		Mobile:            id.Mobile,
		DisableImages:     production,
		DisableGPU:        true,
		DisableExtensions: true,
		ExtraFlags:        flags,
	}
}
