package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// blockedImagePatterns are applied when a session disables images. The
// command-line switch covers a freshly launched browser; the URL block list
// also covers a shared remote browser.
var blockedImagePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.avif", "*.svg", "*.ico"}

// RodDriver drives Chromium through rod. With ControlURL set it attaches to
// an existing browser and isolates each session in an incognito context;
// otherwise every session launches (and later kills) its own browser.
type RodDriver struct {
	ControlURL string
	BinPath    string
}

func NewRodDriver(controlURL, binPath string) *RodDriver {
	return &RodDriver{ControlURL: controlURL, BinPath: binPath}
}

func (d *RodDriver) Name() string { return "rod" }

func (d *RodDriver) Open(ctx context.Context, cfg SessionConfig) (Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &rodSession{cfg: cfg, cancel: cancel}

	if d.ControlURL != "" {
		browser := rod.New().Context(sctx).ControlURL(d.ControlURL)
		if err := browser.Connect(); err != nil {
			cancel()
			return nil, fmt.Errorf("connect browser: %w", err)
		}
		incognito, err := browser.Incognito()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create browser context: %w", err)
		}
		s.browser = incognito
		return s, nil
	}

	l := launcher.New().Context(sctx).
		Headless(cfg.Headless).
		Delete("enable-automation").
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if d.BinPath != "" {
		l = l.Bin(d.BinPath)
	}
	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		l = l.Set("window-size", cfg.Viewport.String())
	}
	if cfg.DisableGPU {
		l = l.Set("disable-gpu")
	}
	if cfg.DisableExtensions {
		l = l.Set("disable-extensions")
	}
	if cfg.DisableImages {
		l = l.Set("blink-settings", "imagesEnabled=false")
	}
	for _, raw := range cfg.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(raw), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			l = l.Set(flags.Flag(name), value)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().Context(sctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser
	return s, nil
}

type rodSession struct {
	cfg      SessionConfig
	browser  *rod.Browser
	launcher *launcher.Launcher
	cancel   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Load(ctx context.Context, target string, opts LoadOptions) (*Page, error) {
	if s.browser == nil {
		return nil, errors.New("session is not connected")
	}

	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer func() { _ = page.Close() }()

	if s.cfg.UserAgent != "" {
		ua := &proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent, AcceptLanguage: s.cfg.AcceptLanguage}
		if err := page.SetUserAgent(ua); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	if s.cfg.Viewport.Width > 0 && s.cfg.Viewport.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.cfg.Viewport.Width,
			Height:            s.cfg.Viewport.Height,
			DeviceScaleFactor: 1,
			Mobile:            s.cfg.Mobile,
		})
		if err != nil {
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("enable network: %w", err)
	}
	if s.cfg.DisableImages {
		if err := (proto.NetworkSetBlockedURLs{Urls: blockedImagePatterns}).Call(page); err != nil {
			return nil, fmt.Errorf("block images: %w", err)
		}
	}

	// The main document response carries the status and headers the block
	// detector needs; rod only exposes them through network events.
	var (
		mu     sync.Mutex
		status int
		header = http.Header{}
	)
	evCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	wait := page.Context(evCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument || e.FrameID != page.FrameID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		status = e.Response.Status
		header = http.Header{}
		for k, v := range e.Response.Headers {
			header.Set(k, v.String())
		}
	})
	go wait()

	loadCtx, cancelLoad := context.WithTimeout(ctx, opts.Timeout)
	defer cancelLoad()
	if err := page.Context(loadCtx).Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, opts.ReadyWait)
	defer cancelReady()
	if _, err := page.Context(readyCtx).Element("body"); err != nil {
		return nil, fmt.Errorf("wait for body: %w", err)
	}

	if opts.Interact {
		// Scrolling is cosmetic; a failed script does not fail the load.
		_, _ = page.Context(ctx).Eval(fmt.Sprintf(`() => window.scrollTo(0, %d)`, opts.ScrollOffset))
		if err := sleep(ctx, opts.Pause); err != nil {
			return nil, err
		}
		_, _ = page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
		if err := sleep(ctx, opts.Pause); err != nil {
			return nil, err
		}
	}

	markup, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	finalURL := target
	if info, err := page.Context(ctx).Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	mu.Lock()
	defer mu.Unlock()
	return &Page{
		URL:        finalURL,
		Markup:     markup,
		StatusCode: status,
		Header:     header,
		Engine:     "rod",
	}, nil
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		// PID is zero when the launch itself failed.
		if s.launcher != nil && s.launcher.PID() > 0 {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.cancel()
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
