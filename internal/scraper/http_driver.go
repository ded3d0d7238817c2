package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps how much of a response the HTTP driver reads.
const maxBodyBytes = 8 << 20

// HTTPDriver fetches pages with a plain GET. It does not execute scripts,
// so it suits server-rendered shops and hosts without Chromium.
type HTTPDriver struct {
	client *http.Client
}

func NewHTTPDriver(client *http.Client) *HTTPDriver {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDriver{client: client}
}

func (d *HTTPDriver) Name() string { return "http" }

func (d *HTTPDriver) Open(_ context.Context, cfg SessionConfig) (Session, error) {
	return &httpSession{client: d.client, cfg: cfg}, nil
}

type httpSession struct {
	client *http.Client
	cfg    SessionConfig
}

func (s *httpSession) Load(ctx context.Context, target string, opts LoadOptions) (*Page, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	if s.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", s.cfg.AcceptLanguage)
	}
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if opts.Interact && opts.Pause > 0 {
		if err := sleep(ctx, opts.Pause); err != nil {
			return nil, err
		}
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		Markup:     string(body),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Engine:     "http",
	}, nil
}

func (s *httpSession) Close() error { return nil }

// compile-time interface checks
var (
	_ Driver = (*HTTPDriver)(nil)
	_ Driver = (*RodDriver)(nil)
)
