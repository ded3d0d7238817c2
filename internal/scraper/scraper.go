package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/UncleMcDonald/SmartScrape/internal/identity"
)

// SessionConfig describes one automation session. A new session is opened
// for every fetch attempt so that identities never share browser state.
type SessionConfig struct {
	Headless          bool
	UserAgent         string
	AcceptLanguage    string
	Viewport          identity.Viewport
	Mobile            bool
	DisableImages     bool
	DisableGPU        bool
	DisableExtensions bool
	ExtraFlags        []string
}

// LoadOptions bounds a single page load.
type LoadOptions struct {
	// Timeout covers navigation and the load event.
	Timeout time.Duration
	// ReadyWait bounds the wait for <body> once the page loaded.
	ReadyWait time.Duration
	// Interact enables the scroll/pause sequence before capture.
	Interact     bool
	ScrollOffset int
	Pause        time.Duration
}

// Page is the fully rendered result of one successful load.
type Page struct {
	URL        string
	Markup     string
	StatusCode int
	Header     http.Header
	Engine     string
	Identity   identity.Identity
	Attempts   int
}

// Session is one live automation session. Close must be safe to call after
// a failed Load and more than once.
type Session interface {
	Load(ctx context.Context, url string, opts LoadOptions) (*Page, error)
	Close() error
}

// Driver opens automation sessions.
type Driver interface {
	Name() string
	Open(ctx context.Context, cfg SessionConfig) (Session, error)
}

type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindTransport  ErrorKind = "transport"
	KindBlocked    ErrorKind = "blocked"
	KindDisallowed ErrorKind = "disallowed"
	KindInvalidURL ErrorKind = "invalid_url"
	KindInternal   ErrorKind = "internal"
)

// FetchError is the terminal (or per-attempt) failure of a fetch.
type FetchError struct {
	Kind     ErrorKind
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed (%s after %d attempt(s)): %s", e.URL, e.Kind, e.Attempts, e.Details())
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether another attempt with a new identity may help.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindTransport, KindBlocked:
		return true
	}
	return false
}

// Reason is the short user-facing summary of the failure.
func (e *FetchError) Reason() string {
	switch e.Kind {
	case KindBlocked:
		return "Access limited after max retries"
	case KindDisallowed:
		return "Disallowed by robots.txt"
	case KindInvalidURL:
		return "Invalid URL"
	}
	return "Failed to fetch page"
}

// Details is the underlying driver message.
func (e *FetchError) Details() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// asFetchError maps an arbitrary driver error onto the fetch taxonomy.
// Deadlines (ours or the network's) are timeouts, everything else is a
// transport failure.
func asFetchError(rawURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindTransport
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}
