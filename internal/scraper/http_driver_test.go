package scraper

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UncleMcDonald/SmartScrape/internal/blockdetect"
	"github.com/UncleMcDonald/SmartScrape/internal/config"
	"github.com/UncleMcDonald/SmartScrape/internal/identity"
)

func TestHTTPDriverLoad(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html><title>Just a moment</title></html>"))
	}))
	defer srv.Close()

	d := NewHTTPDriver(srv.Client())
	sess, err := d.Open(context.Background(), SessionConfig{UserAgent: "Mozilla/5.0 test", AcceptLanguage: "en-US"})
	require.NoError(t, err)
	defer sess.Close()

	page, err := sess.Load(context.Background(), srv.URL+"/item", LoadOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "Mozilla/5.0 test", gotUA)
	assert.Equal(t, "en-US", gotLang)
	assert.Equal(t, http.StatusServiceUnavailable, page.StatusCode)
	assert.Equal(t, "cloudflare", page.Header.Get("Server"))
	assert.Contains(t, page.Markup, "Just a moment")
	assert.Equal(t, "http", page.Engine)
}

func TestHTTPDriverTimeoutClassifiedAsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sess, err := NewHTTPDriver(srv.Client()).Open(context.Background(), SessionConfig{})
	require.NoError(t, err)

	_, err = sess.Load(context.Background(), srv.URL, LoadOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, asFetchError(srv.URL, err).Kind)
}

func TestRobotsGate(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits++
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /checkout\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewRobotsGate(srv.Client(), "SmartScrapeBot", nil)
	allowed, _ := url.Parse(srv.URL + "/product/1")
	denied, _ := url.Parse(srv.URL + "/checkout/cart")

	assert.True(t, g.Allowed(context.Background(), allowed))
	assert.False(t, g.Allowed(context.Background(), denied))
	assert.Equal(t, 1, hits, "robots.txt should be cached per host")
}

func TestRobotsGateMissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	g := NewRobotsGate(srv.Client(), "SmartScrapeBot", nil)
	u, _ := url.Parse(srv.URL + "/anything")
	assert.True(t, g.Allowed(context.Background(), u))
}

func TestFetchHonoursRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer srv.Close()

	d := &fakeDriver{script: []loadFunc{okPage}}
	f, _ := newTestFetcher(t, d, Options{})
	f.WithRobots(NewRobotsGate(srv.Client(), "SmartScrapeBot", nil))

	_, err := f.Fetch(context.Background(), srv.URL+"/p/1", FetchOptions{})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindDisallowed, fe.Kind)
	assert.Zero(t, d.opened)
}

func TestFetchHealthyCloudflarePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Cf-Ray", "8a1b2c3d4e5f-AMS")
		_, _ = w.Write([]byte(`<html><head><title>Blue Kettle</title>` +
			`<script src="https://cdnjs.cloudflare.com/ajax/libs/jquery/3.7.1/jquery.min.js"></script>` +
			`</head><body><h1>Blue Kettle</h1><p>$20</p></body></html>`))
	}))
	defer srv.Close()

	defaults := OptionsFromConfig(config.Default().Browser, config.Default().BlockDetection)
	strict := defaults
	strict.RetryOnBlock = true

	for name, opts := range map[string]Options{"defaults": defaults, "retry on block": strict} {
		t.Run(name, func(t *testing.T) {
			opts.PauseMin, opts.PauseMax = 0, 0
			ids := identity.NewGeneratorWithSource(identity.Options{}, rand.NewSource(7))
			f := NewFetcher(NewHTTPDriver(srv.Client()), ids, blockdetect.New(blockdetect.DefaultThreshold), opts, slog.New(slog.NewTextHandler(io.Discard, nil)))

			page, err := f.Fetch(context.Background(), srv.URL+"/p/kettle", FetchOptions{})
			require.NoError(t, err)
			assert.Equal(t, 1, page.Attempts)
			assert.Equal(t, http.StatusOK, page.StatusCode)
			assert.Contains(t, page.Markup, "Blue Kettle")
		})
	}
}
