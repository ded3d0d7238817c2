package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/UncleMcDonald/SmartScrape/internal/blockdetect"
	"github.com/UncleMcDonald/SmartScrape/internal/identity"
	"github.com/UncleMcDonald/SmartScrape/internal/metrics"
)

// FetchOptions are per-request fetch toggles.
type FetchOptions struct {
	// Production disables image loading and narrows the viewport range.
	Production bool
}

// Fetcher loads one URL through a Driver with a fresh identity per attempt,
// retrying transient failures with exponential backoff plus jitter.
// It is safe for concurrent use.
type Fetcher struct {
	driver   Driver
	ids      *identity.Generator
	detector *blockdetect.Detector
	robots   *RobotsGate
	opts     Options
	logger   *slog.Logger
	newTimer func() backoff.Timer

	rmu sync.Mutex
	rnd *rand.Rand
}

func NewFetcher(driver Driver, ids *identity.Generator, detector *blockdetect.Detector, opts Options, logger *slog.Logger) *Fetcher {
	if ids == nil {
		ids = identity.NewGenerator(identity.Options{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		driver:   driver,
		ids:      ids,
		detector: detector,
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "fetcher"),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRobots makes the fetcher consult robots.txt before the first attempt.
func (f *Fetcher) WithRobots(g *RobotsGate) *Fetcher {
	f.robots = g
	return f
}

// WithTimer replaces the backoff sleep timer.
func (f *Fetcher) WithTimer(newTimer func() backoff.Timer) *Fetcher {
	f.newTimer = newTimer
	return f
}

func (f *Fetcher) Engine() string { return f.driver.Name() }

// Fetch returns the rendered page or a *FetchError. Timeouts, transport
// failures and (with RetryOnBlock) blocked pages are retried up to
// MaxRetries attempts in total; any other failure ends the fetch at once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, fo FetchOptions) (*Page, error) {
	u, err := parseTarget(rawURL)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}
	target := u.String()
	log := f.logger.With("url", target)
	engine := f.driver.Name()

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return nil, &FetchError{Kind: KindDisallowed, URL: target, Err: errors.New("robots.txt disallows this path")}
	}

	seq := f.ids.NewSequence(fo.Production)
	attempt := 0

	op := func() (*Page, error) {
		attempt++
		id := seq.Next()
		log.Debug("fetch_attempt", "attempt", attempt, "browser", id.Browser, "mobile", id.Mobile, "viewport", id.Viewport.String())

		page, err := f.attempt(ctx, target, id, fo.Production)
		if err != nil {
			fe := asFetchError(target, err)
			fe.Attempts = attempt
			metrics.RecordFetchAttempt(engine, string(fe.Kind))
			if !fe.Transient() {
				return nil, backoff.Permanent(fe)
			}
			return nil, fe
		}

		if f.detector != nil {
			v := f.detector.Classify(blockdetect.Response{StatusCode: page.StatusCode, Header: page.Header, Body: page.Markup})
			metrics.RecordBlockVerdict(v.Blocked)
			if v.Blocked {
				log.Warn("page_blocked", "attempt", attempt, "score", v.Score, "signals", v.Signals)
				if f.opts.RetryOnBlock {
					metrics.RecordFetchAttempt(engine, string(KindBlocked))
					return nil, &FetchError{
						Kind:     KindBlocked,
						URL:      target,
						Attempts: attempt,
						Err:      fmt.Errorf("block score %d (%s)", v.Score, strings.Join(v.Signals, ", ")),
					}
				}
			}
		}

		metrics.RecordFetchAttempt(engine, "success")
		page.Identity = id
		page.Attempts = attempt
		return page, nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("fetch_attempt_failed", "attempt", attempt, "error", err, "retry_in_ms", wait.Milliseconds())
	}

	var timer backoff.Timer
	if f.newTimer != nil {
		timer = f.newTimer()
	}

	page, err := backoff.RetryNotifyWithTimerAndData(op, f.backOff(ctx), notify, timer)
	if err != nil {
		fe := asFetchError(target, err)
		if fe.Attempts == 0 {
			fe.Attempts = attempt
		}
		log.Error("fetch_failed", "attempts", fe.Attempts, "kind", string(fe.Kind), "error", fe.Details())
		return nil, fe
	}
	log.Info("fetch_succeeded", "attempts", page.Attempts, "status", page.StatusCode, "bytes", len(page.Markup))
	return page, nil
}

// attempt runs one session from open to close. The session is closed on
// every path, including a panic inside the driver.
func (f *Fetcher) attempt(ctx context.Context, target string, id identity.Identity, production bool) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = &FetchError{Kind: KindInternal, URL: target, Err: fmt.Errorf("panic during page load: %v", r)}
		}
	}()

	sess, err := f.driver.Open(ctx, f.opts.sessionConfig(id, production))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			f.logger.Warn("session_close_failed", "url", target, "error", cerr)
		}
	}()

	return sess.Load(ctx, target, f.loadOptions())
}

func (f *Fetcher) loadOptions() LoadOptions {
	f.rmu.Lock()
	defer f.rmu.Unlock()

	pause := f.opts.PauseMin
	if span := f.opts.PauseMax - f.opts.PauseMin; span > 0 {
		pause += time.Duration(f.rnd.Int63n(int64(span) + 1))
	}
	return LoadOptions{
		Timeout:      f.opts.PageLoadTimeout,
		ReadyWait:    f.opts.ReadyWait,
		Interact:     f.opts.Interact,
		ScrollOffset: 300 + f.rnd.Intn(401),
		Pause:        pause,
	}
}

func (f *Fetcher) randFloat() float64 {
	f.rmu.Lock()
	defer f.rmu.Unlock()
	return f.rnd.Float64()
}

// backOff yields base*2^n plus up to BackoffJitter, for MaxRetries-1 waits.
func (f *Fetcher) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.opts.BackoffBase
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = f.opts.BackoffBase << uint(f.opts.MaxRetries)
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = &jitterBackOff{base: exp, jitter: f.opts.BackoffJitter, rnd: f.randFloat}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.MaxRetries-1)), ctx)
}

type jitterBackOff struct {
	base   backoff.BackOff
	jitter time.Duration
	rnd    func() float64
}

func (j *jitterBackOff) NextBackOff() time.Duration {
	next := j.base.NextBackOff()
	if next == backoff.Stop || j.jitter <= 0 {
		return next
	}
	return next + time.Duration(j.rnd()*float64(j.jitter))
}

func (j *jitterBackOff) Reset() { j.base.Reset() }

func parseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		// "shop.example/item" parses as a bare path; retry with a scheme.
		if u, err = url.Parse("http://" + raw); err != nil {
			return nil, err
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}
