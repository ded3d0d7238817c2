// Package identity produces randomized browser fingerprints (user agent and
// viewport) so that consecutive fetch attempts do not look alike.
package identity

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/UncleMcDonald/SmartScrape/internal/config"
)

type Viewport struct {
	Width  int
	Height int
}

func (v Viewport) String() string {
	return fmt.Sprintf("%d,%d", v.Width, v.Height)
}

type Identity struct {
	UserAgent string
	Viewport  Viewport
	Mobile    bool
	Browser   string
	Platform  string
}

type Options struct {
	MobileRatio      float64
	MinVersion       int
	MaxVersion       int
	SafariMinVersion int
	SafariMaxVersion int
	// MaxUniqueAttempts bounds how many draws a Sequence makes while
	// looking for a user agent it has not handed out yet.
	MaxUniqueAttempts int

	Browsers         []Browser
	DesktopPlatforms []string
	MobilePlatforms  []string
}

// OptionsFromConfig maps the identity section of the config file.
func OptionsFromConfig(c config.IdentityConfig) Options {
	return Options{
		MobileRatio:       c.MobileRatio,
		MinVersion:        c.MinVersion,
		MaxVersion:        c.MaxVersion,
		SafariMinVersion:  c.SafariMinVersion,
		SafariMaxVersion:  c.SafariMaxVersion,
		MaxUniqueAttempts: c.MaxUniqueAttempts,
	}
}

func (o Options) withDefaults() Options {
	if o.MobileRatio < 0 || o.MobileRatio > 1 {
		o.MobileRatio = 0.3
	}
	if o.MinVersion <= 0 {
		o.MinVersion = 118
	}
	if o.MaxVersion < o.MinVersion {
		o.MaxVersion = o.MinVersion
	}
	if o.SafariMinVersion <= 0 {
		o.SafariMinVersion = 17
	}
	if o.SafariMaxVersion < o.SafariMinVersion {
		o.SafariMaxVersion = o.SafariMinVersion
	}
	if o.MaxUniqueAttempts <= 0 {
		o.MaxUniqueAttempts = 9
	}
	if len(o.Browsers) == 0 {
		o.Browsers = defaultBrowsers
	}
	if len(o.DesktopPlatforms) == 0 {
		o.DesktopPlatforms = defaultDesktopPlatforms
	}
	if len(o.MobilePlatforms) == 0 {
		o.MobilePlatforms = defaultMobilePlatforms
	}
	return o
}

// Generator is safe for concurrent use.
type Generator struct {
	opts Options

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(opts Options) *Generator {
	return NewGeneratorWithSource(opts, rand.NewSource(time.Now().UnixNano()))
}

// NewGeneratorWithSource is NewGenerator with a caller supplied random
// source, mostly useful for deterministic tests.
func NewGeneratorWithSource(opts Options, src rand.Source) *Generator {
	return &Generator{opts: opts.withDefaults(), rnd: rand.New(src)}
}

// Next returns a fresh desktop-or-mobile identity.
func (g *Generator) Next() Identity {
	return g.generate(false)
}

// NextCompact is Next with a reduced desktop viewport range, used when the
// production resource toggle is on.
func (g *Generator) NextCompact() Identity {
	return g.generate(true)
}

func (g *Generator) generate(compact bool) Identity {
	g.mu.Lock()
	defer g.mu.Unlock()

	mobile := g.rnd.Float64() < g.opts.MobileRatio
	platforms := g.opts.DesktopPlatforms
	if mobile {
		platforms = g.opts.MobilePlatforms
	}
	platform := platforms[g.rnd.Intn(len(platforms))]

	b := g.opts.Browsers[g.rnd.Intn(len(g.opts.Browsers))]
	var version int
	if b.SafariVersioning {
		version = g.between(g.opts.SafariMinVersion, g.opts.SafariMaxVersion)
	} else {
		version = g.between(g.opts.MinVersion, g.opts.MaxVersion)
	}
	fragment := fmt.Sprintf(b.Template, version)

	bounds := desktopViewport
	switch {
	case mobile:
		bounds = mobileViewport
	case compact:
		bounds = compactViewport
	}
	vp := Viewport{
		Width:  g.between(bounds[0].Width, bounds[1].Width),
		Height: g.between(bounds[0].Height, bounds[1].Height),
	}

	return Identity{
		UserAgent: fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) %s", platform, fragment),
		Viewport:  vp,
		Mobile:    mobile,
		Browser:   b.Name,
		Platform:  platform,
	}
}

// between returns a uniform integer in [lo, hi]. Callers hold g.mu.
func (g *Generator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rnd.Intn(hi-lo+1)
}

// Sequence hands out identities for the retry chain of a single URL and
// avoids repeating a user agent it already produced. When the pool is
// small the search gives up after MaxUniqueAttempts draws and accepts a
// repeat.
type Sequence struct {
	gen     *Generator
	compact bool
	used    map[string]struct{}
}

func (g *Generator) NewSequence(compact bool) *Sequence {
	return &Sequence{gen: g, compact: compact, used: make(map[string]struct{})}
}

func (s *Sequence) Next() Identity {
	id := s.gen.generate(s.compact)
	for i := 1; i < s.gen.opts.MaxUniqueAttempts; i++ {
		if _, seen := s.used[id.UserAgent]; !seen {
			break
		}
		id = s.gen.generate(s.compact)
	}
	s.used[id.UserAgent] = struct{}{}
	return id
}

// Used reports how many distinct user agents the sequence has produced.
func (s *Sequence) Used() int { return len(s.used) }
