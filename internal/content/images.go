package content

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Source string

const (
	SourceOpenGraph      Source = "og_meta"
	SourceImgTag         Source = "img_tag"
	SourceStructuredData Source = "structured_data"
)

// CandidateImage is one possible main product image.
type CandidateImage struct {
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
	Source Source  `json:"source"`
	Alt    string  `json:"alt,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
}

var commentMarkers = regexp.MustCompile(`<!--|-->`)

type ranker struct {
	rules  ImageRules
	base   *url.URL
	logger *slog.Logger

	// titleWords are significant words from the page title, used to judge
	// whether alt text names the product.
	titleWords map[string]struct{}

	found map[string]int
	list  []CandidateImage
}

func newRanker(rules ImageRules, baseURL string, title string, logger *slog.Logger) *ranker {
	base, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		base = nil
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(title), isSeparator) {
		if len(w) >= 4 {
			words[w] = struct{}{}
		}
	}
	return &ranker{rules: rules, base: base, logger: logger, titleWords: words, found: make(map[string]int)}
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}

// resolve returns an absolute http(s) URL or "".
func (r *ranker) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if r.base == nil {
			return ""
		}
		u = r.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// add records a candidate, keeping the best score per URL. An Open Graph
// entry is never replaced.
func (r *ranker) add(c CandidateImage) {
	if c.URL == "" {
		return
	}
	if i, ok := r.found[c.URL]; ok {
		if r.list[i].Source != SourceOpenGraph && (c.Source == SourceOpenGraph || c.Score > r.list[i].Score) {
			r.list[i] = c
		}
		return
	}
	r.found[c.URL] = len(r.list)
	r.list = append(r.list, c)
}

func (r *ranker) openGraph(doc *goquery.Document) {
	doc.Find(`meta[property="og:image"], meta[property="og:image:url"], meta[property="og:image:secure_url"], meta[name="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		r.add(CandidateImage{URL: r.resolve(s.AttrOr("content", "")), Score: r.rules.OpenGraphScore, Source: SourceOpenGraph})
	})
}

func (r *ranker) imgTags(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := imgSource(s)
		if src == "" || strings.HasPrefix(strings.ToLower(strings.TrimSpace(src)), "data:") {
			return
		}
		if r.rules.ExcludeAncestors != "" && s.Closest(r.rules.ExcludeAncestors).Length() > 0 {
			return
		}

		class := s.AttrOr("class", "")
		id := s.AttrOr("id", "")
		if r.rules.Exclude != nil {
			if r.rules.Exclude.MatchString(class) || r.rules.Exclude.MatchString(id) || r.rules.Exclude.MatchString(pathOf(src)) {
				return
			}
		}

		w, h := dimension(s.AttrOr("width", "")), dimension(s.AttrOr("height", ""))
		if (w > 0 && w < r.rules.MinDimension) || (h > 0 && h < r.rules.MinDimension) {
			return
		}

		abs := r.resolve(src)
		if abs == "" {
			return
		}

		score := 0.0
		if area := w * h; area > 0 && r.rules.AreaCap > 0 {
			if area > r.rules.AreaCap {
				area = r.rules.AreaCap
			}
			score = float64(area) / float64(r.rules.AreaCap) * r.rules.AreaScore
		}
		alt := strings.TrimSpace(s.AttrOr("alt", ""))
		if containsToken(class+" "+id, r.rules.ProductTokens) {
			score += r.rules.ClassBonus
		}
		if r.productAlt(alt) {
			score += r.rules.AltBonus
		}
		if containsToken(pathOf(abs), r.rules.ProductTokens) {
			score += r.rules.URLBonus
		}

		r.add(CandidateImage{URL: abs, Score: score, Source: SourceImgTag, Alt: alt, Width: w, Height: h})
	})
}

func (r *ranker) productAlt(alt string) bool {
	if alt == "" {
		return false
	}
	if containsToken(alt, r.rules.ProductTokens) {
		return true
	}
	for _, w := range strings.FieldsFunc(strings.ToLower(alt), isSeparator) {
		if _, ok := r.titleWords[w]; ok {
			return true
		}
	}
	return false
}

func (r *ranker) structuredData(doc *goquery.Document) {
	keys := make(map[string]struct{}, len(r.rules.StructuredDataKeys))
	for _, k := range r.rules.StructuredDataKeys {
		keys[k] = struct{}{}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(commentMarkers.ReplaceAllString(s.Text(), ""))
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			r.logger.Debug("structured_data_parse_failed", "block", i, "error", err)
			return
		}
		for _, u := range collectImageURLs(data, keys) {
			r.add(CandidateImage{URL: r.resolve(u), Score: r.rules.StructuredDataScore, Source: SourceStructuredData})
		}
	})
}

// collectImageURLs walks decoded JSON-LD and returns every URL found under
// one of keys, accepting string, list and {url}/{contentUrl} forms.
func collectImageURLs(v any, keys map[string]struct{}) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			names := make([]string, 0, len(t))
			for k := range t {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				if _, ok := keys[k]; ok {
					out = append(out, imageValues(t[k])...)
					continue
				}
				walk(t[k])
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	return out
}

func imageValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, imageValues(item)...)
		}
		return out
	case map[string]any:
		for _, k := range []string{"url", "contentUrl"} {
			if s, ok := t[k].(string); ok && s != "" {
				return []string{s}
			}
		}
	}
	return nil
}

// ranked returns candidates by descending score, discovery order breaking
// ties, truncated to limit. Open Graph images precede everything else when
// the rules pin them.
func (r *ranker) ranked(limit int) []CandidateImage {
	out := make([]CandidateImage, len(r.list))
	copy(out, r.list)
	sort.SliceStable(out, func(i, j int) bool {
		if r.rules.PinOpenGraph {
			oi, oj := out[i].Source == SourceOpenGraph, out[j].Source == SourceOpenGraph
			if oi != oj {
				return oi
			}
		}
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func imgSource(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if srcset := strings.TrimSpace(s.AttrOr("srcset", "")); srcset != "" {
		first := strings.Fields(strings.TrimSpace(strings.Split(srcset, ",")[0]))
		if len(first) > 0 {
			return first[0]
		}
	}
	return strings.TrimSpace(s.AttrOr("src", ""))
}

func pathOf(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}

func dimension(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(v)), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func containsToken(s string, tokens []string) bool {
	s = strings.ToLower(s)
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
