// Package blockdetect scores a fetched response for signs that the site
// denied access (WAF interstitials, CAPTCHAs, rate limiting).
package blockdetect

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const DefaultThreshold = 3

// Response is what the detector looks at. StatusCode is 0 when the driver
// could not observe it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

type Verdict struct {
	Blocked bool
	Score   int
	Signals []string
}

type Detector struct {
	rules     Rules
	threshold int
}

func New(threshold int) *Detector {
	return NewWithRules(DefaultRules(), threshold)
}

func NewWithRules(rules Rules, threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{rules: rules, threshold: threshold}
}

func (d *Detector) Threshold() int { return d.threshold }

// Classify scores resp. Transport-level evidence (status, headers) is
// always counted; the body heuristics only run while the score is still
// below the threshold.
func (d *Detector) Classify(resp Response) Verdict {
	var v Verdict
	r := d.rules

	for _, code := range r.BlockStatuses {
		if resp.StatusCode == code {
			v.add("status", r.StatusWeight)
			break
		}
	}

	for _, h := range r.Headers {
		vals, present := resp.Header[http.CanonicalHeaderKey(h.Header)]
		if !present {
			continue
		}
		if len(h.Values) == 0 {
			v.add("header:"+strings.ToLower(h.Header), r.HeaderWeight)
			continue
		}
		joined := strings.ToLower(strings.Join(vals, ","))
		for _, want := range h.Values {
			if strings.Contains(joined, want) {
				v.add("header:"+strings.ToLower(h.Header), r.HeaderWeight)
				break
			}
		}
	}

	if v.Score < d.threshold && resp.Body != "" {
		body := prefix(resp.Body, r.BodyPrefix)
		for _, p := range r.Body {
			if p.Pattern.MatchString(body) {
				v.add(p.Name, p.Weight)
			}
		}
		if r.TitlePattern != nil {
			if title := pageTitle(prefix(resp.Body, r.TitleWindow)); title != "" && r.TitlePattern.MatchString(title) {
				v.add("title", r.TitleWeight)
			}
		}
	}

	v.Blocked = v.Score >= d.threshold
	return v
}

func (v *Verdict) add(signal string, weight int) {
	v.Score += weight
	v.Signals = append(v.Signals, signal)
}

func prefix(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func pageTitle(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
