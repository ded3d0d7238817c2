package blockdetect

import "regexp"

// HeaderRule matches a response header whose lower-cased value contains any
// of Values. An empty Values list matches on presence alone.
type HeaderRule struct {
	Header string
	Values []string
}

// PatternRule is a regular expression scanned over the body prefix.
type PatternRule struct {
	Name    string
	Pattern *regexp.Regexp
	Weight  int
}

// Rules is the scoring table. Tables are plain data so they can be
// replaced or extended without touching Classify.
type Rules struct {
	Version string

	BlockStatuses []int
	StatusWeight  int

	Headers      []HeaderRule
	HeaderWeight int

	Body       []PatternRule
	BodyPrefix int

	TitlePattern *regexp.Regexp
	TitleWeight  int
	// TitleWindow is how much of the body is parsed looking for <title>.
	TitleWindow int
}

var (
	reBlockText = regexp.MustCompile(`(?i)\b(access\s+denied|verify\s+you\s+are\s+human|too\s+many\s+requests|bot\s+detected|unusual\s+traffic|protecting\s+itself)\b`)
	reCaptcha   = regexp.MustCompile(`(?i)recaptcha|g-recaptcha|data-sitekey`)
	reTitle     = regexp.MustCompile(`(?i)\b(access\s+denied|blocked|restricted)\b`)
)

// DefaultRules returns the built-in v1 table.
func DefaultRules() Rules {
	return Rules{
		Version:       "v1",
		BlockStatuses: []int{403, 429, 503},
		StatusWeight:  4,
		Headers: []HeaderRule{
			{Header: "Server", Values: []string{"cloudflare", "akamai", "f5 big-ip", "imperva"}},
			{Header: "X-Cdn", Values: []string{"incapsula", "cloudflare"}},
			{Header: "Via", Values: []string{"akamai"}},
			{Header: "Cf-Ray"},
		},
		HeaderWeight: 1,
		Body: []PatternRule{
			{Name: "block_text", Pattern: reBlockText, Weight: 2},
			{Name: "captcha", Pattern: reCaptcha, Weight: 2},
		},
		BodyPrefix:   64 * 1024,
		TitlePattern: reTitle,
		TitleWeight:  2,
		TitleWindow:  4000,
	}
}
