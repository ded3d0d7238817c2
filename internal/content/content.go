// Package content turns rendered markup into the text handed to the LLM and
// ranks candidate main product images.
package content

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

type Options struct {
	// Format selects plain visible text or markdown.
	Format             string
	MaxImageCandidates int
	Rules              *ImageRules
}

// Result is the cleaned page.
type Result struct {
	Text   string
	Title  string
	Images []CandidateImage
}

// TopImage returns the best candidate URL or "".
func (r Result) TopImage() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0].URL
}

type Extractor struct {
	format string
	limit  int
	rules  ImageRules
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	rules := DefaultImageRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	limit := opts.MaxImageCandidates
	if limit <= 0 {
		limit = 5
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != FormatMarkdown {
		format = FormatText
	}
	return &Extractor{format: format, limit: limit, rules: rules, logger: logger.With("component", "content")}
}

// FromError stands in for a page that could not be fetched.
func FromError(reason, details string) Result {
	return Result{Text: fmt.Sprintf("Error: %s - %s", reason, details)}
}

// nonContent is removed before any text is taken from the page.
const nonContent = `script, style, noscript, template, svg, [hidden], [aria-hidden="true"], [style*="display:none"], [style*="display: none"]`

// Extract parses markup and returns its visible text and, when rankImages is
// set, the ranked image candidates. baseURL resolves relative references.
func (e *Extractor) Extract(markup, baseURL string, rankImages bool) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.logger.Warn("parse_failed_using_fallback", "error", err)
		return fallbackExtract(markup, baseURL, rankImages, e.rules)
	}

	title := pageTitle(doc)

	var images []CandidateImage
	if rankImages {
		rk := newRanker(e.rules, baseURL, title, e.logger)
		rk.openGraph(doc)
		rk.structuredData(doc)
		rk.imgTags(doc)
		images = rk.ranked(e.limit)
	}

	doc.Find(nonContent).Remove()

	var text string
	if e.format == FormatMarkdown {
		text = e.markdown(doc, baseURL)
	}
	if text == "" {
		text = visibleText(doc.Selection)
	}
	if text == "" && strings.TrimSpace(markup) != "" {
		// Pages that hide <body> until scripts run leave nothing visible.
		e.logger.Debug("no_visible_text_using_fallback", "url", baseURL)
		text = fallbackExtract(markup, baseURL, false, e.rules).Text
	}

	return Result{Text: text, Title: title, Images: images}
}

func (e *Extractor) markdown(doc *goquery.Document, baseURL string) string {
	domain := ""
	if u, err := url.Parse(baseURL); err == nil {
		domain = u.Hostname()
	}
	converter := htmlmd.NewConverter(domain, true, nil)
	md := converter.Convert(doc.Selection)
	return strings.TrimSpace(md)
}

func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", "")); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// visibleText joins every non-empty text run with a newline, collapsing
// whitespace inside each run.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}

var (
	reDropBlocks = regexp.MustCompile(`(?is)<(script|style|noscript|template|svg)\b.*?</(script|style|noscript|template|svg)>`)
	reTags       = regexp.MustCompile(`(?s)<[^>]*>`)
	reOGImage    = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']+)["']`)
)

// fallbackExtract is the permissive path used when the markup cannot be
// read into a tree or the tree yields no visible text: tags are stripped
// with patterns and only the Open Graph image is considered.
func fallbackExtract(markup, baseURL string, rankImages bool, rules ImageRules) Result {
	stripped := reTags.ReplaceAllString(reDropBlocks.ReplaceAllString(markup, "\n"), "\n")
	var lines []string
	for _, line := range strings.Split(html.UnescapeString(stripped), "\n") {
		if t := strings.Join(strings.Fields(line), " "); t != "" {
			lines = append(lines, t)
		}
	}
	res := Result{Text: strings.Join(lines, "\n")}
	if rankImages {
		if m := reOGImage.FindStringSubmatch(markup); m != nil {
			rk := newRanker(rules, baseURL, "", slog.Default())
			rk.add(CandidateImage{URL: rk.resolve(m[1]), Score: rules.OpenGraphScore, Source: SourceOpenGraph})
			res.Images = rk.ranked(1)
		}
	}
	return res
}
