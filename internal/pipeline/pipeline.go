// Package pipeline runs one URL through fetch, content extraction and
// structured extraction, and applies the main-image policy to the records.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/UncleMcDonald/SmartScrape/internal/content"
	"github.com/UncleMcDonald/SmartScrape/internal/extract"
	"github.com/UncleMcDonald/SmartScrape/internal/fields"
	"github.com/UncleMcDonald/SmartScrape/internal/metrics"
	"github.com/UncleMcDonald/SmartScrape/internal/model"
	"github.com/UncleMcDonald/SmartScrape/internal/scraper"
)

// Fetcher loads a URL into rendered markup.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, fo scraper.FetchOptions) (*scraper.Page, error)
}

// Extractor turns page content into records.
type Extractor interface {
	Configured() bool
	Extract(ctx context.Context, req extract.Request) ([]model.Record, error)
}

const (
	ErrNoProcessor   = "LLM processor not provided"
	ErrEmptyPage     = "Failed to fetch page content"
	ErrLLMProcessing = "Failed to process content with LLM"
)

// ImageField is the record key the pipeline writes the main image under.
const ImageField = "Main Image URL"

// Request carries the per-URL inputs that are shared across a batch.
type Request struct {
	Instruction    string
	RequiredFields []string
	Production     bool
}

type Pipeline struct {
	fetcher   Fetcher
	content   *content.Extractor
	extractor Extractor
	table     *fields.Table
	keywords  []string
	logger    *slog.Logger
}

func New(fetcher Fetcher, ce *content.Extractor, ex Extractor, table *fields.Table, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if ce == nil {
		ce = content.New(content.Options{}, logger)
	}
	if table == nil {
		table = fields.DefaultTable()
	}
	return &Pipeline{
		fetcher:   fetcher,
		content:   ce,
		extractor: ex,
		table:     table,
		keywords:  DefaultImageKeywords,
		logger:    logger.With("component", "pipeline"),
	}
}

// Configured reports whether structured extraction is available.
func (p *Pipeline) Configured() bool {
	return p.extractor != nil && p.extractor.Configured()
}

// Table returns the synonym table used for image-field detection and
// normalization.
func (p *Pipeline) Table() *fields.Table { return p.table }

// Process runs the stages for one URL strictly in order and always returns
// an outcome; failures of any stage become a failed outcome.
func (p *Pipeline) Process(ctx context.Context, rawURL string, req Request) model.Outcome {
	start := time.Now()
	out := p.process(ctx, rawURL, req)
	metrics.RecordURLOutcome(string(out.Status))
	p.logger.Info("url_processed",
		"url", rawURL,
		"status", out.Status,
		"records", len(out.Data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (p *Pipeline) process(ctx context.Context, rawURL string, req Request) model.Outcome {
	if !p.Configured() {
		return failed(rawURL, ErrNoProcessor, "")
	}
	wantImage := WantsImage(req.Instruction, p.keywords)

	page, err := p.fetcher.Fetch(ctx, rawURL, scraper.FetchOptions{Production: req.Production})
	if err != nil {
		var fe *scraper.FetchError
		if errors.As(err, &fe) {
			summary := content.FromError(fe.Reason(), fe.Details())
			p.logger.Warn("url_fetch_failed", "url", rawURL, "kind", fe.Kind, "attempts", fe.Attempts, "summary", summary.Text)
			return failed(rawURL, fe.Reason(), fe.Details())
		}
		return failed(rawURL, "Failed to fetch page", err.Error())
	}
	if page == nil || page.Markup == "" {
		return failed(rawURL, ErrEmptyPage, "")
	}

	base := page.URL
	if base == "" {
		base = rawURL
	}
	res := p.content.Extract(page.Markup, base, wantImage)

	xreq := extract.Request{
		Content:        res.Text,
		Instruction:    req.Instruction,
		RequiredFields: req.RequiredFields,
	}
	for _, c := range res.Images {
		xreq.ImageCandidates = append(xreq.ImageCandidates, c.URL)
	}

	records, err := p.extractor.Extract(ctx, xreq)
	if err != nil {
		return failed(rawURL, ErrLLMProcessing, err.Error())
	}
	if msg, reason, ok := model.ErrorOnly(records); ok {
		if msg == "" {
			msg = "Unable to extract data"
		}
		return failed(rawURL, msg, reason)
	}

	p.applyImagePolicy(records, wantImage, res.TopImage())
	return model.Outcome{URL: rawURL, Status: model.StatusSuccess, Data: records}
}

func failed(url, msg, details string) model.Outcome {
	return model.Outcome{URL: url, Status: model.StatusFailed, Error: msg, Details: details}
}
