package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UncleMcDonald/SmartScrape/internal/llm"
	"github.com/UncleMcDonald/SmartScrape/internal/metrics"
	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

// ErrNoClient is returned when the adapter has no LLM capability.
var ErrNoClient = errors.New("no LLM client configured")

// Adapter wraps single calls to an LLM client. It never retries.
type Adapter struct {
	client   llm.Client
	provider string
	model    string
	limit    int
	logger   *slog.Logger
}

func NewAdapter(client llm.Client, contentLimit int, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if contentLimit <= 0 {
		contentLimit = DefaultContentLimit
	}
	a := &Adapter{
		client:   client,
		provider: "unknown",
		model:    "unknown",
		limit:    contentLimit,
		logger:   logger.With("component", "extract"),
	}
	if d, ok := client.(llm.Described); ok {
		a.provider, a.model = string(d.Provider()), d.Model()
	}
	return a
}

// Configured reports whether an LLM client is present.
func (a *Adapter) Configured() bool { return a != nil && a.client != nil }

// Extract asks the model for records. Malformed replies come back as a
// parse-error record; only a failed LLM call returns an error.
func (a *Adapter) Extract(ctx context.Context, req Request) ([]model.Record, error) {
	reply, err := a.complete(ctx, "extract", DataPrompt(req, a.limit))
	if err != nil {
		return nil, err
	}
	records := ParseRecords(reply)
	if msg, reason, ok := model.ErrorOnly(records); ok && msg == ParseErrorMessage {
		a.logger.Warn("llm_reply_unparseable", "reason", reason, "reply_len", len(reply))
	}
	return records, nil
}

// AnalyzeFields asks the model which fields an instruction calls for.
func (a *Adapter) AnalyzeFields(ctx context.Context, instruction string) ([]string, error) {
	reply, err := a.complete(ctx, "fields", FieldPrompt(instruction))
	if err != nil {
		return nil, err
	}
	return ParseStrings(reply)
}

func (a *Adapter) complete(ctx context.Context, kind, prompt string) (string, error) {
	if !a.Configured() {
		return "", ErrNoClient
	}
	reply, err := a.client.Complete(ctx, prompt)
	metrics.RecordLLMCall(a.provider, a.model, kind, err == nil)
	if err != nil {
		a.logger.Warn("llm_call_failed", "kind", kind, "provider", a.provider, "error", err)
		return "", fmt.Errorf("llm %s call: %w", kind, err)
	}
	return reply, nil
}
