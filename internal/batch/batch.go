// Package batch drives many URLs through the single-URL pipeline with a
// bounded worker pool and aggregates their outcomes.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/UncleMcDonald/SmartScrape/internal/fields"
	"github.com/UncleMcDonald/SmartScrape/internal/metrics"
	"github.com/UncleMcDonald/SmartScrape/internal/model"
	"github.com/UncleMcDonald/SmartScrape/internal/pipeline"
)

// DefaultParallel is used when the requested worker count is not positive.
const DefaultParallel = 3

// Phase is a step of a batch run.
type Phase string

const (
	PhaseInit            Phase = "INIT"
	PhaseResolvingFields Phase = "RESOLVING_FIELDS"
	PhaseDispatching     Phase = "DISPATCHING"
	PhaseRunning         Phase = "RUNNING"
	PhaseAggregating     Phase = "AGGREGATING"
	PhaseDone            Phase = "DONE"
)

// InputError rejects a malformed batch before any work starts.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// ProcessingError aborts a batch before dispatch, e.g. when no LLM is
// configured.
type ProcessingError struct {
	Msg string
}

func (e *ProcessingError) Error() string { return e.Msg }

// Processor runs the pipeline for one URL.
type Processor interface {
	Configured() bool
	Process(ctx context.Context, rawURL string, req pipeline.Request) model.Outcome
}

// FieldResolver picks the required fields for a batch.
type FieldResolver interface {
	Resolve(ctx context.Context, instruction string) []string
}

// Options are per-batch settings.
type Options struct {
	Parallel         int
	Production       bool
	OptimizationMode string
}

type Coordinator struct {
	proc            Processor
	resolver        FieldResolver
	table           *fields.Table
	defaultParallel int
	logger          *slog.Logger

	now      func() time.Time
	observer func(batchID string, p Phase)
}

func NewCoordinator(proc Processor, resolver FieldResolver, table *fields.Table, defaultParallel int, logger *slog.Logger) *Coordinator {
	if table == nil {
		table = fields.DefaultTable()
	}
	if defaultParallel <= 0 {
		defaultParallel = DefaultParallel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		proc:            proc,
		resolver:        resolver,
		table:           table,
		defaultParallel: defaultParallel,
		logger:          logger.With("component", "batch"),
		now:             time.Now,
	}
}

// WithObserver registers a callback invoked on every phase transition.
func (c *Coordinator) WithObserver(fn func(batchID string, p Phase)) *Coordinator {
	c.observer = fn
	return c
}

// WorkerCount is the effective pool size for n URLs.
func WorkerCount(requested, n, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested <= 0 {
		requested = DefaultParallel
	}
	if n < requested {
		return n
	}
	return requested
}

// Run processes every URL exactly once and returns the aggregated outcome.
// Per-URL failures never fail the batch. Cancelling ctx stops the workers
// from taking further URLs and Run returns the context error.
func (c *Coordinator) Run(ctx context.Context, urls []string, instruction string, opts Options) (*model.BatchOutcome, error) {
	batchID := "batch_" + uuid.NewString()
	start := c.now()

	c.enter(batchID, PhaseInit)
	if len(urls) == 0 {
		return nil, &InputError{Msg: "Missing or invalid 'urls' list"}
	}
	if c.proc == nil || !c.proc.Configured() {
		return nil, &ProcessingError{Msg: pipeline.ErrNoProcessor}
	}
	workers := WorkerCount(opts.Parallel, len(urls), c.defaultParallel)

	c.enter(batchID, PhaseResolvingFields)
	var required []string
	if c.resolver != nil {
		required = c.resolver.Resolve(ctx, instruction)
	} else {
		required = append([]string(nil), fields.DefaultFields...)
	}
	required = pipeline.RequiredFields(required, instruction, c.table)
	req := pipeline.Request{Instruction: instruction, RequiredFields: required, Production: opts.Production}

	c.enter(batchID, PhaseDispatching)
	metrics.RecordBatch(len(urls))
	q := newURLQueue(urls)
	res := newResults(len(urls))
	c.logger.Info("batch_started", "batch_id", batchID, "urls", len(urls), "workers", workers, "fields", required)

	c.enter(batchID, PhaseRunning)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				u, ok := q.next()
				if !ok {
					return nil
				}
				res.append(c.processOne(ctx, u, req))
			}
		})
	}

	c.enter(batchID, PhaseAggregating)
	if err := g.Wait(); err != nil {
		c.logger.Warn("batch_abandoned", "batch_id", batchID, "processed", len(res.snapshot()), "error", err)
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	outcomes := res.snapshot()
	successful := 0
	for i := range outcomes {
		if outcomes[i].Succeeded() {
			outcomes[i].Data = c.table.Normalize(outcomes[i].Data, required)
			successful++
		}
	}

	elapsed := c.now().Sub(start)
	out := &model.BatchOutcome{
		Total:      len(urls),
		Successful: successful,
		Failed:     len(outcomes) - successful,
		Results:    outcomes,
		Metadata: model.BatchMetadata{
			ProcessingTimeSeconds: math.Round(elapsed.Seconds()*100) / 100,
			TimestampUTC:          c.now().UTC().Format("2006-01-02T15:04:05Z"),
			RequiredFields:        required,
			BatchID:               batchID,
			OptimizationMode:      opts.OptimizationMode,
		},
	}

	c.enter(batchID, PhaseDone)
	c.logger.Info("batch_finished",
		"batch_id", batchID,
		"total", out.Total,
		"successful", out.Successful,
		"failed", out.Failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return out, nil
}

// processOne converts a panic in the pipeline into a failed outcome so the
// worker keeps draining the queue.
func (c *Coordinator) processOne(ctx context.Context, u string, req pipeline.Request) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("url_panic", "url", u, "panic", r)
			metrics.RecordURLOutcome(string(model.StatusFailed))
			out = model.Outcome{URL: u, Status: model.StatusFailed, Error: "Processing error", Details: fmt.Sprint(r)}
		}
	}()
	return c.proc.Process(ctx, u, req)
}

func (c *Coordinator) enter(batchID string, p Phase) {
	c.logger.Debug("batch_phase", "batch_id", batchID, "phase", p)
	if c.observer != nil {
		c.observer(batchID, p)
	}
}
