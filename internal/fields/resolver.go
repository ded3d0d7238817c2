package fields

import (
	"context"
	"log/slog"
)

// Analyzer proposes field names for an extraction instruction.
type Analyzer interface {
	AnalyzeFields(ctx context.Context, instruction string) ([]string, error)
}

// Resolver decides the required field set for a batch.
type Resolver struct {
	analyzer Analyzer
	table    *Table
	logger   *slog.Logger
}

func NewResolver(analyzer Analyzer, table *Table, logger *slog.Logger) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{analyzer: analyzer, table: table, logger: logger.With("component", "fields")}
}

func (r *Resolver) Table() *Table { return r.table }

// Resolve makes one analysis call and returns canonical, de-duplicated field
// names. Any failure or empty answer falls back to DefaultFields.
func (r *Resolver) Resolve(ctx context.Context, instruction string) []string {
	if r.analyzer == nil {
		return r.fallback("no analyzer")
	}
	names, err := r.analyzer.AnalyzeFields(ctx, instruction)
	if err != nil {
		r.logger.Warn("field_analysis_failed", "error", err)
		return r.fallback("analysis failed")
	}
	resolved := r.table.CanonicalList(names)
	if len(resolved) == 0 {
		return r.fallback("empty analysis")
	}
	r.logger.Info("fields_resolved", "fields", resolved, "table_version", r.table.Version)
	return resolved
}

func (r *Resolver) fallback(why string) []string {
	r.logger.Info("fields_defaulted", "reason", why)
	out := make([]string, len(DefaultFields))
	copy(out, DefaultFields)
	return out
}
