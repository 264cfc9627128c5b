package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"salesdash/internal"
	"salesdash/internal/catalog"
	"salesdash/internal/logger"
)

// RunRecorder persists a summary of each successful run.
type RunRecorder interface {
	RecordRun(rec internal.RunRecord) error
}

type Option func(*Engine)

func WithRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMatchOptions(opts catalog.MatchOptions) Option {
	return func(e *Engine) { e.match = opts }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine runs one analytics request end to end. It holds no state between
// runs; every accumulator lives inside Run.
type Engine struct {
	docs     DocumentSource
	catalog  CatalogSource
	recorder RunRecorder
	match    catalog.MatchOptions
	now      func() time.Time
	log      zerolog.Logger
}

func NewEngine(docs DocumentSource, catalogSrc CatalogSource, opts ...Option) *Engine {
	e := &Engine{
		docs:    docs,
		catalog: catalogSrc,
		match:   catalog.DefaultMatchOptions(),
		now:     time.Now,
		log:     logger.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) source(b Basis) LineSource {
	if b == BasisCash {
		return CashSource{Docs: e.docs}
	}
	return AccrualSource{Docs: e.docs}
}

// Run resolves f, fetches, normalizes and aggregates. Any fetch failure aborts
// the run and no partial result is returned.
func (e *Engine) Run(ctx context.Context, tenant string, f Filters) (*Result, error) {
	started := time.Now()
	traceID := uuid.NewString()
	rng := NormalizeRange(f, e.now())
	log := e.log.With().Str("trace_id", traceID).Str("tenant", tenant).Logger()

	items, err := e.catalog.Catalog(ctx, tenant)
	if err != nil {
		log.Error().Err(err).Msg("catalog fetch failed")
		return nil, fmt.Errorf("analytics: catalog: %w", err)
	}
	index := catalog.BuildIndex(items, e.match)

	normalizer := NewNormalizer(index, rng.Granularity)
	collected, err := e.source(rng.Basis).Collect(ctx, tenant, rng, normalizer)
	if err != nil {
		log.Error().Err(err).Str("basis", string(rng.Basis)).Msg("collect failed")
		return nil, fmt.Errorf("analytics: %w", err)
	}

	agg := NewAggregator()
	agg.AddAll(collected.Lines)

	diag := Diagnostics{
		Counters:              collected.Counters,
		InferredQtyLines:      normalizer.InferredQtyLines(),
		Lines:                 len(collected.Lines),
		DroppedLines:          normalizer.DroppedLines(),
		UnreconciledDocuments: normalizer.UnreconciledDocuments(),
		PaymentsFetched:       collected.PaymentsFetched,
		PaymentsExcluded:      collected.PaymentsExcluded,
		CatalogItems:          index.Len(),
		TraceID:               traceID,
		DurationMs:            time.Since(started).Milliseconds(),
	}
	res := Summarize(agg, rng, diag)

	log.Info().
		Str("basis", string(rng.Basis)).
		Str("start", res.Filters.Start).
		Str("end", res.Filters.End).
		Int("fetched", diag.Fetched).
		Int("included", diag.Included).
		Int("excluded_non_sales", diag.ExcludedNonSales).
		Int("excluded_status", diag.ExcludedStatus).
		Int("inferred_qty_lines", diag.InferredQtyLines).
		Str("sales", res.Totals.Sales.String()).
		Int64("duration_ms", diag.DurationMs).
		Msg("analytics run complete")

	if e.recorder != nil {
		if err := e.recorder.RecordRun(runRecord(tenant, res)); err != nil {
			log.Warn().Err(err).Msg("record run failed")
		}
	}
	return res, nil
}

func runRecord(tenant string, res *Result) internal.RunRecord {
	d := res.Diagnostics
	return internal.RunRecord{
		TraceID:    d.TraceID,
		Tenant:     tenant,
		Basis:      string(res.Filters.Basis),
		Preset:     string(res.Filters.Preset),
		RangeStart: res.Filters.Start,
		RangeEnd:   res.Filters.End,
		Counts: map[string]int{
			"fetched":               d.Fetched,
			"included":              d.Included,
			"excludedNonSales":      d.ExcludedNonSales,
			"excludedStatus":        d.ExcludedStatus,
			"creditDocuments":       d.CreditDocuments,
			"inferredQtyLines":      d.InferredQtyLines,
			"lines":                 d.Lines,
			"droppedLines":          d.DroppedLines,
			"unreconciledDocuments": d.UnreconciledDocuments,
			"paymentsFetched":       d.PaymentsFetched,
			"paymentsExcluded":      d.PaymentsExcluded,
		},
		TotalsSales: res.Totals.Sales.String(),
		DurationMs:  d.DurationMs,
	}
}
