package analytics

import (
	"context"
	"fmt"
	"time"

	"salesdash/internal"
)

// DocumentSource is the fetch boundary the engine reads from.
type DocumentSource interface {
	Documents(ctx context.Context, tenant string, start, end time.Time) ([]internal.Document, error)
	DocumentsByIDs(ctx context.Context, tenant string, ids []string) ([]internal.Document, error)
	Payments(ctx context.Context, tenant string, start, end time.Time) ([]internal.Payment, error)
}

// CatalogSource supplies the catalog snapshot used for identity resolution.
type CatalogSource interface {
	Catalog(ctx context.Context, tenant string) ([]internal.CatalogItem, error)
}

// Collected is what a LineSource hands to the aggregator.
type Collected struct {
	Lines            []Line
	Counters         Counters
	PaymentsFetched  int
	PaymentsExcluded int
}

// LineSource produces normalized lines for one basis. Both bases share the
// same Normalizer and feed the same Aggregator.
type LineSource interface {
	Collect(ctx context.Context, tenant string, rng Range, n *Normalizer) (Collected, error)
}

// AccrualSource buckets documents by issue date.
type AccrualSource struct {
	Docs DocumentSource
}

func (s AccrualSource) Collect(ctx context.Context, tenant string, rng Range, n *Normalizer) (Collected, error) {
	docs, err := s.Docs.Documents(ctx, tenant, rng.Start, rng.End)
	if err != nil {
		return Collected{}, fmt.Errorf("fetch documents: %w", err)
	}
	classified, counters := Classify(docs, rng, rng.IncludePurchases)

	out := Collected{Counters: counters}
	for _, c := range classified {
		out.Lines = append(out.Lines, n.Lines(c)...)
	}
	return out, nil
}

// CashSource buckets by payment date. Each paid document is normalized once
// and its lines are scaled by the share of the document total the payment
// covers.
type CashSource struct {
	Docs DocumentSource
}

func (s CashSource) Collect(ctx context.Context, tenant string, rng Range, n *Normalizer) (Collected, error) {
	payments, err := s.Docs.Payments(ctx, tenant, rng.Start, rng.End)
	if err != nil {
		return Collected{}, fmt.Errorf("fetch payments: %w", err)
	}

	out := Collected{PaymentsFetched: len(payments)}
	var kept []internal.Payment
	var ids []string
	seen := make(map[string]struct{})
	for _, p := range payments {
		if !paymentCounts(p, rng) {
			out.PaymentsExcluded++
			continue
		}
		kept = append(kept, p)
		if _, ok := seen[p.DocumentID]; !ok {
			seen[p.DocumentID] = struct{}{}
			ids = append(ids, p.DocumentID)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}

	docs, err := s.Docs.DocumentsByIDs(ctx, tenant, ids)
	if err != nil {
		return Collected{}, fmt.Errorf("hydrate paid documents: %w", err)
	}

	out.Counters.Fetched = len(docs)
	byID := make(map[string]internal.Document, len(docs))
	lines := make(map[string][]Line, len(docs))
	for _, doc := range docs {
		c, why := classify(doc, rng.IncludePurchases)
		if !out.Counters.count(why) {
			continue
		}
		out.Counters.retain(c)
		byID[doc.ID] = doc
		lines[doc.ID] = n.Lines(c)
	}

	for _, p := range kept {
		doc, ok := byID[p.DocumentID]
		if !ok || doc.Total.IsZero() {
			out.PaymentsExcluded++
			continue
		}
		paid := p.Amount.Abs()
		total := doc.Total.Abs()
		for _, l := range lines[doc.ID] {
			out.Lines = append(out.Lines, l.Scale(paid, total).At(p.Date, rng.Granularity))
		}
	}
	return out, nil
}

func paymentCounts(p internal.Payment, rng Range) bool {
	if p.DocumentID == "" {
		return false
	}
	if p.Status == internal.StatusDeleted || p.Status == internal.StatusVoided {
		return false
	}
	return rng.Contains(p.Date)
}
