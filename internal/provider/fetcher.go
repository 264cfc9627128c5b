package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salesdash/internal"
	"salesdash/internal/logger"
)

const (
	DefaultPageSize     = 100
	DefaultHydrateBatch = 50
)

// Fetcher drives a DocumentProvider: it pages through list endpoints, hydrates
// documents returned without line items and wraps every call in WithRefresh.
type Fetcher struct {
	provider     DocumentProvider
	session      Session
	pageSize     int
	hydrateBatch int
	log          zerolog.Logger
}

func NewFetcher(provider DocumentProvider, session Session, pageSize, hydrateBatch int) *Fetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if hydrateBatch <= 0 {
		hydrateBatch = DefaultHydrateBatch
	}
	return &Fetcher{
		provider:     provider,
		session:      session,
		pageSize:     pageSize,
		hydrateBatch: hydrateBatch,
		log:          logger.WithComponent("fetcher"),
	}
}

// WhereDateRange renders the provider filter for documents dated within
// [start, end], both days inclusive.
func WhereDateRange(start, end time.Time) string {
	return fmt.Sprintf("Date >= DateTime(%s) && Date <= DateTime(%s)", dateTimeArg(start), dateTimeArg(end))
}

func dateTimeArg(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d,%02d,%02d", t.Year(), int(t.Month()), t.Day())
}

// Documents returns invoices and credit notes dated within [start, end].
func (f *Fetcher) Documents(ctx context.Context, tenant string, start, end time.Time) ([]internal.Document, error) {
	where := WhereDateRange(start, end)

	var out []internal.Document
	for _, resource := range []Resource{ResourceInvoices, ResourceCreditNotes} {
		docs, err := f.pages(ctx, tenant, resource, where)
		if err != nil {
			return nil, err
		}
		docs, err = f.hydrate(ctx, tenant, resource, docs)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	f.log.Debug().Str("tenant", tenant).Int("documents", len(out)).Msg("documents fetched")
	return out, nil
}

// DocumentsByIDs looks ids up as invoices first and then as credit notes.
func (f *Fetcher) DocumentsByIDs(ctx context.Context, tenant string, ids []string) ([]internal.Document, error) {
	found, err := f.byIDs(ctx, tenant, ResourceInvoices, ids)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(found))
	for _, d := range found {
		seen[d.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return found, nil
	}
	credits, err := f.byIDs(ctx, tenant, ResourceCreditNotes, missing)
	if err != nil {
		return nil, err
	}
	return append(found, credits...), nil
}

func (f *Fetcher) Payments(ctx context.Context, tenant string, start, end time.Time) ([]internal.Payment, error) {
	where := WhereDateRange(start, end)
	return paginate(ctx, f.session, func(ctx context.Context, page int) ([]internal.Payment, error) {
		return f.provider.FetchPayments(ctx, tenant, where, page, f.pageSize)
	})
}

func (f *Fetcher) Catalog(ctx context.Context, tenant string) ([]internal.CatalogItem, error) {
	return WithRefresh(ctx, f.session, func(ctx context.Context) ([]internal.CatalogItem, error) {
		return f.provider.FetchCatalogItems(ctx, tenant)
	})
}

func (f *Fetcher) pages(ctx context.Context, tenant string, resource Resource, where string) ([]internal.Document, error) {
	return paginate(ctx, f.session, func(ctx context.Context, page int) ([]internal.Document, error) {
		return f.provider.FetchDocuments(ctx, tenant, resource, where, page, f.pageSize)
	})
}

// paginate walks pages from 1 until an empty page or one shorter than an
// earlier page. The provider may cap pages below the requested size, so the
// first page never counts as short.
func paginate[T any](ctx context.Context, session Session, fetch func(ctx context.Context, page int) ([]T, error)) ([]T, error) {
	var out []T
	largest := 0
	for page := 1; ; page++ {
		batch, err := WithRefresh(ctx, session, func(ctx context.Context) ([]T, error) {
			return fetch(ctx, page)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) == 0 || len(batch) < largest {
			return out, nil
		}
		largest = len(batch)
	}
}

// hydrate refetches, by ID, documents that came back from a list call without
// line items but with a non-zero total. List endpoints may return summaries.
func (f *Fetcher) hydrate(ctx context.Context, tenant string, resource Resource, docs []internal.Document) ([]internal.Document, error) {
	var ids []string
	for _, d := range docs {
		if len(d.LineItems) == 0 && !d.Total.IsZero() && d.ID != "" {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return docs, nil
	}

	full, err := f.byIDs(ctx, tenant, resource, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]internal.Document, len(full))
	for _, d := range full {
		byID[d.ID] = d
	}
	for i, d := range docs {
		if h, ok := byID[d.ID]; ok && len(h.LineItems) > 0 {
			docs[i] = h
		}
	}
	f.log.Debug().Str("resource", string(resource)).Int("requested", len(ids)).Int("returned", len(full)).Msg("hydrated documents")
	return docs, nil
}

func (f *Fetcher) byIDs(ctx context.Context, tenant string, resource Resource, ids []string) ([]internal.Document, error) {
	var out []internal.Document
	for startIdx := 0; startIdx < len(ids); startIdx += f.hydrateBatch {
		endIdx := min(startIdx+f.hydrateBatch, len(ids))
		chunk := ids[startIdx:endIdx]
		batch, err := WithRefresh(ctx, f.session, func(ctx context.Context) ([]internal.Document, error) {
			return f.provider.FetchDocumentsByIDs(ctx, tenant, resource, chunk)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}
