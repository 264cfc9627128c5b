package analytics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"salesdash/internal"
	"salesdash/internal/logger"
	"salesdash/internal/provider"
)

type memorySource struct {
	docs     []internal.Document
	payments []internal.Payment
	items    []internal.CatalogItem
	err      error

	byIDCalls [][]string
}

func (m *memorySource) Documents(context.Context, string, time.Time, time.Time) ([]internal.Document, error) {
	return m.docs, m.err
}

func (m *memorySource) DocumentsByIDs(_ context.Context, _ string, ids []string) ([]internal.Document, error) {
	m.byIDCalls = append(m.byIDCalls, ids)
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []internal.Document
	for _, d := range m.docs {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, m.err
}

func (m *memorySource) Payments(context.Context, string, time.Time, time.Time) ([]internal.Payment, error) {
	return m.payments, m.err
}

func (m *memorySource) Catalog(context.Context, string) ([]internal.CatalogItem, error) {
	return m.items, nil
}

type recorderStub struct {
	runs []internal.RunRecord
}

func (r *recorderStub) RecordRun(rec internal.RunRecord) error {
	r.runs = append(r.runs, rec)
	return nil
}

func fixedClock() time.Time { return june15 }

func newTestEngine(src *memorySource, opts ...Option) *Engine {
	opts = append([]Option{WithClock(fixedClock), WithLogger(logger.Nop())}, opts...)
	return NewEngine(src, src, opts...)
}

func TestEngineAccrualRun(t *testing.T) {
	src := &memorySource{
		docs:  sampleDocuments(),
		items: []internal.CatalogItem{{Code: "W-1", Name: "Widget"}, {Code: "G-7", Name: "Gadget"}},
	}
	rec := &recorderStub{}
	res, err := newTestEngine(src, WithRecorder(rec)).Run(context.Background(), "tenant", Filters{Preset: "ytd", Granularity: "month"})
	require.NoError(t, err)

	assert.Equal(t, ResolvedFilters{Preset: PresetYTD, Start: "2024-01-01", End: "2024-06-15", Granularity: GranularityMonth, Basis: BasisAccrual}, res.Filters)
	// inv-b, cn-c and inv-e fall outside 2024-01-01..2024-06-15
	assert.Equal(t, Counters{Fetched: 7, Included: 3, ExcludedStatus: 1}, res.Diagnostics.Counters)
	assertDec(t, "70", res.Totals.Sales)
	assert.Equal(t, 2, res.Diagnostics.CatalogItems)
	assert.NotEmpty(t, res.Diagnostics.TraceID)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, res.Diagnostics.TraceID, rec.runs[0].TraceID)
	assert.Equal(t, "70", rec.runs[0].TotalsSales)
	assert.Equal(t, 3, rec.runs[0].Counts["included"])
}

func TestEngineCashBasisScalesByPayment(t *testing.T) {
	inv := invoice("inv-1", "2024-03-01", internal.LineItem{ItemCode: "W-1", Quantity: dec("4"), LineAmount: dec("220"), TaxAmount: dec("20")})
	inv.Total = decimal.NewFromInt(220)
	cn := creditNote("cn-1", "2024-03-02", internal.LineItem{ItemCode: "W-1", Quantity: dec("1"), LineAmount: dec("55"), TaxAmount: dec("5")})
	cn.Total = decimal.NewFromInt(55)
	draft := invoice("draft-1", "2024-03-03", internal.LineItem{ItemCode: "W-1", Quantity: dec("1"), LineAmount: dec("10")})
	draft.Status = internal.StatusDraft
	draft.Total = decimal.NewFromInt(10)

	src := &memorySource{
		docs: []internal.Document{inv, cn, draft},
		payments: []internal.Payment{
			{ID: "p1", Date: day(2024, 6, 1), Amount: decimal.NewFromInt(110), Status: internal.StatusAuthorised, DocumentID: "inv-1"},
			{ID: "p2", Date: day(2024, 6, 2), Amount: decimal.NewFromInt(110), Status: internal.StatusAuthorised, DocumentID: "inv-1"},
			{ID: "p3", Date: day(2024, 6, 3), Amount: decimal.NewFromInt(55), Status: internal.StatusAuthorised, DocumentID: "cn-1"},
			{ID: "p4", Date: day(2024, 6, 4), Amount: decimal.NewFromInt(99), Status: internal.StatusDeleted, DocumentID: "inv-1"},
			{ID: "p5", Date: day(2024, 6, 5), Amount: decimal.NewFromInt(10), Status: internal.StatusAuthorised, DocumentID: "draft-1"},
		},
	}

	res, err := newTestEngine(src).Run(context.Background(), "tenant", Filters{Preset: "thisMonth", Basis: "cash"})
	require.NoError(t, err)

	require.Len(t, src.byIDCalls, 1)
	assert.Equal(t, []string{"inv-1", "cn-1", "draft-1"}, src.byIDCalls[0])

	require.Len(t, res.Series, 3)
	assert.Equal(t, "2024-06-01", res.Series[0].Key)
	assertDec(t, "2", res.Series[0].Quantity)
	assertDec(t, "100", res.Series[0].Sales)
	assertDec(t, "100", res.Series[1].Sales)
	assert.Equal(t, "2024-06-03", res.Series[2].Key)
	assertDec(t, "-50", res.Series[2].Sales)
	assertDec(t, "150", res.Totals.Sales)
	assertDec(t, "3", res.Totals.Quantity)

	assert.Equal(t, 5, res.Diagnostics.PaymentsFetched)
	assert.Equal(t, 2, res.Diagnostics.PaymentsExcluded)
	assert.Equal(t, Counters{Fetched: 3, Included: 2, ExcludedStatus: 1, CreditDocuments: 1}, res.Diagnostics.Counters)
	assert.Equal(t, 1, res.Credits.Count)
	assert.Equal(t, BasisCash, res.Filters.Basis)
}

func TestEngineFetchFailureReturnsNoResult(t *testing.T) {
	boom := &provider.RequestError{Op: "fetchDocuments", Status: http.StatusBadGateway}
	src := &memorySource{err: boom}

	res, err := newTestEngine(src).Run(context.Background(), "tenant", Filters{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, http.StatusBadGateway, provider.StatusOf(err))
}

// flakyProvider answers 401 a fixed number of times before serving data.
type flakyProvider struct {
	unauthorized int
	docs         []internal.Document
}

func (f *flakyProvider) gate() error {
	if f.unauthorized > 0 {
		f.unauthorized--
		return &provider.RequestError{Op: "fake", Status: http.StatusUnauthorized, Err: provider.ErrUnauthorized}
	}
	return nil
}

func (f *flakyProvider) FetchDocuments(_ context.Context, _ string, resource provider.Resource, _ string, page, _ int) ([]internal.Document, error) {
	if err := f.gate(); err != nil {
		return nil, err
	}
	if resource != provider.ResourceInvoices || page > 1 {
		return nil, nil
	}
	return f.docs, nil
}

func (f *flakyProvider) FetchDocumentsByIDs(context.Context, string, provider.Resource, []string) ([]internal.Document, error) {
	return nil, f.gate()
}

func (f *flakyProvider) FetchCatalogItems(context.Context, string) ([]internal.CatalogItem, error) {
	return nil, f.gate()
}

func (f *flakyProvider) FetchPayments(context.Context, string, string, int, int) ([]internal.Payment, error) {
	return nil, f.gate()
}

type countingSession struct {
	refreshes int
	refuse    bool
}

func (s *countingSession) Token(context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "t"}, nil
}

func (s *countingSession) Refresh(context.Context) (*oauth2.Token, error) {
	s.refreshes++
	if s.refuse {
		return nil, errors.New("refresh refused")
	}
	return &oauth2.Token{AccessToken: "t2"}, nil
}

func TestEngineRecoversFromSingleUnauthorized(t *testing.T) {
	fp := &flakyProvider{unauthorized: 1, docs: []internal.Document{invoice("inv", "2024-06-10", scenarioLine())}}
	session := &countingSession{}
	fetcher := provider.NewFetcher(fp, session, 100, 50)

	res, err := NewEngine(fetcher, fetcher, WithClock(fixedClock)).Run(context.Background(), "tenant", Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, session.refreshes)
	assertDec(t, "18", res.Totals.Sales)
}

func TestEngineSecondUnauthorizedIsFatal(t *testing.T) {
	fp := &flakyProvider{unauthorized: 2}
	session := &countingSession{}
	fetcher := provider.NewFetcher(fp, session, 100, 50)

	res, err := NewEngine(fetcher, fetcher, WithClock(fixedClock)).Run(context.Background(), "tenant", Filters{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, provider.IsUnauthorized(err))
	assert.Equal(t, 1, session.refreshes)
}

func TestEngineNoSessionIsNotRetried(t *testing.T) {
	session := &countingSession{}
	fetcher := provider.NewFetcher(&noSessionProvider{}, session, 100, 50)

	res, err := NewEngine(fetcher, fetcher, WithClock(fixedClock)).Run(context.Background(), "tenant", Filters{})
	require.ErrorIs(t, err, provider.ErrNoSession)
	assert.Nil(t, res)
	assert.Zero(t, session.refreshes)
}

type noSessionProvider struct{ flakyProvider }

func (*noSessionProvider) FetchCatalogItems(context.Context, string) ([]internal.CatalogItem, error) {
	return nil, provider.ErrNoSession
}

func TestEngineRefusedRefreshIsFatal(t *testing.T) {
	fp := &flakyProvider{unauthorized: 1}
	session := &countingSession{refuse: true}
	fetcher := provider.NewFetcher(fp, session, 100, 50)

	res, err := NewEngine(fetcher, fetcher, WithClock(fixedClock)).Run(context.Background(), "tenant", Filters{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "refresh refused")
}
