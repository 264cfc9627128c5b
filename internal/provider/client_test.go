package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"salesdash/internal"
	"salesdash/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type staticSession struct {
	token     string
	refreshed int
	err       error
}

func (s *staticSession) Token(context.Context) (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token, Expiry: time.Now().Add(time.Hour)}, nil
}

func (s *staticSession) Refresh(context.Context) (*oauth2.Token, error) {
	s.refreshed++
	s.token = "refreshed"
	return &oauth2.Token{AccessToken: s.token, Expiry: time.Now().Add(time.Hour)}, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testClient(session Session, rt roundTripFunc) *Client {
	cfg := config.Config{
		ProviderAPIBaseURL: "https://example.test/api.xro/2.0",
		ProviderTimeoutMs:  1000,
	}
	client := NewClient(cfg, session, NewRateLimiter(0))
	client.httpClient = &http.Client{Transport: rt}
	return client
}

func TestFetchDocumentsDecodesBothCasings(t *testing.T) {
	session := &staticSession{token: "abc"}
	client := testClient(session, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api.xro/2.0/Invoices", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "tenant-1", r.Header.Get("Xero-Tenant-Id"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
		assert.Contains(t, r.URL.Query().Get("where"), "DateTime(2024,01,01)")
		return jsonResponse(http.StatusOK, `{"Invoices":[
			{"InvoiceID":"inv-1","Type":"ACCREC","Status":"AUTHORISED","DateString":"2024-01-05T00:00:00",
			 "Total":110,"TotalTax":10,"LineAmountTypes":"Inclusive",
			 "LineItems":[{"ItemCode":"W-1","Description":"Widget","Quantity":2,"UnitAmount":55,"LineAmount":110,"TaxAmount":10}]},
			{"invoiceID":"inv-2","type":"ACCRECCREDIT","status":"PAID","date":"/Date(1704931200000+0000)/",
			 "total":"20.50","lineAmountTypes":"NoTax","lineItems":[{"description":"Service","lineAmount":20.5}]}
		]}`), nil
	})

	where := WhereDateRange(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	docs, err := client.FetchDocuments(context.Background(), "tenant-1", ResourceInvoices, where, 2, 100)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	first := docs[0]
	assert.Equal(t, "inv-1", first.ID)
	assert.Equal(t, internal.TypeSalesInvoice, first.Type)
	assert.Equal(t, internal.StatusAuthorised, first.Status)
	assert.Equal(t, internal.TaxInclusive, first.TaxMode)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), first.Date)
	require.Len(t, first.LineItems, 1)
	assert.True(t, decimal.NewFromInt(110).Equal(*first.LineItems[0].LineAmount))

	second := docs[1]
	assert.Equal(t, "inv-2", second.ID)
	assert.Equal(t, internal.TypeSalesCreditNote, second.Type)
	assert.Equal(t, internal.StatusPaid, second.Status)
	assert.Equal(t, internal.TaxNone, second.TaxMode)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), second.Date)
	assert.True(t, decimal.RequireFromString("20.50").Equal(second.Total))
	assert.Nil(t, second.TotalTax)
	require.Len(t, second.LineItems, 1)
	assert.Nil(t, second.LineItems[0].Quantity)
}

func TestFetchUnauthorizedKeepsStatus(t *testing.T) {
	client := testClient(&staticSession{token: "stale"}, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"Title":"Unauthorized"}`), nil
	})

	_, err := client.FetchCatalogItems(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
}

func TestFetchServerErrorIsNotUnauthorized(t *testing.T) {
	client := testClient(&staticSession{token: "abc"}, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `rate limited`), nil
	})

	_, err := client.FetchPayments(context.Background(), "tenant-1", "", 1, 0)
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(err))

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "rate limited", reqErr.Detail)
	assert.Equal(t, "fetchPayments", reqErr.Op)
}

func TestFetchWithoutSessionSkipsNetwork(t *testing.T) {
	calls := 0
	client := testClient(&staticSession{err: ErrNoSession}, func(*http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	_, err := client.FetchDocumentsByIDs(context.Background(), "tenant-1", ResourceInvoices, []string{"a"})
	require.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, calls)
}

func TestFetchCatalogAndPayments(t *testing.T) {
	client := testClient(&staticSession{token: "abc"}, func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/Items"):
			return jsonResponse(http.StatusOK, `{"Items":[{"Code":"W-1","Name":"Widget","IsTrackedAsInventory":true},{"Code":"","Name":""}]}`), nil
		case strings.HasSuffix(r.URL.Path, "/Payments"):
			return jsonResponse(http.StatusOK, `{"Payments":[
				{"PaymentID":"p-1","Date":"2024-02-01","Amount":55,"Status":"AUTHORISED","Invoice":{"InvoiceID":"inv-1","Type":"ACCREC"}},
				{"PaymentID":"p-2","Date":"2024-02-02","Amount":20,"Status":"DELETED","CreditNote":{"CreditNoteID":"cn-1","Type":"ACCRECCREDIT"}}
			]}`), nil
		}
		t.Fatalf("unexpected path %s", r.URL.Path)
		return nil, nil
	})

	items, err := client.FetchCatalogItems(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, internal.CatalogItem{Code: "W-1", Name: "Widget", IsTracked: true}, items[0])

	payments, err := client.FetchPayments(context.Background(), "tenant-1", "", 1, 0)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "inv-1", payments[0].DocumentID)
	assert.Equal(t, internal.TypeSalesInvoice, payments[0].DocumentType)
	assert.Equal(t, "cn-1", payments[1].DocumentID)
	assert.Equal(t, internal.StatusDeleted, payments[1].Status)
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-04", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"2024-03-04T17:30:00", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"/Date(1709510400000+0000)/", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"not a date", time.Time{}},
		{"", time.Time{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseDate(tc.in), tc.in)
	}
}
