package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"salesdash/internal"
	"salesdash/internal/config"
	"salesdash/internal/logger"
)

type Resource string

const (
	ResourceInvoices    Resource = "Invoices"
	ResourceCreditNotes Resource = "CreditNotes"
	ResourceItems       Resource = "Items"
	ResourcePayments    Resource = "Payments"
)

// DocumentProvider is the raw accounting API surface.
type DocumentProvider interface {
	FetchDocuments(ctx context.Context, tenant string, resource Resource, where string, page, pageSize int) ([]internal.Document, error)
	FetchDocumentsByIDs(ctx context.Context, tenant string, resource Resource, ids []string) ([]internal.Document, error)
	FetchCatalogItems(ctx context.Context, tenant string) ([]internal.CatalogItem, error)
	FetchPayments(ctx context.Context, tenant string, where string, page, pageSize int) ([]internal.Payment, error)
}

const maxErrorBody = 512

// Client talks to the accounting API over HTTP. Every call waits on the shared
// rate limiter first and authenticates with the session's current token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	limiter    *RateLimiter
	log        zerolog.Logger
}

var _ DocumentProvider = (*Client)(nil)

func NewClient(cfg config.Config, session Session, limiter *RateLimiter) *Client {
	if limiter == nil {
		limiter = NewRateLimiter(cfg.ProviderCallDelay())
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.ProviderAPIBaseURL, "/") + "/",
		httpClient: &http.Client{Timeout: cfg.ProviderTimeout()},
		session:    session,
		limiter:    limiter,
		log:        logger.WithComponent("provider"),
	}
}

func (c *Client) FetchDocuments(ctx context.Context, tenant string, resource Resource, where string, page, pageSize int) ([]internal.Document, error) {
	payload, err := c.fetchJSON(ctx, "fetchDocuments", tenant, string(resource), listParams(where, page, pageSize))
	if err != nil {
		return nil, err
	}
	return toDocuments(listField(payload, string(resource))), nil
}

func (c *Client) FetchDocumentsByIDs(ctx context.Context, tenant string, resource Resource, ids []string) ([]internal.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	payload, err := c.fetchJSON(ctx, "fetchDocumentsByIds", tenant, string(resource), map[string]string{"IDs": strings.Join(ids, ",")})
	if err != nil {
		return nil, err
	}
	return toDocuments(listField(payload, string(resource))), nil
}

func (c *Client) FetchCatalogItems(ctx context.Context, tenant string) ([]internal.CatalogItem, error) {
	payload, err := c.fetchJSON(ctx, "fetchCatalogItems", tenant, string(ResourceItems), nil)
	if err != nil {
		return nil, err
	}
	raw := listField(payload, string(ResourceItems))
	out := make([]internal.CatalogItem, 0, len(raw))
	for _, item := range raw {
		if ci, ok := toCatalogItem(item); ok {
			out = append(out, ci)
		}
	}
	return out, nil
}

func (c *Client) FetchPayments(ctx context.Context, tenant string, where string, page, pageSize int) ([]internal.Payment, error) {
	payload, err := c.fetchJSON(ctx, "fetchPayments", tenant, string(ResourcePayments), listParams(where, page, pageSize))
	if err != nil {
		return nil, err
	}
	raw := listField(payload, string(ResourcePayments))
	out := make([]internal.Payment, 0, len(raw))
	for _, item := range raw {
		if p, ok := toPayment(item); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func listParams(where string, page, pageSize int) map[string]string {
	params := map[string]string{"page": strconv.Itoa(page)}
	if pageSize > 0 {
		params["pageSize"] = strconv.Itoa(pageSize)
	}
	if strings.TrimSpace(where) != "" {
		params["where"] = where
	}
	return params
}

func (c *Client) fetchJSON(ctx context.Context, op, tenant, endpoint string, params map[string]string) (map[string]any, error) {
	tok, err := c.session.Token(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	if tenant != "" {
		req.Header.Set("Xero-Tenant-Id", tenant)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: %w", op, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("provider: %s: read body: %w", op, readErr)
	}

	c.log.Debug().Str("op", op).Str("endpoint", endpoint).Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("provider call")

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &RequestError{Op: op, Status: resp.StatusCode, Detail: truncate(body), Err: ErrUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{Op: op, Status: resp.StatusCode, Detail: truncate(body)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("provider: %s: decode: %w", op, err)
	}
	return payload, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
