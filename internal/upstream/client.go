// Package upstream is the typed client of the REST API that owns purchase
// invoices, inbound deliveries and the component catalog.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ierr "backoffice/internal/errors"
	"backoffice/internal/httpclient"
)

type contextKey string

const tokenKey contextKey = "upstream_token"

// WithToken attaches the caller's bearer token; it is forwarded on every request.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

type API interface {
	ListComponents(ctx context.Context, search string) ([]Component, error)

	ListPurchaseInvoices(ctx context.Context) ([]PurchaseInvoice, error)
	GetPurchaseInvoice(ctx context.Context, id int64) (*PurchaseInvoice, error)
	CreatePurchaseInvoice(ctx context.Context, req PurchaseInvoiceRequest) (*PurchaseInvoice, error)
	UpdatePurchaseInvoice(ctx context.Context, id int64, req PurchaseInvoiceRequest) (*PurchaseInvoice, error)

	ListInboundDeliveries(ctx context.Context) ([]InboundDelivery, error)
	GetInboundDelivery(ctx context.Context, id int64) (*InboundDelivery, error)
	CreateInboundDelivery(ctx context.Context, req InboundDeliveryRequest) (*InboundDelivery, error)
	UpdateInboundDelivery(ctx context.Context, id int64, req InboundDeliveryRequest) (*InboundDelivery, error)
}

type client struct {
	baseURL   string
	transport httpclient.Client
}

func NewClient(baseURL string, httpClient httpclient.Client) API {
	return &client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: httpClient,
	}
}

const (
	componentsPath        = "/api/v1/components"
	purchaseInvoicesPath  = "/api/v1/purchase_invoices"
	inboundDeliveriesPath = "/api/v1/inbound_deliveries"
)

func (c *client) ListComponents(ctx context.Context, search string) ([]Component, error) {
	path := componentsPath
	if search != "" {
		path += "?" + url.Values{"search": {search}}.Encode()
	}
	var out []Component
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) ListPurchaseInvoices(ctx context.Context) ([]PurchaseInvoice, error) {
	var out []PurchaseInvoice
	if err := c.do(ctx, http.MethodGet, purchaseInvoicesPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) GetPurchaseInvoice(ctx context.Context, id int64) (*PurchaseInvoice, error) {
	var out PurchaseInvoice
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", purchaseInvoicesPath, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) CreatePurchaseInvoice(ctx context.Context, req PurchaseInvoiceRequest) (*PurchaseInvoice, error) {
	var out PurchaseInvoice
	if err := c.do(ctx, http.MethodPost, purchaseInvoicesPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) UpdatePurchaseInvoice(ctx context.Context, id int64, req PurchaseInvoiceRequest) (*PurchaseInvoice, error) {
	var out PurchaseInvoice
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/%d", purchaseInvoicesPath, id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) ListInboundDeliveries(ctx context.Context) ([]InboundDelivery, error) {
	var out []InboundDelivery
	if err := c.do(ctx, http.MethodGet, inboundDeliveriesPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) GetInboundDelivery(ctx context.Context, id int64) (*InboundDelivery, error) {
	var out InboundDelivery
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", inboundDeliveriesPath, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) CreateInboundDelivery(ctx context.Context, req InboundDeliveryRequest) (*InboundDelivery, error) {
	var out InboundDelivery
	if err := c.do(ctx, http.MethodPost, inboundDeliveriesPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) UpdateInboundDelivery(ctx context.Context, id int64, req InboundDeliveryRequest) (*InboundDelivery, error) {
	var out InboundDelivery
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/%d", inboundDeliveriesPath, id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	req := &httpclient.Request{
		Method:  method,
		URL:     c.baseURL + path,
		Headers: map[string]string{},
	}
	if token := tokenFrom(ctx); token != "" {
		req.Headers["Authorization"] = "Bearer " + token
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Could not encode the request").
				Mark(ierr.ErrSystem)
		}
		req.Body = body
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return ierr.WithError(err).
			WithHintf("Unexpected response from %s", path).
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}
