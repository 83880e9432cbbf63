package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ierr "backoffice/internal/errors"
	"backoffice/internal/httpclient"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceJSON = `{
  "id": 12,
  "supplier_name": "Acme Components",
  "expected_delivery_date": "2026-11-03T00:00:00.000Z",
  "notes": "rush",
  "status": "pending",
  "total_amount": "1500.0",
  "purchase_invoice_lines": [
    {"id": 55, "component_id": 7, "component_name": "GPU", "quantity": 3, "price_per_unit": "500.0", "total_line_amount": "1500.0"}
  ]
}`

func newTestAPI(t *testing.T, h http.HandlerFunc) API {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", httpclient.NewRetryClient(httpclient.ClientConfig{
		Timeout:      time.Second,
		RetryMax:     0,
		RetryWaitMin: time.Millisecond,
	}, nil))
}

func TestGetPurchaseInvoice(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/purchase_invoices/12", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(invoiceJSON))
	})

	inv, err := api.GetPurchaseInvoice(WithToken(context.Background(), "tok"), 12)
	require.NoError(t, err)
	assert.Equal(t, "Acme Components", inv.SupplierName)
	require.Len(t, inv.Lines, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(inv.Lines[0].PricePerUnit))

	doc := inv.Document()
	assert.Equal(t, "document:12", doc.Key())
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, int64(55), *doc.Lines[0].ID)
	assert.Equal(t, 3, doc.Lines[0].Quantity)

	seed := inv.DeliveryDocument()
	assert.Equal(t, "invoice:12", seed.Key())
	assert.Nil(t, seed.Lines[0].ID)
	assert.Equal(t, int64(12), *seed.Header.PurchaseInvoiceID)
}

func TestGetPurchaseInvoiceNotFound(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	_, err := api.GetPurchaseInvoice(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestUpdatePurchaseInvoiceSendsNestedAttributes(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/purchase_invoices/12", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"purchase_invoice":{
			"supplier_name":"Acme","notes":"",
			"purchase_invoice_lines_attributes":[{"id":55,"_destroy":true}]}}`, string(body))
		_, _ = w.Write([]byte(invoiceJSON))
	})

	id := int64(55)
	_, err := api.UpdatePurchaseInvoice(context.Background(), 12, PurchaseInvoiceRequest{
		PurchaseInvoice: PurchaseInvoiceAttributes{
			SupplierName:    "Acme",
			LinesAttributes: []PurchaseInvoiceLineAttributes{{ID: &id, Destroy: true}},
		},
	})
	require.NoError(t, err)
}

func TestListComponentsSearch(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/components", r.URL.Path)
		assert.Equal(t, "cpu fan", r.URL.Query().Get("search"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "CPU fan", "unit_price": 120000, "category_id": 2, "category_name": "Cooling"},
		})
	})

	components, err := api.ListComponents(context.Background(), "cpu fan")
	require.NoError(t, err)
	require.Len(t, components, 1)
	p := components[0].Product()
	assert.Equal(t, "CPU fan", p.Name)
	assert.True(t, decimal.NewFromInt(120000).Equal(p.UnitPrice))
	assert.Equal(t, "Cooling", p.CategoryName)
}

func TestCreateInboundDeliveryDecodesLines(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":40,"purchase_invoice_id":12,"supplier_name":"Acme",
			"inbound_delivery_lines":[{"id":90,"component_id":7,"expected_quantity":10,"received_quantity":8,"damaged_quantity":2,"price_per_unit":"500"}]}`))
	})

	d, err := api.CreateInboundDelivery(context.Background(), InboundDeliveryRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(40), d.ID)

	doc := d.Document()
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, 10, doc.Lines[0].Quantity)
	assert.Equal(t, 8, doc.Lines[0].ReceivedQuantity)

	expected, received, damaged := d.Quantities()
	assert.Equal(t, []int{10, 8, 2}, []int{expected, received, damaged})
}

func TestMalformedResponse(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := api.ListPurchaseInvoices(context.Background())
	require.Error(t, err)
	assert.True(t, ierr.IsHTTPClient(err))
}
