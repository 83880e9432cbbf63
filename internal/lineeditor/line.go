package lineeditor

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects the document an editor builds.
type Kind string

const (
	KindPurchaseInvoice Kind = "purchase_invoice"
	KindInboundDelivery Kind = "inbound_delivery"
)

func (k Kind) Valid() bool {
	return k == KindPurchaseInvoice || k == KindInboundDelivery
}

// Product is a catalog entry that can be added as a line.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
}

// Line is one component/quantity/price row of a document.
// ID is nil until the line exists server-side. For inbound deliveries
// Quantity is the expected quantity.
type Line struct {
	ID               *int64          `json:"id"`
	ComponentID      int64           `json:"component_id"`
	ComponentName    string          `json:"component_name"`
	Quantity         int             `json:"quantity"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"`
	ReceivedQuantity int             `json:"received_quantity"`
	DamagedQuantity  int             `json:"damaged_quantity"`
}

func (l Line) Persisted() bool {
	return l.ID != nil
}

// Total is quantity * price per unit.
func (l Line) Total() decimal.Decimal {
	return l.PricePerUnit.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) receiptExceedsExpected() bool {
	return l.ReceivedQuantity+l.DamagedQuantity > l.Quantity
}

// Header holds the document fields edited next to the lines.
type Header struct {
	SupplierName         string `json:"supplier_name"`
	ExpectedDeliveryDate string `json:"expected_delivery_date"`
	Notes                string `json:"notes"`
	// PurchaseInvoiceID links an inbound delivery to the invoice it receives.
	PurchaseInvoiceID *int64 `json:"purchase_invoice_id,omitempty"`
}

// Document is a server-provided purchase invoice or inbound delivery used to seed an editor.
type Document struct {
	ID     *int64
	Header Header
	Lines  []Line
	// SourceInvoiceID is set when a new delivery is seeded from a purchase invoice.
	SourceInvoiceID *int64
}

// Key identifies the document for re-seeding decisions.
func (d *Document) Key() string {
	switch {
	case d == nil:
		return "new"
	case d.ID != nil:
		return fmt.Sprintf("document:%d", *d.ID)
	case d.SourceInvoiceID != nil:
		return fmt.Sprintf("invoice:%d", *d.SourceInvoiceID)
	default:
		return "new"
	}
}

// FormData is what the submission handler turns into a create/update request.
type FormData struct {
	Header Header `json:"header"`
	Lines  []Line `json:"lines"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeDate renders s as YYYY-MM-DD. Unparseable input becomes "".
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse(time.DateOnly, s[:10]); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return ""
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = l
		if l.ID != nil {
			id := *l.ID
			out[i].ID = &id
		}
	}
	return out
}
