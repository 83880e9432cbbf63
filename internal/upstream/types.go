package upstream

import (
	"backoffice/internal/lineeditor"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Component is a catalog product as served by GET /api/v1/components.
type Component struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Stock        int             `json:"stock"`
}

func (c Component) Product() lineeditor.Product {
	return lineeditor.Product{
		ID:           c.ID,
		Name:         c.Name,
		UnitPrice:    c.UnitPrice,
		CategoryID:   c.CategoryID,
		CategoryName: c.CategoryName,
	}
}

type PurchaseInvoiceLine struct {
	ID              int64           `json:"id"`
	ComponentID     int64           `json:"component_id"`
	ComponentName   string          `json:"component_name"`
	Quantity        int             `json:"quantity"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit"`
	TotalLineAmount decimal.Decimal `json:"total_line_amount"`
}

type PurchaseInvoice struct {
	ID                   int64                 `json:"id"`
	SupplierName         string                `json:"supplier_name"`
	ExpectedDeliveryDate string                `json:"expected_delivery_date"`
	Notes                string                `json:"notes"`
	Status               string                `json:"status"`
	TotalAmount          decimal.Decimal       `json:"total_amount"`
	CreatedAt            string                `json:"created_at"`
	Lines                []PurchaseInvoiceLine `json:"purchase_invoice_lines"`
}

// Document converts the invoice into an editor seed.
func (p PurchaseInvoice) Document() *lineeditor.Document {
	id := p.ID
	return &lineeditor.Document{
		ID: &id,
		Header: lineeditor.Header{
			SupplierName:         p.SupplierName,
			ExpectedDeliveryDate: p.ExpectedDeliveryDate,
			Notes:                p.Notes,
		},
		Lines: lo.Map(p.Lines, func(l PurchaseInvoiceLine, _ int) lineeditor.Line {
			lineID := l.ID
			return lineeditor.Line{
				ID:            &lineID,
				ComponentID:   l.ComponentID,
				ComponentName: l.ComponentName,
				Quantity:      l.Quantity,
				PricePerUnit:  l.PricePerUnit,
			}
		}),
	}
}

// DeliveryDocument seeds a new inbound delivery expecting every line of the invoice.
func (p PurchaseInvoice) DeliveryDocument() *lineeditor.Document {
	id := p.ID
	return &lineeditor.Document{
		SourceInvoiceID: &id,
		Header: lineeditor.Header{
			SupplierName:         p.SupplierName,
			ExpectedDeliveryDate: p.ExpectedDeliveryDate,
			PurchaseInvoiceID:    &id,
		},
		Lines: lo.Map(p.Lines, func(l PurchaseInvoiceLine, _ int) lineeditor.Line {
			return lineeditor.Line{
				ComponentID:   l.ComponentID,
				ComponentName: l.ComponentName,
				Quantity:      l.Quantity,
				PricePerUnit:  l.PricePerUnit,
			}
		}),
	}
}

type InboundDeliveryLine struct {
	ID               int64           `json:"id"`
	ComponentID      int64           `json:"component_id"`
	ComponentName    string          `json:"component_name"`
	ExpectedQuantity int             `json:"expected_quantity"`
	ReceivedQuantity int             `json:"received_quantity"`
	DamagedQuantity  int             `json:"damaged_quantity"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"`
}

type InboundDelivery struct {
	ID                   int64                 `json:"id"`
	PurchaseInvoiceID    *int64                `json:"purchase_invoice_id"`
	SupplierName         string                `json:"supplier_name"`
	ExpectedDeliveryDate string                `json:"expected_delivery_date"`
	Notes                string                `json:"notes"`
	Status               string                `json:"status"`
	CreatedAt            string                `json:"created_at"`
	Lines                []InboundDeliveryLine `json:"inbound_delivery_lines"`
}

func (d InboundDelivery) Document() *lineeditor.Document {
	id := d.ID
	return &lineeditor.Document{
		ID: &id,
		Header: lineeditor.Header{
			SupplierName:         d.SupplierName,
			ExpectedDeliveryDate: d.ExpectedDeliveryDate,
			Notes:                d.Notes,
			PurchaseInvoiceID:    d.PurchaseInvoiceID,
		},
		Lines: lo.Map(d.Lines, func(l InboundDeliveryLine, _ int) lineeditor.Line {
			lineID := l.ID
			return lineeditor.Line{
				ID:               &lineID,
				ComponentID:      l.ComponentID,
				ComponentName:    l.ComponentName,
				Quantity:         l.ExpectedQuantity,
				PricePerUnit:     l.PricePerUnit,
				ReceivedQuantity: l.ReceivedQuantity,
				DamagedQuantity:  l.DamagedQuantity,
			}
		}),
	}
}

// Quantities sums expected, received and damaged units over all lines.
func (d InboundDelivery) Quantities() (expected, received, damaged int) {
	for _, l := range d.Lines {
		expected += l.ExpectedQuantity
		received += l.ReceivedQuantity
		damaged += l.DamagedQuantity
	}
	return expected, received, damaged
}

// --- Requests (nested attributes, lines marked _destroy are deleted) ---

type PurchaseInvoiceLineAttributes struct {
	ID           *int64           `json:"id,omitempty"`
	ComponentID  int64            `json:"component_id,omitempty"`
	Quantity     int              `json:"quantity,omitempty"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit,omitempty"`
	Destroy      bool             `json:"_destroy,omitempty"`
}

type PurchaseInvoiceAttributes struct {
	SupplierName         string                          `json:"supplier_name"`
	ExpectedDeliveryDate string                          `json:"expected_delivery_date,omitempty"`
	Notes                string                          `json:"notes"`
	LinesAttributes      []PurchaseInvoiceLineAttributes `json:"purchase_invoice_lines_attributes"`
}

type PurchaseInvoiceRequest struct {
	PurchaseInvoice PurchaseInvoiceAttributes `json:"purchase_invoice"`
}

type InboundDeliveryLineAttributes struct {
	ID               *int64           `json:"id,omitempty"`
	ComponentID      int64            `json:"component_id,omitempty"`
	ExpectedQuantity *int             `json:"expected_quantity,omitempty"`
	ReceivedQuantity *int             `json:"received_quantity,omitempty"`
	DamagedQuantity  *int             `json:"damaged_quantity,omitempty"`
	PricePerUnit     *decimal.Decimal `json:"price_per_unit,omitempty"`
	Destroy          bool             `json:"_destroy,omitempty"`
}

type InboundDeliveryAttributes struct {
	PurchaseInvoiceID    *int64                          `json:"purchase_invoice_id,omitempty"`
	SupplierName         string                          `json:"supplier_name"`
	ExpectedDeliveryDate string                          `json:"expected_delivery_date,omitempty"`
	Notes                string                          `json:"notes"`
	LinesAttributes      []InboundDeliveryLineAttributes `json:"inbound_delivery_lines_attributes"`
}

type InboundDeliveryRequest struct {
	InboundDelivery InboundDeliveryAttributes `json:"inbound_delivery"`
}
