// Package testutil holds in-memory collaborators shared by service, handler and CLI tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	ierr "backoffice/internal/errors"
	"backoffice/internal/upstream"

	"github.com/shopspring/decimal"
)

// FakeAPI is an in-memory upstream.API. It applies nested-attribute requests the
// way the REST API does: lines with an id are updated, lines without one are
// created and lines marked _destroy are deleted.
type FakeAPI struct {
	mu sync.Mutex

	Components []upstream.Component
	Invoices   map[int64]*upstream.PurchaseInvoice
	Deliveries map[int64]*upstream.InboundDelivery

	InvoiceRequests  []upstream.PurchaseInvoiceRequest
	DeliveryRequests []upstream.InboundDeliveryRequest
	ComponentCalls   int

	// WriteErr, when set, fails every create/update call.
	WriteErr error
	// Block, when set, is received from before a write is applied.
	Block chan struct{}

	nextID int64
}

func NewFakeAPI(components ...upstream.Component) *FakeAPI {
	return &FakeAPI{
		Components: components,
		Invoices:   make(map[int64]*upstream.PurchaseInvoice),
		Deliveries: make(map[int64]*upstream.InboundDelivery),
		nextID:     100,
	}
}

func (f *FakeAPI) ListComponents(_ context.Context, search string) ([]upstream.Component, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ComponentCalls++
	out := make([]upstream.Component, 0, len(f.Components))
	for _, c := range f.Components {
		if search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(search)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *FakeAPI) ListPurchaseInvoices(context.Context) ([]upstream.PurchaseInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]upstream.PurchaseInvoice, 0, len(f.Invoices))
	for _, inv := range f.Invoices {
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeAPI) GetPurchaseInvoice(_ context.Context, id int64) (*upstream.PurchaseInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, notFound("purchase invoice", id)
	}
	cp := *inv
	cp.Lines = append([]upstream.PurchaseInvoiceLine(nil), inv.Lines...)
	return &cp, nil
}

func (f *FakeAPI) CreatePurchaseInvoice(ctx context.Context, req upstream.PurchaseInvoiceRequest) (*upstream.PurchaseInvoice, error) {
	if err := f.beforeWrite(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.InvoiceRequests = append(f.InvoiceRequests, req)
	f.nextID++
	inv := &upstream.PurchaseInvoice{ID: f.nextID, Status: "draft"}
	f.applyInvoice(inv, req.PurchaseInvoice)
	f.Invoices[inv.ID] = inv
	f.mu.Unlock()
	return f.GetPurchaseInvoice(ctx, inv.ID)
}

func (f *FakeAPI) UpdatePurchaseInvoice(ctx context.Context, id int64, req upstream.PurchaseInvoiceRequest) (*upstream.PurchaseInvoice, error) {
	if err := f.beforeWrite(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.InvoiceRequests = append(f.InvoiceRequests, req)
	inv, ok := f.Invoices[id]
	if !ok {
		f.mu.Unlock()
		return nil, notFound("purchase invoice", id)
	}
	f.applyInvoice(inv, req.PurchaseInvoice)
	f.mu.Unlock()
	return f.GetPurchaseInvoice(ctx, id)
}

func (f *FakeAPI) ListInboundDeliveries(context.Context) ([]upstream.InboundDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]upstream.InboundDelivery, 0, len(f.Deliveries))
	for _, d := range f.Deliveries {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeAPI) GetInboundDelivery(_ context.Context, id int64) (*upstream.InboundDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Deliveries[id]
	if !ok {
		return nil, notFound("inbound delivery", id)
	}
	cp := *d
	cp.Lines = append([]upstream.InboundDeliveryLine(nil), d.Lines...)
	return &cp, nil
}

func (f *FakeAPI) CreateInboundDelivery(ctx context.Context, req upstream.InboundDeliveryRequest) (*upstream.InboundDelivery, error) {
	if err := f.beforeWrite(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.DeliveryRequests = append(f.DeliveryRequests, req)
	f.nextID++
	d := &upstream.InboundDelivery{ID: f.nextID, Status: "pending"}
	f.applyDelivery(d, req.InboundDelivery)
	f.Deliveries[d.ID] = d
	f.mu.Unlock()
	return f.GetInboundDelivery(ctx, d.ID)
}

func (f *FakeAPI) UpdateInboundDelivery(ctx context.Context, id int64, req upstream.InboundDeliveryRequest) (*upstream.InboundDelivery, error) {
	if err := f.beforeWrite(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.DeliveryRequests = append(f.DeliveryRequests, req)
	d, ok := f.Deliveries[id]
	if !ok {
		f.mu.Unlock()
		return nil, notFound("inbound delivery", id)
	}
	f.applyDelivery(d, req.InboundDelivery)
	f.mu.Unlock()
	return f.GetInboundDelivery(ctx, id)
}

func (f *FakeAPI) beforeWrite() error {
	if f.Block != nil {
		<-f.Block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.WriteErr
}

func (f *FakeAPI) componentName(id int64) string {
	for _, c := range f.Components {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (f *FakeAPI) applyInvoice(inv *upstream.PurchaseInvoice, attrs upstream.PurchaseInvoiceAttributes) {
	inv.SupplierName = attrs.SupplierName
	inv.ExpectedDeliveryDate = attrs.ExpectedDeliveryDate
	inv.Notes = attrs.Notes

	for _, a := range attrs.LinesAttributes {
		idx := -1
		if a.ID != nil {
			for i, l := range inv.Lines {
				if l.ID == *a.ID {
					idx = i
					break
				}
			}
		}
		switch {
		case a.Destroy && idx >= 0:
			inv.Lines = append(inv.Lines[:idx], inv.Lines[idx+1:]...)
		case a.Destroy:
		case idx >= 0:
			inv.Lines[idx].Quantity = a.Quantity
			if a.PricePerUnit != nil {
				inv.Lines[idx].PricePerUnit = *a.PricePerUnit
			}
		default:
			f.nextID++
			line := upstream.PurchaseInvoiceLine{
				ID:            f.nextID,
				ComponentID:   a.ComponentID,
				ComponentName: f.componentName(a.ComponentID),
				Quantity:      a.Quantity,
			}
			if a.PricePerUnit != nil {
				line.PricePerUnit = *a.PricePerUnit
			}
			inv.Lines = append(inv.Lines, line)
		}
	}

	inv.TotalAmount = decimal.Zero
	for i, l := range inv.Lines {
		inv.Lines[i].TotalLineAmount = l.PricePerUnit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		inv.TotalAmount = inv.TotalAmount.Add(inv.Lines[i].TotalLineAmount)
	}
}

func (f *FakeAPI) applyDelivery(d *upstream.InboundDelivery, attrs upstream.InboundDeliveryAttributes) {
	d.PurchaseInvoiceID = attrs.PurchaseInvoiceID
	d.SupplierName = attrs.SupplierName
	d.ExpectedDeliveryDate = attrs.ExpectedDeliveryDate
	d.Notes = attrs.Notes

	for _, a := range attrs.LinesAttributes {
		idx := -1
		if a.ID != nil {
			for i, l := range d.Lines {
				if l.ID == *a.ID {
					idx = i
					break
				}
			}
		}
		if a.Destroy {
			if idx >= 0 {
				d.Lines = append(d.Lines[:idx], d.Lines[idx+1:]...)
			}
			continue
		}
		if idx < 0 {
			f.nextID++
			d.Lines = append(d.Lines, upstream.InboundDeliveryLine{
				ID:            f.nextID,
				ComponentID:   a.ComponentID,
				ComponentName: f.componentName(a.ComponentID),
			})
			idx = len(d.Lines) - 1
		}
		line := &d.Lines[idx]
		if a.ExpectedQuantity != nil {
			line.ExpectedQuantity = *a.ExpectedQuantity
		}
		if a.ReceivedQuantity != nil {
			line.ReceivedQuantity = *a.ReceivedQuantity
		}
		if a.DamagedQuantity != nil {
			line.DamagedQuantity = *a.DamagedQuantity
		}
		if a.PricePerUnit != nil {
			line.PricePerUnit = *a.PricePerUnit
		}
	}
}

func notFound(what string, id int64) error {
	return ierr.NewErrorf("%s %d not found", what, id).
		WithHint("Not found").
		Mark(ierr.ErrNotFound)
}
