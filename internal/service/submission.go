package service

import (
	"backoffice/internal/lineeditor"
	"backoffice/internal/upstream"

	"github.com/samber/lo"
)

// BuildPurchaseInvoicePayload turns editor form data into the nested-attributes
// request. Every destroyable line is sent as {id, _destroy: true}.
func BuildPurchaseInvoicePayload(form lineeditor.FormData, destroyable []lineeditor.Line) upstream.PurchaseInvoiceRequest {
	lines := lo.Map(form.Lines, func(l lineeditor.Line, _ int) upstream.PurchaseInvoiceLineAttributes {
		price := l.PricePerUnit
		return upstream.PurchaseInvoiceLineAttributes{
			ID:           l.ID,
			ComponentID:  l.ComponentID,
			Quantity:     l.Quantity,
			PricePerUnit: &price,
		}
	})
	for _, l := range destroyable {
		if !l.Persisted() {
			continue
		}
		lines = append(lines, upstream.PurchaseInvoiceLineAttributes{ID: l.ID, Destroy: true})
	}

	return upstream.PurchaseInvoiceRequest{
		PurchaseInvoice: upstream.PurchaseInvoiceAttributes{
			SupplierName:         form.Header.SupplierName,
			ExpectedDeliveryDate: form.Header.ExpectedDeliveryDate,
			Notes:                form.Header.Notes,
			LinesAttributes:      lines,
		},
	}
}

// BuildInboundDeliveryPayload is the inbound delivery counterpart of BuildPurchaseInvoicePayload.
func BuildInboundDeliveryPayload(form lineeditor.FormData, destroyable []lineeditor.Line) upstream.InboundDeliveryRequest {
	lines := lo.Map(form.Lines, func(l lineeditor.Line, _ int) upstream.InboundDeliveryLineAttributes {
		expected, received, damaged := l.Quantity, l.ReceivedQuantity, l.DamagedQuantity
		price := l.PricePerUnit
		return upstream.InboundDeliveryLineAttributes{
			ID:               l.ID,
			ComponentID:      l.ComponentID,
			ExpectedQuantity: &expected,
			ReceivedQuantity: &received,
			DamagedQuantity:  &damaged,
			PricePerUnit:     &price,
		}
	})
	for _, l := range destroyable {
		if !l.Persisted() {
			continue
		}
		lines = append(lines, upstream.InboundDeliveryLineAttributes{ID: l.ID, Destroy: true})
	}

	return upstream.InboundDeliveryRequest{
		InboundDelivery: upstream.InboundDeliveryAttributes{
			PurchaseInvoiceID:    form.Header.PurchaseInvoiceID,
			SupplierName:         form.Header.SupplierName,
			ExpectedDeliveryDate: form.Header.ExpectedDeliveryDate,
			Notes:                form.Header.Notes,
			LinesAttributes:      lines,
		},
	}
}
