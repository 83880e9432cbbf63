// Package report renders procurement documents as XLSX workbooks.
package report

import (
	"fmt"
	"io"

	"backoffice/internal/upstream"

	"github.com/xuri/excelize/v2"
)

const (
	SheetPurchaseInvoices  = "Purchase invoices"
	SheetInboundDeliveries = "Inbound deliveries"
	SheetLines             = "Lines"
)

var (
	invoiceHeaders      = []any{"ID", "Supplier", "Expected delivery", "Status", "Lines", "Total amount", "Created at"}
	invoiceLineHeaders  = []any{"Invoice ID", "Component ID", "Component", "Quantity", "Price per unit", "Line total"}
	deliveryHeaders     = []any{"ID", "Purchase invoice", "Supplier", "Expected delivery", "Status", "Expected", "Received", "Damaged", "Created at"}
	deliveryLineHeaders = []any{"Delivery ID", "Component ID", "Component", "Expected", "Received", "Damaged"}
)

// WritePurchaseInvoices writes one summary row per invoice and one row per line.
// Amounts are the totals reported by the API.
func WritePurchaseInvoices(w io.Writer, invoices []upstream.PurchaseInvoice) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetPurchaseInvoices); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetLines); err != nil {
		return err
	}

	summary := [][]any{invoiceHeaders}
	lines := [][]any{invoiceLineHeaders}
	for _, inv := range invoices {
		summary = append(summary, []any{
			inv.ID, inv.SupplierName, inv.ExpectedDeliveryDate, inv.Status,
			len(inv.Lines), inv.TotalAmount.InexactFloat64(), inv.CreatedAt,
		})
		for _, l := range inv.Lines {
			lines = append(lines, []any{
				inv.ID, l.ComponentID, l.ComponentName, l.Quantity,
				l.PricePerUnit.InexactFloat64(), l.TotalLineAmount.InexactFloat64(),
			})
		}
	}

	if err := writeRows(f, SheetPurchaseInvoices, summary); err != nil {
		return err
	}
	if err := writeRows(f, SheetLines, lines); err != nil {
		return err
	}
	return flush(f, w)
}

// WriteInboundDeliveries writes one summary row per delivery with quantity sums
// and one row per line.
func WriteInboundDeliveries(w io.Writer, deliveries []upstream.InboundDelivery) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetInboundDeliveries); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetLines); err != nil {
		return err
	}

	summary := [][]any{deliveryHeaders}
	lines := [][]any{deliveryLineHeaders}
	for _, d := range deliveries {
		expected, received, damaged := d.Quantities()
		var invoiceID any
		if d.PurchaseInvoiceID != nil {
			invoiceID = *d.PurchaseInvoiceID
		}
		summary = append(summary, []any{
			d.ID, invoiceID, d.SupplierName, d.ExpectedDeliveryDate, d.Status,
			expected, received, damaged, d.CreatedAt,
		})
		for _, l := range d.Lines {
			lines = append(lines, []any{
				d.ID, l.ComponentID, l.ComponentName,
				l.ExpectedQuantity, l.ReceivedQuantity, l.DamagedQuantity,
			})
		}
	}

	if err := writeRows(f, SheetInboundDeliveries, summary); err != nil {
		return err
	}
	if err := writeRows(f, SheetLines, lines); err != nil {
		return err
	}
	return flush(f, w)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, bold)
}

func flush(f *excelize.File, w io.Writer) error {
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
