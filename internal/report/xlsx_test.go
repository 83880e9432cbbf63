package report

import (
	"bytes"
	"testing"

	"backoffice/internal/upstream"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWritePurchaseInvoices(t *testing.T) {
	invoices := []upstream.PurchaseInvoice{
		{
			ID:           3,
			SupplierName: "Acme",
			Status:       "draft",
			TotalAmount:  decimal.RequireFromString("2000000"),
			Lines: []upstream.PurchaseInvoiceLine{
				{ID: 10, ComponentID: 7, ComponentName: "CPU", Quantity: 2, PricePerUnit: decimal.RequireFromString("1000000"), TotalLineAmount: decimal.RequireFromString("2000000")},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePurchaseInvoices(&buf, invoices))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetPurchaseInvoices)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Supplier", rows[0][1])
	assert.Equal(t, "Acme", rows[1][1])
	assert.Equal(t, "2000000", rows[1][5])

	lines, err := f.GetRows(SheetLines)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "CPU", lines[1][2])
	assert.Equal(t, "2", lines[1][3])
}

func TestWriteInboundDeliveries(t *testing.T) {
	invoiceID := int64(3)
	deliveries := []upstream.InboundDelivery{
		{
			ID:                4,
			PurchaseInvoiceID: &invoiceID,
			SupplierName:      "Acme",
			Lines: []upstream.InboundDeliveryLine{
				{ComponentID: 7, ComponentName: "CPU", ExpectedQuantity: 10, ReceivedQuantity: 8, DamagedQuantity: 2},
				{ComponentID: 8, ComponentName: "RAM", ExpectedQuantity: 5, ReceivedQuantity: 5},
			},
		},
		{ID: 5, SupplierName: "Globex"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInboundDeliveries(&buf, deliveries))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetInboundDeliveries)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"4", "3", "Acme"}, rows[1][:3])
	assert.Equal(t, []string{"15", "13", "2"}, rows[1][5:8])
	assert.Equal(t, "", rows[2][1])

	lines, err := f.GetRows(SheetLines)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}
