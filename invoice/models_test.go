package invoice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

func TestRecalculateWithoutAdjustments(t *testing.T) {
	inv := &invoice.Invoice{
		ID:       id.NewInvoiceID(),
		Currency: "usd",
		LineItems: []invoice.LineItem{
			{Type: invoice.LineItemBase, Amount: types.USD(4900)},
			{Type: invoice.LineItemUsage, Amount: types.USD(100)},
		},
	}

	// Tax and discount were never set; totals must still come out in the
	// invoice currency.
	require.NotPanics(t, inv.Recalculate)

	assert.Equal(t, types.USD(5000), inv.Subtotal)
	assert.Equal(t, types.USD(5000), inv.Total)
	assert.Equal(t, "usd", inv.TaxAmount.Currency)
	assert.Equal(t, "usd", inv.DiscountAmount.Currency)
}

func TestRecalculateWithTaxAndDiscount(t *testing.T) {
	inv := &invoice.Invoice{
		ID:             id.NewInvoiceID(),
		Currency:       "usd",
		TaxAmount:      types.USD(490),
		DiscountAmount: types.USD(1000),
		LineItems: []invoice.LineItem{
			{Type: invoice.LineItemBase, Amount: types.USD(4900)},
			{Type: invoice.LineItemUsage, Amount: types.USD(100)},
			{Type: invoice.LineItemTax, Amount: types.USD(490)},
			{Type: invoice.LineItemDiscount, Amount: types.USD(1000).Negate()},
		},
	}

	inv.Recalculate()

	// Tax and discount line items are excluded from the subtotal; the
	// totals use the dedicated amount fields.
	assert.Equal(t, types.USD(5000), inv.Subtotal)
	assert.Equal(t, types.USD(4490), inv.Total)
}
