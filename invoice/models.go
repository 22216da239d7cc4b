package invoice

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/types"
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusPastDue Status = "past_due"
	StatusVoided  Status = "voided"
)

type Invoice struct {
	types.Entity
	ID             id.InvoiceID      `json:"id"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Status         Status            `json:"status"`
	Currency       string            `json:"currency"`
	Subtotal       types.Money       `json:"subtotal"`
	TaxAmount      types.Money       `json:"tax_amount"`
	DiscountAmount types.Money       `json:"discount_amount"`
	Total          types.Money       `json:"total"`
	LineItems      []LineItem        `json:"line_items"`
	PeriodStart    time.Time         `json:"period_start"`
	PeriodEnd      time.Time         `json:"period_end"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	VoidedAt       *time.Time        `json:"voided_at,omitempty"`
	VoidReason     string            `json:"void_reason,omitempty"`
	PaymentRef     string            `json:"payment_ref,omitempty"`
	AppID          string            `json:"app_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type LineItem struct {
	ID          id.LineItemID           `json:"id"`
	InvoiceID   id.InvoiceID            `json:"invoice_id"`
	MeterKey    string                  `json:"meter_key,omitempty"`
	Description string                  `json:"description"`
	Quantity    float64                 `json:"quantity"`
	UnitAmount  types.Money             `json:"unit_amount"`
	Amount      types.Money             `json:"amount"`
	Type        LineItemType            `json:"type"`
	Breakdown   []pricing.TierBreakdown `json:"breakdown,omitempty"`
	Metadata    map[string]string       `json:"metadata,omitempty"`
}

type LineItemType string

const (
	LineItemBase     LineItemType = "base"
	LineItemUsage    LineItemType = "usage"
	LineItemSeat     LineItemType = "seat"
	LineItemDiscount LineItemType = "discount"
	LineItemTax      LineItemType = "tax"
)

// Recalculate refreshes the invoice totals from its line items. Zero-value
// tax and discount amounts are normalized into the invoice currency first,
// so invoices without tax or discount adjustments total cleanly.
func (inv *Invoice) Recalculate() {
	if inv.TaxAmount.Currency == "" {
		inv.TaxAmount = types.New(inv.TaxAmount.Amount, inv.Currency)
	}
	if inv.DiscountAmount.Currency == "" {
		inv.DiscountAmount = types.New(inv.DiscountAmount.Amount, inv.Currency)
	}
	subtotal := types.New(0, inv.Currency)
	for _, li := range inv.LineItems {
		if li.Type == LineItemDiscount || li.Type == LineItemTax {
			continue
		}
		subtotal = subtotal.Add(li.Amount)
	}
	inv.Subtotal = subtotal
	inv.Total = subtotal.Add(inv.TaxAmount).Subtract(inv.DiscountAmount)
}
