// Package usage builds billing-period usage summaries by combining raw
// metering events with a price configuration.
package usage

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// Models
// ─────────────────────────────────────────────────────────────────────────────

// Summary is the priced usage of one customer on one meter over one billing
// period. It is the unit invoice line items are generated from.
type Summary struct {
	types.Entity

	ID              id.UsageSummaryID       `json:"id"`
	CustomerID      string                  `json:"customer_id"`
	SubscriptionID  id.SubscriptionID       `json:"subscription_id,omitempty"`
	AppID           string                  `json:"app_id,omitempty"`
	MeterKey        string                  `json:"meter_key"`
	PeriodStart     time.Time               `json:"period_start"`
	PeriodEnd       time.Time               `json:"period_end"`
	AggregatedValue float64                 `json:"aggregated_value"`
	EventCount      int                     `json:"event_count"`
	Amount          types.Money             `json:"amount"`
	Breakdown       []pricing.TierBreakdown `json:"breakdown,omitempty"`
}

// BuildInput carries everything BuildSummary needs. Events are expected to be
// pre-filtered to the customer, meter and period.
//
// Aggregate and Compute override the built-in aggregation and pricing steps
// when set; the engine uses them to dispatch to registered plugin strategies.
type BuildInput struct {
	CustomerID     string
	SubscriptionID id.SubscriptionID
	AppID          string
	Meter          *meter.Meter
	Price          pricing.Price
	Events         []*meter.UsageEvent
	PeriodStart    time.Time
	PeriodEnd      time.Time

	Aggregate func(events []*meter.UsageEvent, m *meter.Meter) float64
	Compute   func(quantity float64, p pricing.Price) pricing.Result
}

// ─────────────────────────────────────────────────────────────────────────────
// Builder
// ─────────────────────────────────────────────────────────────────────────────

// BuildSummary aggregates the events under the meter's strategy, prices the
// aggregate, and applies the price's minimum/maximum clamps. The tier
// breakdown is kept only when the calculation actually spanned tiers; a
// single-entry breakdown for a scalar model carries no extra information and
// is dropped.
func BuildSummary(in BuildInput) *Summary {
	aggregate := in.Aggregate
	if aggregate == nil {
		aggregate = meter.AggregateEvents
	}
	compute := in.Compute
	if compute == nil {
		compute = pricing.Calculate
	}

	aggregated := aggregate(in.Events, in.Meter)
	result := compute(aggregated, in.Price)

	amount := result.Amount.Clamp(in.Price.MinimumAmount, in.Price.MaximumAmount)

	breakdown := result.Breakdown
	if len(breakdown) == 1 && breakdown[0].TierIndex == 0 {
		breakdown = nil
	}

	meterKey := in.Price.MeterKey
	if meterKey == "" && in.Meter != nil {
		meterKey = in.Meter.Key
	}

	return &Summary{
		Entity:          types.NewEntity(),
		ID:              id.NewUsageSummaryID(),
		CustomerID:      in.CustomerID,
		SubscriptionID:  in.SubscriptionID,
		AppID:           in.AppID,
		MeterKey:        meterKey,
		PeriodStart:     in.PeriodStart,
		PeriodEnd:       in.PeriodEnd,
		AggregatedValue: aggregated,
		EventCount:      len(in.Events),
		Amount:          amount,
		Breakdown:       breakdown,
	}
}
