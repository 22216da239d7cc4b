package usage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

var (
	periodStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
)

func summedEvents(quantities ...float64) []*meter.UsageEvent {
	events := make([]*meter.UsageEvent, len(quantities))
	for i, q := range quantities {
		events[i] = &meter.UsageEvent{
			CustomerID: "cust_1",
			MeterKey:   "api_calls",
			Quantity:   q,
			Timestamp:  periodStart.Add(time.Duration(i) * time.Hour),
		}
	}
	return events
}

func TestBuildSummaryGraduated(t *testing.T) {
	// 350 units across [0,100]@10c then unbounded@5c: 100*10 + 250*5 = 2250.
	s := usage.BuildSummary(usage.BuildInput{
		CustomerID: "cust_1",
		Meter:      &meter.Meter{Key: "api_calls", Aggregation: meter.AggregationSum},
		Price: pricing.Price{
			MeterKey: "api_calls",
			Currency: "USD",
			Model: pricing.Graduated{Tiers: []pricing.Tier{
				{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(10)},
				{UnitAmount: types.USD(5)},
			}},
		},
		Events:      summedEvents(100, 150, 100),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assert.Equal(t, 350.0, s.AggregatedValue)
	assert.Equal(t, 3, s.EventCount)
	assert.Equal(t, types.USD(2250), s.Amount)
	require.Len(t, s.Breakdown, 2)
	assert.Equal(t, 100.0, s.Breakdown[0].Quantity)
	assert.Equal(t, types.USD(1000), s.Breakdown[0].Amount)
	assert.Equal(t, 250.0, s.Breakdown[1].Quantity)
	assert.Equal(t, types.USD(1250), s.Breakdown[1].Amount)
	assert.Equal(t, periodStart, s.PeriodStart)
	assert.Equal(t, periodEnd, s.PeriodEnd)
}

func TestBuildSummaryMinimumClamp(t *testing.T) {
	minAmount := types.USD(500)
	s := usage.BuildSummary(usage.BuildInput{
		CustomerID: "cust_1",
		Meter:      &meter.Meter{Key: "api_calls", Aggregation: meter.AggregationSum},
		Price: pricing.Price{
			MeterKey:      "api_calls",
			Currency:      "USD",
			Model:         pricing.PerUnit{UnitAmount: types.USD(2)},
			MinimumAmount: &minAmount,
		},
		Events:      summedEvents(100), // raw amount 200 < minimum 500
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assert.Equal(t, types.USD(500), s.Amount)
}

func TestBuildSummaryMaximumClamp(t *testing.T) {
	maxAmount := types.USD(1000)
	s := usage.BuildSummary(usage.BuildInput{
		CustomerID: "cust_1",
		Meter:      &meter.Meter{Key: "api_calls", Aggregation: meter.AggregationSum},
		Price: pricing.Price{
			MeterKey:      "api_calls",
			Currency:      "USD",
			Model:         pricing.PerUnit{UnitAmount: types.USD(1)},
			MaximumAmount: &maxAmount,
		},
		Events:      summedEvents(5000), // raw amount 5000 > maximum 1000
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assert.Equal(t, types.USD(1000), s.Amount)
}

func TestBuildSummaryDropsScalarBreakdown(t *testing.T) {
	s := usage.BuildSummary(usage.BuildInput{
		CustomerID: "cust_1",
		Meter:      &meter.Meter{Key: "api_calls", Aggregation: meter.AggregationSum},
		Price: pricing.Price{
			MeterKey: "api_calls",
			Currency: "USD",
			Model:    pricing.PerUnit{UnitAmount: types.USD(3)},
		},
		Events:      summedEvents(10),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assert.Equal(t, types.USD(30), s.Amount)
	assert.Empty(t, s.Breakdown)
}

func TestBuildSummaryNoEvents(t *testing.T) {
	s := usage.BuildSummary(usage.BuildInput{
		CustomerID: "cust_1",
		Meter:      &meter.Meter{Key: "api_calls", Aggregation: meter.AggregationMax},
		Price: pricing.Price{
			MeterKey: "api_calls",
			Currency: "USD",
			Model:    pricing.PerUnit{UnitAmount: types.USD(3)},
		},
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assert.Zero(t, s.AggregatedValue)
	assert.Zero(t, s.EventCount)
	assert.Equal(t, types.New(0, "USD"), s.Amount)
}

func TestBuildSummaryMeterKeyFallback(t *testing.T) {
	s := usage.BuildSummary(usage.BuildInput{
		CustomerID: "cust_1",
		Meter:      &meter.Meter{Key: "storage_gb", Aggregation: meter.AggregationMax},
		Price: pricing.Price{
			Currency: "USD",
			Model:    pricing.PerUnit{UnitAmount: types.USD(25)},
		},
		Events:      summedEvents(4, 9, 7),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assert.Equal(t, "storage_gb", s.MeterKey)
	assert.Equal(t, 9.0, s.AggregatedValue)
	assert.Equal(t, types.USD(225), s.Amount)
}
