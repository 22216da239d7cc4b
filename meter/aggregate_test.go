package meter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/tally/meter"
)

func eventsWithQuantities(quantities ...float64) []*meter.UsageEvent {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	events := make([]*meter.UsageEvent, len(quantities))
	for i, q := range quantities {
		events[i] = &meter.UsageEvent{
			CustomerID: "cust_1",
			MeterKey:   "api_calls",
			Quantity:   q,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	return events
}

func meterWith(agg meter.Aggregation) *meter.Meter {
	return &meter.Meter{Key: "api_calls", Aggregation: agg, Active: true}
}

func TestAggregateEvents(t *testing.T) {
	tests := []struct {
		name       string
		agg        meter.Aggregation
		quantities []float64
		want       float64
	}{
		{"sum", meter.AggregationSum, []float64{3, 5, 2}, 10},
		{"sum single", meter.AggregationSum, []float64{7}, 7},
		{"sum fractional", meter.AggregationSum, []float64{0.5, 0.25}, 0.75},
		{"max", meter.AggregationMax, []float64{3, 9, 2}, 9},
		{"max single", meter.AggregationMax, []float64{4}, 4},
		{"last", meter.AggregationLast, []float64{3, 5, 2}, 2},
		{"count ignores quantities", meter.AggregationCount, []float64{100, 250, 7}, 3},
		{"unknown falls back to sum", meter.Aggregation("p99"), []float64{1, 2, 3}, 6},
		{"empty aggregation falls back to sum", meter.Aggregation(""), []float64{1, 2}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := meter.AggregateEvents(eventsWithQuantities(tt.quantities...), meterWith(tt.agg))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregateEventsEmpty(t *testing.T) {
	for _, agg := range []meter.Aggregation{
		meter.AggregationSum,
		meter.AggregationMax,
		meter.AggregationLast,
		meter.AggregationCount,
	} {
		t.Run(string(agg), func(t *testing.T) {
			assert.Zero(t, meter.AggregateEvents(nil, meterWith(agg)))
			assert.Zero(t, meter.AggregateEvents([]*meter.UsageEvent{}, meterWith(agg)))
		})
	}
}

func TestAggregateEventsLastOutOfOrder(t *testing.T) {
	// The latest timestamp wins regardless of slice position.
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	events := []*meter.UsageEvent{
		{Quantity: 10, Timestamp: base.Add(2 * time.Hour)},
		{Quantity: 20, Timestamp: base},
		{Quantity: 30, Timestamp: base.Add(time.Hour)},
	}

	got := meter.AggregateEvents(events, meterWith(meter.AggregationLast))
	assert.Equal(t, 10.0, got)
}

func TestAggregateEventsLastTieBreak(t *testing.T) {
	// Equal timestamps: the event inserted later wins.
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []*meter.UsageEvent{
		{Quantity: 10, Timestamp: ts},
		{Quantity: 20, Timestamp: ts},
		{Quantity: 30, Timestamp: ts},
	}

	got := meter.AggregateEvents(events, meterWith(meter.AggregationLast))
	assert.Equal(t, 30.0, got)
}

func TestAggregateEventsNilMeter(t *testing.T) {
	got := meter.AggregateEvents(eventsWithQuantities(1, 2, 3), nil)
	assert.Equal(t, 6.0, got)
}
