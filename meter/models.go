// Package meter defines usage meters, raw usage events, and the aggregation
// of events into a single billable quantity.
package meter

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Aggregation is the reduction strategy applied to raw usage events within
// a billing period.
type Aggregation string

const (
	// AggregationSum adds up all event quantities.
	AggregationSum Aggregation = "sum"
	// AggregationMax takes the largest event quantity.
	AggregationMax Aggregation = "max"
	// AggregationLast takes the quantity of the latest event by timestamp.
	AggregationLast Aggregation = "last"
	// AggregationCount counts events, ignoring their quantities.
	AggregationCount Aggregation = "count"
)

// Meter is the definition of a trackable usage metric. Meters are created
// by plan/configuration setup and are immutable once events reference them
// in a closed billing period; the engine only reads them.
type Meter struct {
	types.Entity
	ID          id.MeterID        `json:"id"`
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Unit        string            `json:"unit"`
	Aggregation Aggregation       `json:"aggregation"`
	Active      bool              `json:"active"`
	AppID       string            `json:"app_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UsageEvent is one raw usage observation. Events are immutable after
// creation; the engine only reads events within a queried time window.
type UsageEvent struct {
	ID             id.UsageEventID   `json:"id"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id,omitempty"`
	AppID          string            `json:"app_id"`
	MeterKey       string            `json:"meter_key"`
	Quantity       float64           `json:"quantity"`
	Timestamp      time.Time         `json:"timestamp"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
}
