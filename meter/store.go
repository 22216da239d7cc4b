package meter

import (
	"context"
	"time"
)

// Store is the persistence interface for meters and usage events.
type Store interface {
	// Meter definitions
	CreateMeter(ctx context.Context, m *Meter) error
	GetMeter(ctx context.Context, key, appID string) (*Meter, error)
	ListMeters(ctx context.Context, appID string) ([]*Meter, error)
	UpdateMeter(ctx context.Context, m *Meter) error

	// Usage events
	IngestBatch(ctx context.Context, events []*UsageEvent) error
	Aggregate(ctx context.Context, customerID, appID, meterKey string, start, end time.Time) (float64, error)
	Query(ctx context.Context, customerID, appID string, opts QueryOpts) ([]*UsageEvent, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// QueryOpts filters a usage-event query. Start/End form a half-open window
// [Start, End); zero values leave that side unbounded.
type QueryOpts struct {
	MeterKey string
	Start    time.Time
	End      time.Time
	Limit    int
	Offset   int
}
