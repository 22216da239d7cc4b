package entitlement

import (
	"context"
	"time"
)

// Store caches entitlement results between usage flushes. Implementations
// must treat a miss as (nil, nil) rather than an error.
type Store interface {
	GetCached(ctx context.Context, customerID, appID, featureKey string) (*Result, error)
	SetCached(ctx context.Context, customerID, appID, featureKey string, result *Result, ttl time.Duration) error
	Invalidate(ctx context.Context, customerID, appID string) error
	InvalidateFeature(ctx context.Context, customerID, appID, featureKey string) error
}
