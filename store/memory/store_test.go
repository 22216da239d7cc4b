package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/subscription"
)

var ctx = context.Background()

func TestPlanRoundTrip(t *testing.T) {
	s := memory.New()
	p := &plan.Plan{ID: id.NewPlanID(), Slug: "pro", AppID: "app_1", Status: plan.StatusActive}

	require.NoError(t, s.CreatePlan(ctx, p))
	assert.ErrorIs(t, s.CreatePlan(ctx, p), tally.ErrAlreadyExists)

	got, err := s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = s.GetPlanBySlug(ctx, "pro", "app_1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = s.GetPlanBySlug(ctx, "pro", "other_app")
	assert.ErrorIs(t, err, tally.ErrPlanNotFound)

	require.NoError(t, s.ArchivePlan(ctx, p.ID))
	got, err = s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusArchived, got.Status)
}

func TestMeterRoundTrip(t *testing.T) {
	s := memory.New()
	m := &meter.Meter{ID: id.NewMeterID(), Key: "api_calls", AppID: "app_1", Aggregation: meter.AggregationSum}

	require.NoError(t, s.CreateMeter(ctx, m))
	assert.ErrorIs(t, s.CreateMeter(ctx, m), tally.ErrDuplicateMeter)

	got, err := s.GetMeter(ctx, "api_calls", "app_1")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = s.GetMeter(ctx, "api_calls", "other_app")
	assert.ErrorIs(t, err, tally.ErrMeterNotFound)

	list, err := s.ListMeters(ctx, "app_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIngestBatchIdempotency(t *testing.T) {
	s := memory.New()
	ts := time.Now()

	events := []*meter.UsageEvent{
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 5, Timestamp: ts, IdempotencyKey: "evt-1"},
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 5, Timestamp: ts, IdempotencyKey: "evt-1"},
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 3, Timestamp: ts, IdempotencyKey: "evt-2"},
	}
	require.NoError(t, s.IngestBatch(ctx, events))

	// Re-ingesting the same keys is a no-op.
	require.NoError(t, s.IngestBatch(ctx, events[:1]))

	total, err := s.Aggregate(ctx, "cust_1", "app_1", "api_calls", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 8.0, total)
}

func TestAggregateWindow(t *testing.T) {
	s := memory.New()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.IngestBatch(ctx, []*meter.UsageEvent{
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 1, Timestamp: start.Add(-time.Second)},
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 2, Timestamp: start},
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 4, Timestamp: end.Add(-time.Second)},
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 8, Timestamp: end},
		{CustomerID: "cust_2", AppID: "app_1", MeterKey: "api_calls", Quantity: 16, Timestamp: start},
	}))

	// Half-open window: start inclusive, end exclusive.
	total, err := s.Aggregate(ctx, "cust_1", "app_1", "api_calls", start, end)
	require.NoError(t, err)
	assert.Equal(t, 6.0, total)

	byKey, err := s.AggregateMulti(ctx, "cust_1", "app_1", []string{"api_calls", "storage_gb"}, start, end)
	require.NoError(t, err)
	assert.Equal(t, 6.0, byKey["api_calls"])
	assert.Zero(t, byKey["storage_gb"])
}

func TestQueryUsage(t *testing.T) {
	s := memory.New()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var events []*meter.UsageEvent
	for i := 0; i < 5; i++ {
		events = append(events, &meter.UsageEvent{
			CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls",
			Quantity: float64(i), Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, s.IngestBatch(ctx, events))

	got, err := s.QueryUsage(ctx, "cust_1", "app_1", meter.QueryOpts{MeterKey: "api_calls"})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = s.QueryUsage(ctx, "cust_1", "app_1", meter.QueryOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Quantity)
}

func TestPurgeUsage(t *testing.T) {
	s := memory.New()
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.IngestBatch(ctx, []*meter.UsageEvent{
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 1, Timestamp: cutoff.Add(-time.Hour)},
		{CustomerID: "cust_1", AppID: "app_1", MeterKey: "api_calls", Quantity: 2, Timestamp: cutoff.Add(time.Hour)},
	}))

	purged, err := s.PurgeUsage(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	total, err := s.Aggregate(ctx, "cust_1", "app_1", "api_calls", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, total)
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := memory.New()
	sub := &subscription.Subscription{
		ID: id.NewSubscriptionID(), CustomerID: "cust_1", AppID: "app_1",
		Status: subscription.StatusActive,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	got, err := s.GetActiveSubscription(ctx, "cust_1", "app_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CancelSubscription(ctx, sub.ID, now.Add(-time.Minute), now))
	_, err = s.GetActiveSubscription(ctx, "cust_1", "app_1")
	assert.ErrorIs(t, err, tally.ErrNoActiveSubscription)
}

func TestCancelSubscriptionUsesCallerClock(t *testing.T) {
	s := memory.New()
	sub := &subscription.Subscription{
		ID: id.NewSubscriptionID(), CustomerID: "cust_1", AppID: "app_1",
		Status: subscription.StatusActive,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	// A cancellation point after the caller's now stays scheduled, even
	// when that instant is in the wall clock's past.
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cancelAt := now.Add(time.Hour)
	require.NoError(t, s.CancelSubscription(ctx, sub.ID, cancelAt, now))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	require.NotNil(t, got.CancelAt)
	assert.True(t, got.CancelAt.Equal(cancelAt))
	assert.Nil(t, got.CanceledAt)

	// At or past the cancellation point the subscription cancels, stamped
	// with the caller's now.
	require.NoError(t, s.CancelSubscription(ctx, sub.ID, cancelAt, cancelAt))
	got, err = s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)
	assert.True(t, got.CanceledAt.Equal(cancelAt))
}

func TestEntitlementCache(t *testing.T) {
	s := memory.New()
	result := &entitlement.Result{Allowed: true, Feature: "api_calls", Used: 10, Limit: 100, Remaining: 90}

	require.NoError(t, s.SetCached(ctx, "cust_1", "app_1", "api_calls", result, time.Minute))

	got, err := s.GetCached(ctx, "cust_1", "app_1", "api_calls")
	require.NoError(t, err)
	assert.Equal(t, result, got)

	// Miss is (nil, nil).
	got, err = s.GetCached(ctx, "cust_1", "app_1", "other")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Invalidate(ctx, "cust_1", "app_1"))
	got, err = s.GetCached(ctx, "cust_1", "app_1", "api_calls")
	require.NoError(t, err)
	assert.Nil(t, got)
}
