package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

type testCounter struct{ value float64 }

func (c *testCounter) Inc()          { c.value++ }
func (c *testCounter) Add(v float64) { c.value += v }

type testHistogram struct{ observed []float64 }

func (h *testHistogram) Observe(v float64) { h.observed = append(h.observed, v) }

type testFactory struct {
	counters   map[string]*testCounter
	histograms map[string]*testHistogram
}

func newTestFactory() *testFactory {
	return &testFactory{
		counters:   make(map[string]*testCounter),
		histograms: make(map[string]*testHistogram),
	}
}

func (f *testFactory) Counter(name string) observability.Counter {
	c := &testCounter{}
	f.counters[name] = c
	return c
}

func (f *testFactory) Histogram(name string) observability.Histogram {
	h := &testHistogram{}
	f.histograms[name] = h
	return h
}

func TestLifecycleCounters(t *testing.T) {
	f := newTestFactory()
	ext := observability.NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, ext.OnPlanCreated(ctx, &plan.Plan{}))
	require.NoError(t, ext.OnPlanArchived(ctx, "plan_1"))
	require.NoError(t, ext.OnSubscriptionCreated(ctx, &subscription.Subscription{}))
	require.NoError(t, ext.OnSubscriptionCanceled(ctx, &subscription.Subscription{}))

	assert.Equal(t, 1.0, f.counters["tally.plan.created"].value)
	assert.Equal(t, 1.0, f.counters["tally.plan.archived"].value)
	assert.Equal(t, 1.0, f.counters["tally.subscription.created"].value)
	assert.Equal(t, 1.0, f.counters["tally.subscription.canceled"].value)
}

func TestSubscriptionChangeDirection(t *testing.T) {
	f := newTestFactory()
	ext := observability.NewMetricsExtension(f)
	ctx := context.Background()

	starter := &plan.Plan{BaseAmount: types.USD(900)}
	pro := &plan.Plan{BaseAmount: types.USD(4900)}
	sub := &subscription.Subscription{}

	require.NoError(t, ext.OnSubscriptionChanged(ctx, sub, starter, pro))
	require.NoError(t, ext.OnSubscriptionChanged(ctx, sub, pro, starter))

	assert.Equal(t, 1.0, f.counters["tally.subscription.upgraded"].value)
	assert.Equal(t, 1.0, f.counters["tally.subscription.downgraded"].value)
}

func TestUsageMetrics(t *testing.T) {
	f := newTestFactory()
	ext := observability.NewMetricsExtension(f)
	ctx := context.Background()

	events := []*meter.UsageEvent{{}, {}, {}}
	require.NoError(t, ext.OnUsageIngested(ctx, events))
	require.NoError(t, ext.OnUsageFlushed(ctx, 3, 42*time.Millisecond))

	assert.Equal(t, 3.0, f.counters["tally.usage.events.ingested"].value)
	assert.Equal(t, []float64{3}, f.histograms["tally.usage.batch.size"].observed)
	assert.Equal(t, []float64{42}, f.histograms["tally.usage.flush.latency_ms"].observed)
}

func TestEntitlementDeniedCounted(t *testing.T) {
	f := newTestFactory()
	ext := observability.NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, ext.OnEntitlementChecked(ctx, &entitlement.Result{Allowed: true}))
	require.NoError(t, ext.OnEntitlementChecked(ctx, &entitlement.Result{Allowed: false}))

	assert.Equal(t, 2.0, f.counters["tally.entitlement.checks"].value)
	assert.Equal(t, 1.0, f.counters["tally.entitlement.denied"].value)
}

func TestInvoiceTotalObserved(t *testing.T) {
	f := newTestFactory()
	ext := observability.NewMetricsExtension(f)
	ctx := context.Background()

	inv := &invoice.Invoice{
		Entity: types.NewEntity(),
		ID:     id.NewInvoiceID(),
		Total:  types.USD(5390),
	}
	require.NoError(t, ext.OnInvoiceGenerated(ctx, inv))

	assert.Equal(t, 1.0, f.counters["tally.invoice.generated"].value)
	assert.Equal(t, []float64{5390}, f.histograms["tally.invoice.total_amount"].observed)
}
