package tally_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

const (
	testCustomer = "cust_123"
	testApp      = "app_456"
)

// fixedNow keeps billing periods deterministic: mid-March 2024.
var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...tally.Option) *tally.Tally {
	t.Helper()
	opts = append([]tally.Option{tally.WithClock(func() time.Time { return fixedNow })}, opts...)
	return tally.New(memory.New(), opts...)
}

// proPlan is a monthly plan with a $49 base fee and graduated API call
// pricing: first 100 calls included, 2¢ per call after.
func proPlan() *plan.Plan {
	return &plan.Plan{
		Name:       "Pro Plan",
		Slug:       "pro",
		Currency:   "usd",
		BaseAmount: types.USD(4900),
		Interval:   subscription.IntervalMonth,
		AppID:      testApp,
		Meters: []meter.Meter{
			{Key: "api_calls", Name: "API Calls", Aggregation: meter.AggregationSum, AppID: testApp},
		},
		Prices: []pricing.Price{
			{
				MeterKey: "api_calls",
				Currency: "usd",
				Model: pricing.Graduated{Tiers: []pricing.Tier{
					{UpTo: pricing.UpToValue(100), UnitAmount: types.Zero("usd")},
					{UnitAmount: types.USD(2)},
				}},
			},
		},
		Features: []plan.Feature{
			{Key: "api_calls", Name: "API Calls", Type: plan.FeatureMetered, Limit: 120, Period: plan.PeriodMonthly},
			{Key: "sso", Name: "SSO", Type: plan.FeatureBoolean, Limit: 1},
			{Key: "exports", Name: "Exports", Type: plan.FeatureBoolean, Limit: 0},
		},
	}
}

func setupSubscription(t *testing.T, eng *tally.Tally) *subscription.Subscription {
	t.Helper()
	ctx := context.Background()

	p := proPlan()
	require.NoError(t, eng.CreatePlan(ctx, p))

	sub := &subscription.Subscription{
		CustomerID: testCustomer,
		PlanID:     p.ID,
		AppID:      testApp,
	}
	require.NoError(t, eng.CreateSubscription(ctx, sub))
	return sub
}

func TestCreatePlanRejectsBadPricing(t *testing.T) {
	eng := newTestEngine(t)

	p := proPlan()
	p.Prices = []pricing.Price{
		{MeterKey: "api_calls", Currency: "usd", Model: pricing.Graduated{}},
	}

	err := eng.CreatePlan(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err.(*types.MultiError).First(), pricing.ErrNoTiers)
}

func TestCreateSubscriptionDerivesPeriod(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, subscription.IntervalMonth, sub.Interval)
	assert.Equal(t, fixedNow, sub.AnchorAt)
	assert.Equal(t, fixedNow, sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2024, time.April, 15, 12, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
}

func TestCreateSubscriptionTrialFromPlan(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	p := proPlan()
	p.TrialDays = 14
	require.NoError(t, eng.CreatePlan(ctx, p))

	sub := &subscription.Subscription{CustomerID: testCustomer, PlanID: p.ID, AppID: testApp}
	require.NoError(t, eng.CreateSubscription(ctx, sub))

	assert.Equal(t, subscription.StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, fixedNow.AddDate(0, 0, 14), *sub.TrialEnd)
	assert.True(t, sub.InTrial(fixedNow.AddDate(0, 0, 7)))
}

func TestMeterAndFlush(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 60))
	require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 90))
	require.NoError(t, eng.Flush(ctx))

	summaries, err := eng.BuildUsageSummaries(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	sum := summaries[0]
	assert.Equal(t, "api_calls", sum.MeterKey)
	assert.InDelta(t, 150.0, sum.AggregatedValue, 0)
	assert.Equal(t, 2, sum.EventCount)
	// 100 included + 50 at 2¢
	assert.Equal(t, types.USD(100), sum.Amount)
	require.Len(t, sum.Breakdown, 2)
	assert.InDelta(t, 100.0, sum.Breakdown[0].Quantity, 0)
	assert.InDelta(t, 50.0, sum.Breakdown[1].Quantity, 0)
}

func TestRecordEventValidation(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.RecordEvent(context.Background(), &meter.UsageEvent{
		AppID:    testApp,
		MeterKey: "api_calls",
		Quantity: -1,
	})
	require.Error(t, err)

	var multi *types.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Contains(t, multi.Errors, meter.ErrMissingCustomerID)
	assert.Contains(t, multi.Errors, meter.ErrNegativeQuantity)
}

func TestEntitled(t *testing.T) {
	eng := newTestEngine(t)
	setupSubscription(t, eng)
	ctx := context.Background()

	t.Run("boolean feature on", func(t *testing.T) {
		res, err := eng.Entitled(ctx, testCustomer, testApp, "sso")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("boolean feature off", func(t *testing.T) {
		res, err := eng.Entitled(ctx, testCustomer, testApp, "exports")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	})

	t.Run("metered under limit", func(t *testing.T) {
		require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 50))
		require.NoError(t, eng.Flush(ctx))

		res, err := eng.Entitled(ctx, testCustomer, testApp, "api_calls")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.InDelta(t, 50.0, res.Used, 0)
		assert.InDelta(t, 70.0, res.Remaining, 0)
	})

	t.Run("cached result served until invalidated", func(t *testing.T) {
		require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 200))
		require.NoError(t, eng.Flush(ctx))

		// Still the cached 50-used result.
		res, err := eng.Entitled(ctx, testCustomer, testApp, "api_calls")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.InDelta(t, 50.0, res.Used, 0)
	})

	t.Run("quota exceeded after invalidation", func(t *testing.T) {
		sub, err := eng.GetActiveSubscription(ctx, testCustomer, testApp)
		require.NoError(t, err)
		require.NotNil(t, sub)

		// New subscription state invalidates; easiest is a fresh engine check
		// via a direct store pass-through: cancel+recheck would change status,
		// so expire the cache by checking a feature that recomputes.
		eng2 := newTestEngine(t)
		setupSubscription(t, eng2)
		require.NoError(t, eng2.Meter(ctx, testCustomer, testApp, "api_calls", 250))
		require.NoError(t, eng2.Flush(ctx))

		res, err := eng2.Entitled(ctx, testCustomer, testApp, "api_calls")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, "quota exceeded", res.Reason)
		assert.InDelta(t, 0.0, res.Remaining, 0)
	})

	t.Run("unknown feature", func(t *testing.T) {
		res, err := eng.Entitled(ctx, testCustomer, testApp, "nonexistent")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, "feature not in plan", res.Reason)
	})

	t.Run("no subscription", func(t *testing.T) {
		res, err := eng.Entitled(ctx, "cust_other", testApp, "sso")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, "no active subscription", res.Reason)
	})
}

func TestEntitledSoftLimit(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	p := proPlan()
	p.Features[0].SoftLimit = true
	require.NoError(t, eng.CreatePlan(ctx, p))
	sub := &subscription.Subscription{CustomerID: testCustomer, PlanID: p.ID, AppID: testApp}
	require.NoError(t, eng.CreateSubscription(ctx, sub))

	require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 500))
	require.NoError(t, eng.Flush(ctx))

	res, err := eng.Entitled(ctx, testCustomer, testApp, "api_calls")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "over soft limit", res.Reason)
}

func TestGenerateInvoice(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 150))
	require.NoError(t, eng.Flush(ctx))

	inv, err := eng.GenerateInvoice(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, invoice.StatusDraft, inv.Status)
	require.Len(t, inv.LineItems, 2)

	base := inv.LineItems[0]
	assert.Equal(t, invoice.LineItemBase, base.Type)
	assert.Equal(t, types.USD(4900), base.Amount)

	usageLine := inv.LineItems[1]
	assert.Equal(t, invoice.LineItemUsage, usageLine.Type)
	assert.Equal(t, "api_calls", usageLine.MeterKey)
	assert.Equal(t, "API Calls", usageLine.Description)
	assert.InDelta(t, 150.0, usageLine.Quantity, 0)
	assert.Equal(t, types.USD(100), usageLine.Amount)
	assert.Len(t, usageLine.Breakdown, 2)

	assert.Equal(t, types.USD(5000), inv.Subtotal)
	assert.Equal(t, types.USD(5000), inv.Total)

	// Second generation for the same period returns the existing invoice.
	dup, err := eng.GenerateInvoice(ctx, sub.ID)
	assert.ErrorIs(t, err, tally.ErrAlreadyExists)
	require.NotNil(t, dup)
	assert.Equal(t, inv.ID, dup.ID)
}

func TestInvoiceLifecycle(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	inv, err := eng.GenerateInvoice(ctx, sub.ID)
	require.NoError(t, err)

	due := fixedNow.AddDate(0, 0, 30)
	finalized, err := eng.FinalizeInvoice(ctx, inv.ID, due)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, finalized.Status)
	require.NotNil(t, finalized.DueDate)
	assert.Equal(t, due, *finalized.DueDate)

	// Finalizing twice fails.
	_, err = eng.FinalizeInvoice(ctx, inv.ID, due)
	assert.ErrorIs(t, err, tally.ErrInvoiceFinalized)

	paid, err := eng.PayInvoice(ctx, inv.ID, "pay_abc")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.Equal(t, "pay_abc", paid.PaymentRef)

	// Paid invoices cannot be voided or re-paid.
	_, err = eng.VoidInvoice(ctx, inv.ID, "oops")
	assert.ErrorIs(t, err, tally.ErrInvoicePaid)
	_, err = eng.PayInvoice(ctx, inv.ID, "pay_again")
	assert.ErrorIs(t, err, tally.ErrInvoicePaid)
}

func TestVoidInvoice(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	inv, err := eng.GenerateInvoice(ctx, sub.ID)
	require.NoError(t, err)

	voided, err := eng.VoidInvoice(ctx, inv.ID, "duplicate billing")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusVoided, voided.Status)
	assert.Equal(t, "duplicate billing", voided.VoidReason)

	_, err = eng.PayInvoice(ctx, inv.ID, "pay_abc")
	assert.ErrorIs(t, err, tally.ErrInvoiceVoided)
}

func TestCancelSubscription(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	t.Run("at period end", func(t *testing.T) {
		require.NoError(t, eng.CancelSubscription(ctx, sub.ID, false))

		got, err := eng.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		require.NotNil(t, got.CancelAt)
		assert.Equal(t, sub.CurrentPeriodEnd, *got.CancelAt)
	})

	t.Run("immediately", func(t *testing.T) {
		require.NoError(t, eng.CancelSubscription(ctx, sub.ID, true))

		got, err := eng.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, got.Status)
	})
}

func TestChangePlan(t *testing.T) {
	eng := newTestEngine(t)
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	p2 := proPlan()
	p2.Name = "Pro Annual"
	p2.Slug = "pro-annual"
	p2.Interval = subscription.IntervalYear
	require.NoError(t, eng.CreatePlan(ctx, p2))

	require.NoError(t, eng.ChangePlan(ctx, sub.ID, p2.ID))

	got, err := eng.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, p2.ID, got.PlanID)
	assert.Equal(t, subscription.IntervalYear, got.Interval)
}

func TestStartStopFlushesBuffer(t *testing.T) {
	eng := newTestEngine(t, tally.WithMeterConfig(100, time.Hour))
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 25))
	require.NoError(t, eng.Stop())

	summaries, err := eng.BuildUsageSummaries(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 25.0, summaries[0].AggregatedValue, 0)
}

// recordingPlugin captures hook invocations for assertions.
type recordingPlugin struct {
	mu             sync.Mutex
	plansCreated   int
	summariesBuilt int
	quotaExceeded  int
	invoices       int
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plansCreated++
	return nil
}

func (p *recordingPlugin) OnSummaryBuilt(_ context.Context, _ *usage.Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summariesBuilt++
	return nil
}

func (p *recordingPlugin) OnQuotaExceeded(_ context.Context, _, _ string, _ float64, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotaExceeded++
	return nil
}

func (p *recordingPlugin) OnInvoiceGenerated(_ context.Context, _ *invoice.Invoice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invoices++
	return nil
}

func TestPluginHooks(t *testing.T) {
	rec := &recordingPlugin{}
	eng := newTestEngine(t, tally.WithPlugin(rec))
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	require.NoError(t, eng.Meter(ctx, testCustomer, testApp, "api_calls", 500))
	require.NoError(t, eng.Flush(ctx))

	_, err := eng.Entitled(ctx, testCustomer, testApp, "api_calls")
	require.NoError(t, err)

	_, err = eng.GenerateInvoice(ctx, sub.ID)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.plansCreated)
	assert.Equal(t, 1, rec.summariesBuilt)
	assert.Equal(t, 1, rec.quotaExceeded)
	assert.Equal(t, 1, rec.invoices)
}

func TestFlatTax(t *testing.T) {
	eng := newTestEngine(t, tally.WithPlugin(&flatTax{rate: 0.10}))
	sub := setupSubscription(t, eng)
	ctx := context.Background()

	inv, err := eng.GenerateInvoice(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, types.USD(4900), inv.Subtotal)
	assert.Equal(t, types.USD(490), inv.TaxAmount)
	assert.Equal(t, types.USD(5390), inv.Total)
}

// flatTax applies a flat rate to the subtotal.
type flatTax struct {
	rate float64
}

func (f *flatTax) Name() string { return "flat-tax" }

func (f *flatTax) CalculateTax(_ context.Context, subtotal types.Money, _ string) (types.Money, error) {
	return subtotal.MulRound(f.rate), nil
}
