package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

func testPlan() *plan.Plan {
	return &plan.Plan{
		Name:     "Pro",
		Slug:     "pro",
		Currency: "USD",
		Status:   plan.StatusActive,
		Interval: subscription.IntervalMonth,
		Features: []plan.Feature{
			{Key: "api_calls", Type: plan.FeatureMetered, Limit: 1000, Period: plan.PeriodMonthly},
			{Key: "sso", Type: plan.FeatureBoolean, Limit: 1},
			{Key: "exports", Type: plan.FeatureMetered, Limit: 10, SoftLimit: true},
			{Key: "storage", Type: plan.FeatureMetered, Limit: -1},
		},
		Prices: []pricing.Price{
			{
				MeterKey: "api_calls",
				Currency: "USD",
				Model: pricing.Graduated{Tiers: []pricing.Tier{
					{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(10)},
					{UnitAmount: types.USD(5)},
				}},
			},
		},
	}
}

func TestPlanAllows(t *testing.T) {
	p := testPlan()

	assert.True(t, p.Allows("api_calls", 999))
	assert.False(t, p.Allows("api_calls", 1000))
	assert.True(t, p.Allows("sso", 0))
	assert.False(t, p.Allows("unknown", 0))

	// Soft limits allow overage.
	assert.True(t, p.Allows("exports", 50))

	// -1 means unlimited.
	assert.True(t, p.Allows("storage", 1<<40))
}

func TestPlanFindPrice(t *testing.T) {
	p := testPlan()

	price := p.FindPrice("api_calls")
	assert.NotNil(t, price)
	assert.Equal(t, "api_calls", price.MeterKey)
	assert.Nil(t, p.FindPrice("storage"))
}

func TestPlanValidate(t *testing.T) {
	p := testPlan()
	assert.Empty(t, p.Validate())

	p.Prices = append(p.Prices, pricing.Price{
		MeterKey: "exports",
		Currency: "USD",
		Model:    pricing.Graduated{},
	})
	errsFound := p.Validate()
	assert.NotEmpty(t, errsFound)
	assert.ErrorIs(t, errsFound[0], pricing.ErrNoTiers)

	p = testPlan()
	p.Interval = subscription.Interval("fortnight")
	assert.NotEmpty(t, p.Validate())
}
