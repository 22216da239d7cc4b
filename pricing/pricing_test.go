package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/types"
)

func TestPriceValidateWellFormed(t *testing.T) {
	tests := []struct {
		name  string
		model pricing.Model
	}{
		{"per unit", pricing.PerUnit{UnitAmount: types.USD(10)}},
		{"flat fee", pricing.FlatFee{Amount: types.USD(4900)}},
		{"graduated", pricing.Graduated{Tiers: []pricing.Tier{
			{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(10)},
			{UnitAmount: types.USD(5)},
		}}},
		{"volume single unbounded tier", pricing.Volume{Tiers: []pricing.Tier{
			{UnitAmount: types.USD(5)},
		}}},
		{"package", pricing.Package{Size: 1000, PerPackage: types.USD(500)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := usdPrice(tt.model)
			assert.Empty(t, p.Validate())
		})
	}
}

func TestPriceValidateViolations(t *testing.T) {
	tests := []struct {
		name string
		p    pricing.Price
		want error
	}{
		{
			"graduated without tiers",
			usdPrice(pricing.Graduated{}),
			pricing.ErrNoTiers,
		},
		{
			"tiers out of order",
			usdPrice(pricing.Graduated{Tiers: []pricing.Tier{
				{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(10)},
				{UpTo: pricing.UpToValue(50), UnitAmount: types.USD(5)},
			}}),
			pricing.ErrTiersNotAscending,
		},
		{
			"unbounded tier not last",
			usdPrice(pricing.Volume{Tiers: []pricing.Tier{
				{UnitAmount: types.USD(10)},
				{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(5)},
			}}),
			pricing.ErrUnboundedTierNotLast,
		},
		{
			"package without size",
			usdPrice(pricing.Package{PerPackage: types.USD(500)}),
			pricing.ErrPackageSizeRequired,
		},
		{
			"tier currency mismatch",
			usdPrice(pricing.PerUnit{UnitAmount: types.EUR(10)}),
			pricing.ErrCurrencyMismatch,
		},
		{
			"missing model",
			pricing.Price{MeterKey: "api_calls", Currency: "usd"},
			pricing.ErrInvalidPricing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.p.Validate()
			require.NotEmpty(t, errs)
			assert.ErrorIs(t, errs[0], tt.want)
		})
	}
}

func TestPriceValidateCollectsAllViolations(t *testing.T) {
	// Missing meter key, missing currency, and a bad model are all
	// reported together rather than one at a time.
	p := pricing.Price{Model: pricing.Package{}}
	errs := p.Validate()
	assert.GreaterOrEqual(t, len(errs), 3)
}

func TestPriceValidateCurrencyCaseInsensitive(t *testing.T) {
	// Money constructors lowercase their currency; an uppercase price
	// currency must still match.
	p := pricing.Price{
		MeterKey: "api_calls",
		Currency: "USD",
		Model: pricing.Graduated{Tiers: []pricing.Tier{
			{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(10), FlatAmount: types.USD(500)},
			{UnitAmount: types.USD(5)},
		}},
	}
	assert.Empty(t, p.Validate())
}

func TestPriceValidateMinAboveMax(t *testing.T) {
	minAmount := types.USD(1000)
	maxAmount := types.USD(500)
	p := usdPrice(pricing.PerUnit{UnitAmount: types.USD(10)})
	p.MinimumAmount = &minAmount
	p.MaximumAmount = &maxAmount

	errs := p.Validate()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], pricing.ErrInvalidPricing)
}

func TestModelNames(t *testing.T) {
	assert.Equal(t, "per_unit", pricing.PerUnit{}.ModelName())
	assert.Equal(t, "flat_fee", pricing.FlatFee{}.ModelName())
	assert.Equal(t, "tiered_graduated", pricing.Graduated{}.ModelName())
	assert.Equal(t, "tiered_volume", pricing.Volume{}.ModelName())
	assert.Equal(t, "package", pricing.Package{}.ModelName())
}
