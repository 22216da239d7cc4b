package pricing_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/types"
)

func TestPriceJSONRoundTrip(t *testing.T) {
	original := pricing.Price{
		MeterKey: "api_calls",
		Currency: "USD",
		Model: pricing.Graduated{Tiers: []pricing.Tier{
			{UpTo: pricing.UpToValue(100), UnitAmount: types.USD(10), FlatAmount: types.USD(500)},
			{UnitAmount: types.USD(5)},
		}},
		BillingMode:   pricing.BillingArrears,
		ResetBehavior: pricing.ResetPerPeriod,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded pricing.Price
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.MeterKey, decoded.MeterKey)
	model, ok := decoded.Model.(pricing.Graduated)
	require.True(t, ok)
	require.Len(t, model.Tiers, 2)
	assert.Equal(t, 100.0, *model.Tiers[0].UpTo)
	assert.Equal(t, types.USD(500), model.Tiers[0].FlatAmount)
	assert.Nil(t, model.Tiers[1].UpTo)

	// Priced results are unchanged by the round trip.
	assert.Equal(t, pricing.Calculate(350, original), pricing.Calculate(350, decoded))
}

func TestPriceJSONTieredDiscriminators(t *testing.T) {
	tiers := []pricing.Tier{{UnitAmount: types.USD(10)}}

	for _, model := range []pricing.Model{
		pricing.Graduated{Tiers: tiers},
		pricing.Volume{Tiers: tiers},
	} {
		data, err := json.Marshal(pricing.Price{MeterKey: "api_calls", Model: model})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"type":"`+model.ModelName()+`"`)

		var decoded pricing.Price
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.NotNil(t, decoded.Model)
		assert.Equal(t, model.ModelName(), decoded.Model.ModelName())
	}
}

func TestPriceJSONUnknownModel(t *testing.T) {
	var p pricing.Price
	err := json.Unmarshal([]byte(`{"meter_key":"x","model":{"type":"mystery"}}`), &p)
	assert.Error(t, err)
}

func TestPriceJSONPackage(t *testing.T) {
	original := pricing.Price{
		MeterKey: "emails",
		Currency: "USD",
		Model:    pricing.Package{Size: 1000, PerPackage: types.USD(250)},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded pricing.Price
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Model, decoded.Model)
}
