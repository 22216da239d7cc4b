package meter_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/tally/meter"
)

func TestValidateEventValid(t *testing.T) {
	v := meter.ValidateEvent(&meter.UsageEvent{
		CustomerID: "cust_1",
		MeterKey:   "api_calls",
		Quantity:   10,
	})

	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
}

func TestValidateEventZeroQuantity(t *testing.T) {
	v := meter.ValidateEvent(&meter.UsageEvent{
		CustomerID: "cust_1",
		MeterKey:   "api_calls",
		Quantity:   0,
	})

	assert.True(t, v.Valid)
}

func TestValidateEventViolations(t *testing.T) {
	tests := []struct {
		name  string
		event *meter.UsageEvent
		want  []error
	}{
		{
			"missing customer id",
			&meter.UsageEvent{MeterKey: "api_calls", Quantity: 1},
			[]error{meter.ErrMissingCustomerID},
		},
		{
			"missing meter key",
			&meter.UsageEvent{CustomerID: "cust_1", Quantity: 1},
			[]error{meter.ErrMissingMeterKey},
		},
		{
			"negative quantity",
			&meter.UsageEvent{CustomerID: "cust_1", MeterKey: "api_calls", Quantity: -5},
			[]error{meter.ErrNegativeQuantity},
		},
		{
			"NaN quantity",
			&meter.UsageEvent{CustomerID: "cust_1", MeterKey: "api_calls", Quantity: math.NaN()},
			[]error{meter.ErrQuantityNaN},
		},
		{
			"all violations collected",
			&meter.UsageEvent{Quantity: -1},
			[]error{meter.ErrMissingCustomerID, meter.ErrMissingMeterKey, meter.ErrNegativeQuantity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := meter.ValidateEvent(tt.event)
			assert.False(t, v.Valid)
			assert.Equal(t, tt.want, v.Errors)
		})
	}
}
