package meter

import (
	"errors"
	"math"
)

// Validation errors reported by ValidateEvent.
var (
	ErrMissingCustomerID = errors.New("meter: customer id is required")
	ErrMissingMeterKey   = errors.New("meter: meter key is required")
	ErrQuantityNaN       = errors.New("meter: quantity must be a number")
	ErrNegativeQuantity  = errors.New("meter: quantity must not be negative")
)

// Validation is the outcome of validating a usage event. Errors holds every
// violation found, not just the first, so callers can display the complete
// list at once.
type Validation struct {
	Valid  bool    `json:"valid"`
	Errors []error `json:"errors,omitempty"`
}

// ValidateEvent checks a usage event before it reaches the aggregator and
// the calculator, which assume a non-negative, non-NaN quantity. It never
// returns an error of its own; all violations are collected in the result.
func ValidateEvent(e *UsageEvent) Validation {
	var errs []error

	if e.CustomerID == "" {
		errs = append(errs, ErrMissingCustomerID)
	}
	if e.MeterKey == "" {
		errs = append(errs, ErrMissingMeterKey)
	}
	if math.IsNaN(e.Quantity) {
		errs = append(errs, ErrQuantityNaN)
	} else if e.Quantity < 0 {
		errs = append(errs, ErrNegativeQuantity)
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}
