// Package pricing implements the tiered pricing calculator at the heart of
// Tally's usage-based billing: per-unit, flat-fee, graduated, volume, and
// package pricing over integer minor-currency amounts.
//
// Pricing models form a closed sum type. A Price carries exactly one Model,
// so invalid combinations (a package price without a package size, a
// per-unit price with tiers) cannot be represented.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Configuration errors returned by Validate. Calculate never returns these:
// it degrades to zero amounts on malformed configuration, on the premise
// that prices are validated when plans are created.
var (
	ErrInvalidPricing       = errors.New("pricing: invalid configuration")
	ErrNoTiers              = errors.New("pricing: at least one tier is required")
	ErrTiersNotAscending    = errors.New("pricing: tiers must be ordered ascending by upper bound")
	ErrUnboundedTierNotLast = errors.New("pricing: unbounded tier must be the last tier")
	ErrPackageSizeRequired  = errors.New("pricing: package size must be positive")
	ErrCurrencyMismatch     = errors.New("pricing: tier currency does not match price currency")
)

// BillingMode controls whether a price is charged at the start or the end
// of a billing period. Informational to the calculator.
type BillingMode string

const (
	BillingAdvance BillingMode = "advance"
	BillingArrears BillingMode = "arrears"
)

// ResetBehavior controls whether aggregated usage resets at each period
// boundary. Informational to the calculator; enforced by the caller that
// selects which events to aggregate.
type ResetBehavior string

const (
	ResetPerPeriod ResetBehavior = "per_period"
	ResetNever     ResetBehavior = "never"
)

// Tier is one band of a tiered price. Tiers are ordered ascending by UpTo;
// a nil UpTo means unbounded and must be the last tier.
type Tier struct {
	UpTo       *float64    `json:"up_to,omitempty"`
	UnitAmount types.Money `json:"unit_amount"`
	FlatAmount types.Money `json:"flat_amount,omitempty"`
}

// Unbounded reports whether the tier has no upper bound.
func (t Tier) Unbounded() bool { return t.UpTo == nil }

// UpToValue is a convenience constructor for a bounded tier limit.
func UpToValue(v float64) *float64 { return &v }

// Model is the closed set of pricing models. Exactly one concrete model
// drives the computation for a Price.
type Model interface {
	// ModelName returns the stable wire name of the model
	// ("per_unit", "flat_fee", "tiered_graduated", "tiered_volume", "package").
	ModelName() string

	// Validate reports configuration violations against the given price
	// currency. It collects all problems rather than stopping at the first.
	Validate(currency string) []error

	model() // sealed
}

// PerUnit charges a fixed amount per unit of aggregated usage.
type PerUnit struct {
	UnitAmount types.Money `json:"unit_amount"`
}

// FlatFee charges a fixed amount per period regardless of usage.
type FlatFee struct {
	Amount types.Money `json:"amount"`
}

// Graduated prices each unit according to the tier its position falls into
// and sums the charges across tiers.
type Graduated struct {
	Tiers []Tier `json:"tiers"`
}

// Volume prices the entire quantity at the single tier rate that the total
// volume falls into.
type Volume struct {
	Tiers []Tier `json:"tiers"`
}

// Package sells units in fixed-size bundles at a flat price per bundle,
// rounded up.
type Package struct {
	Size       float64     `json:"size"`
	PerPackage types.Money `json:"per_package"`
}

func (PerUnit) model()   {}
func (FlatFee) model()   {}
func (Graduated) model() {}
func (Volume) model()    {}
func (Package) model()   {}

// ModelName implements Model.
func (PerUnit) ModelName() string { return "per_unit" }

// ModelName implements Model.
func (FlatFee) ModelName() string { return "flat_fee" }

// ModelName implements Model.
func (Graduated) ModelName() string { return "tiered_graduated" }

// ModelName implements Model.
func (Volume) ModelName() string { return "tiered_volume" }

// ModelName implements Model.
func (Package) ModelName() string { return "package" }

// Validate implements Model.
func (m PerUnit) Validate(currency string) []error {
	if m.UnitAmount.Currency != currency {
		return []error{ErrCurrencyMismatch}
	}
	return nil
}

// Validate implements Model.
func (m FlatFee) Validate(currency string) []error {
	if m.Amount.Currency != currency {
		return []error{ErrCurrencyMismatch}
	}
	return nil
}

// Validate implements Model.
func (m Graduated) Validate(currency string) []error {
	return validateTiers(m.Tiers, currency)
}

// Validate implements Model.
func (m Volume) Validate(currency string) []error {
	return validateTiers(m.Tiers, currency)
}

// Validate implements Model.
func (m Package) Validate(currency string) []error {
	var errs []error
	if m.Size <= 0 {
		errs = append(errs, ErrPackageSizeRequired)
	}
	if m.PerPackage.Currency != currency {
		errs = append(errs, ErrCurrencyMismatch)
	}
	return errs
}

func validateTiers(tiers []Tier, currency string) []error {
	var errs []error

	if len(tiers) == 0 {
		errs = append(errs, ErrNoTiers)
		return errs
	}

	prev := 0.0
	for i, t := range tiers {
		if t.UpTo == nil {
			if i != len(tiers)-1 {
				errs = append(errs, ErrUnboundedTierNotLast)
			}
		} else if *t.UpTo <= prev {
			errs = append(errs, fmt.Errorf("%w: tier %d", ErrTiersNotAscending, i))
		} else {
			prev = *t.UpTo
		}

		if t.UnitAmount.Currency != currency ||
			(t.FlatAmount != (types.Money{}) && t.FlatAmount.Currency != currency) {
			errs = append(errs, fmt.Errorf("%w: tier %d", ErrCurrencyMismatch, i))
		}
	}
	return errs
}

// Price binds a usage meter to a pricing model with optional per-period
// amount bounds.
type Price struct {
	types.Entity
	ID            id.PriceID    `json:"id"`
	MeterKey      string        `json:"meter_key"`
	Currency      string        `json:"currency"`
	Model         Model         `json:"model"`
	MinimumAmount *types.Money  `json:"minimum_amount,omitempty"`
	MaximumAmount *types.Money  `json:"maximum_amount,omitempty"`
	BillingMode   BillingMode   `json:"billing_mode,omitempty"`
	ResetBehavior ResetBehavior `json:"reset_behavior,omitempty"`
}

// Validate collects all configuration violations so plan creation can
// report every problem at once.
func (p Price) Validate() []error {
	var errs []error

	if p.MeterKey == "" {
		errs = append(errs, fmt.Errorf("%w: meter key is required", ErrInvalidPricing))
	}
	if p.Currency == "" {
		errs = append(errs, fmt.Errorf("%w: currency is required", ErrInvalidPricing))
	}
	if p.Model == nil {
		errs = append(errs, fmt.Errorf("%w: pricing model is required", ErrInvalidPricing))
		return errs
	}
	// Money constructors store lowercase currencies; normalize the price
	// currency once so "USD" and "usd" compare equal everywhere below.
	errs = append(errs, p.Model.Validate(strings.ToLower(p.Currency))...)

	if p.MinimumAmount != nil && p.MaximumAmount != nil &&
		p.MinimumAmount.GreaterThan(*p.MaximumAmount) {
		errs = append(errs, fmt.Errorf("%w: minimum amount exceeds maximum amount", ErrInvalidPricing))
	}
	return errs
}

// Zero returns the zero Money value in the price's currency.
func (p Price) Zero() types.Money { return types.Zero(p.Currency) }
