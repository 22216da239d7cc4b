package plan

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDraft    Status = "draft"
)

// Plan bundles everything needed to bill a customer: a recurring base amount,
// the meters it tracks, a usage price per metered key, and feature limits for
// entitlement checks.
type Plan struct {
	types.Entity
	ID            id.PlanID             `json:"id"`
	Name          string                `json:"name"`
	Slug          string                `json:"slug"`
	Description   string                `json:"description"`
	Currency      string                `json:"currency"`
	Status        Status                `json:"status"`
	TrialDays     int                   `json:"trial_days"`
	BaseAmount    types.Money           `json:"base_amount"`
	Interval      subscription.Interval `json:"interval"`
	IntervalCount int                   `json:"interval_count"`
	Features      []Feature             `json:"features"`
	Meters        []meter.Meter         `json:"meters,omitempty"`
	Prices        []pricing.Price       `json:"prices,omitempty"`
	AppID         string                `json:"app_id"`
	Metadata      map[string]string     `json:"metadata,omitempty"`
}

type Feature struct {
	types.Entity
	ID        id.FeatureID      `json:"id"`
	Key       string            `json:"key"`
	Name      string            `json:"name"`
	Type      FeatureType       `json:"type"`
	Limit     int64             `json:"limit"`
	Period    Period            `json:"period"`
	SoftLimit bool              `json:"soft_limit"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type FeatureType string

const (
	FeatureMetered FeatureType = "metered"
	FeatureBoolean FeatureType = "boolean"
	FeatureSeat    FeatureType = "seat"
)

type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
	PeriodNone    Period = "none"
)

func (p *Plan) FindFeature(key string) *Feature {
	for i := range p.Features {
		if p.Features[i].Key == key {
			return &p.Features[i]
		}
	}
	return nil
}

// FindPrice returns the usage price bound to the given meter key, or nil.
func (p *Plan) FindPrice(meterKey string) *pricing.Price {
	for i := range p.Prices {
		if p.Prices[i].MeterKey == meterKey {
			return &p.Prices[i]
		}
	}
	return nil
}

// FindMeter returns the meter definition with the given key, or nil.
func (p *Plan) FindMeter(key string) *meter.Meter {
	for i := range p.Meters {
		if p.Meters[i].Key == key {
			return &p.Meters[i]
		}
	}
	return nil
}

func (p *Plan) Allows(featureKey string, currentUsage int64) bool {
	f := p.FindFeature(featureKey)
	if f == nil {
		return false
	}
	if f.Type == FeatureBoolean {
		return f.Limit > 0
	}
	if f.Limit == -1 {
		return true
	}
	if currentUsage < f.Limit {
		return true
	}
	return f.SoftLimit
}

// Validate collects configuration violations across the plan's prices and
// meters. A plan with violations prices every quantity to zero rather than
// erroring at calculation time, so violations should be surfaced here.
func (p *Plan) Validate() []error {
	var errs []error
	for i := range p.Prices {
		price := p.Prices[i]
		if price.Currency == "" {
			price.Currency = p.Currency
		}
		errs = append(errs, price.Validate()...)
	}
	if p.Interval != "" && !p.Interval.Valid() {
		errs = append(errs, &types.ValidationError{Field: "interval", Message: "unknown billing interval"})
	}
	return errs
}
