package pricing

import (
	"math"

	"github.com/xraph/tally/types"
)

// TierBreakdown is one line of the per-tier charge explanation: how much of
// the quantity landed in the tier, at what unit price, and the half-open
// [FromUnit, ToUnit) range the tier covers. A nil ToUnit means unbounded.
//
// For package pricing, Quantity is the number of packages charged, not the
// raw unit quantity.
type TierBreakdown struct {
	TierIndex  int         `json:"tier_index"`
	Quantity   float64     `json:"quantity"`
	UnitAmount types.Money `json:"unit_amount"`
	Amount     types.Money `json:"amount"`
	FromUnit   float64     `json:"from_unit"`
	ToUnit     *float64    `json:"to_unit,omitempty"`
}

// Result is the outcome of a pricing calculation: the total amount and the
// per-tier explanation of how it was reached.
type Result struct {
	Amount    types.Money     `json:"amount"`
	Breakdown []TierBreakdown `json:"breakdown"`
}

// Calculate computes the charge for an aggregated usage quantity under a
// price. Quantity must be non-negative and not NaN; callers validate events
// before aggregation so the calculator never sees either.
//
// Each per-tier multiplication is rounded to the nearest minor currency
// unit (half-up) before summing; fractional minor units are never carried
// across tiers. Malformed configuration (empty tiers, missing package size)
// yields a zero result rather than an error — Validate catches those at
// plan creation time.
//
// Calculate is a pure function: identical inputs produce identical results.
func Calculate(quantity float64, p Price) Result {
	switch m := p.Model.(type) {
	case PerUnit:
		return scalarResult(quantity, p, m.UnitAmount)
	case FlatFee:
		// Quantity is ignored; the fee is charged as a single default tier.
		unit := types.New(m.Amount.Amount, p.Currency)
		return Result{
			Amount: unit,
			Breakdown: []TierBreakdown{{
				TierIndex:  0,
				Quantity:   quantity,
				UnitAmount: unit,
				Amount:     unit,
				FromUnit:   0,
			}},
		}
	case Graduated:
		return calcGraduated(quantity, p, m.Tiers)
	case Volume:
		return calcVolume(quantity, p, m.Tiers)
	case Package:
		return calcPackage(quantity, p, m)
	default:
		// No model configured: legitimately free.
		return Result{Amount: p.Zero()}
	}
}

// scalarResult handles per-unit pricing: one implicit unbounded tier.
func scalarResult(quantity float64, p Price, unitAmount types.Money) Result {
	unit := types.New(unitAmount.Amount, p.Currency)
	amount := unit.MulRound(quantity)
	return Result{
		Amount: amount,
		Breakdown: []TierBreakdown{{
			TierIndex:  0,
			Quantity:   quantity,
			UnitAmount: unit,
			Amount:     amount,
			FromUnit:   0,
		}},
	}
}

// calcGraduated walks the tiers in order, consuming quantity into successive
// bands and charging each band at its own unit rate.
func calcGraduated(quantity float64, p Price, tiers []Tier) Result {
	if len(tiers) == 0 {
		return Result{Amount: p.Zero()}
	}

	total := p.Zero()
	breakdown := make([]TierBreakdown, 0, len(tiers))
	remaining := quantity
	previousUpTo := 0.0

	for i, t := range tiers {
		if remaining <= 0 {
			break
		}

		inTier := remaining
		if t.UpTo != nil {
			capacity := *t.UpTo - previousUpTo
			inTier = math.Min(remaining, capacity)
			previousUpTo = *t.UpTo
		}

		unit := types.New(t.UnitAmount.Amount, p.Currency)
		amount := unit.MulRound(inTier)
		if inTier > 0 && t.FlatAmount.Amount != 0 {
			amount = amount.Add(types.New(t.FlatAmount.Amount, p.Currency))
		}

		if inTier > 0 {
			breakdown = append(breakdown, TierBreakdown{
				TierIndex:  i,
				Quantity:   inTier,
				UnitAmount: unit,
				Amount:     amount,
				FromUnit:   tierFloor(tiers, i),
				ToUnit:     t.UpTo,
			})
			total = total.Add(amount)
		}

		remaining -= inTier
	}

	return Result{Amount: total, Breakdown: breakdown}
}

// calcVolume prices the entire quantity at the single tier whose band
// contains it: the first tier that is unbounded or whose UpTo is at least
// the quantity. A well-formed price ends with an unbounded tier, but if no
// tier matches the last one is used.
func calcVolume(quantity float64, p Price, tiers []Tier) Result {
	if len(tiers) == 0 {
		return Result{Amount: p.Zero()}
	}

	index := len(tiers) - 1
	for i, t := range tiers {
		if t.UpTo == nil || *t.UpTo >= quantity {
			index = i
			break
		}
	}

	t := tiers[index]
	unit := types.New(t.UnitAmount.Amount, p.Currency)
	amount := unit.MulRound(quantity)
	if t.FlatAmount.Amount != 0 {
		amount = amount.Add(types.New(t.FlatAmount.Amount, p.Currency))
	}

	return Result{
		Amount: amount,
		Breakdown: []TierBreakdown{{
			TierIndex:  index,
			Quantity:   quantity,
			UnitAmount: unit,
			Amount:     amount,
			FromUnit:   tierFloor(tiers, index),
			ToUnit:     t.UpTo,
		}},
	}
}

// calcPackage charges per fixed-size bundle, rounded up. The breakdown
// quantity is the package count, not the raw unit quantity.
func calcPackage(quantity float64, p Price, m Package) Result {
	if m.Size <= 0 {
		// Malformed configuration; Validate rejects this upstream.
		return Result{Amount: p.Zero()}
	}

	packages := math.Ceil(quantity / m.Size)
	perPackage := types.New(m.PerPackage.Amount, p.Currency)
	amount := perPackage.MulRound(packages)

	return Result{
		Amount: amount,
		Breakdown: []TierBreakdown{{
			TierIndex:  0,
			Quantity:   packages,
			UnitAmount: perPackage,
			Amount:     amount,
			FromUnit:   0,
		}},
	}
}

// tierFloor returns the lower bound of tier i: the upper bound of the
// previous tier, or 0 for the first.
func tierFloor(tiers []Tier, i int) float64 {
	if i == 0 {
		return 0
	}
	if prev := tiers[i-1].UpTo; prev != nil {
		return *prev
	}
	return 0
}
