package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/tally/subscription"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBillingPeriodMonthly(t *testing.T) {
	tests := []struct {
		name      string
		anchor    time.Time
		ref       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			"ref inside first period",
			date(2024, time.January, 1), date(2024, time.January, 15),
			date(2024, time.January, 1), date(2024, time.February, 1),
		},
		{
			"ref in a later period",
			date(2024, time.January, 1), date(2024, time.April, 10),
			date(2024, time.April, 1), date(2024, time.May, 1),
		},
		{
			"ref exactly on a boundary starts the new period",
			date(2024, time.January, 1), date(2024, time.February, 1),
			date(2024, time.February, 1), date(2024, time.March, 1),
		},
		{
			"month-end anchor clamps to leap February",
			date(2024, time.January, 31), date(2024, time.March, 15),
			date(2024, time.February, 29), date(2024, time.March, 29),
		},
		{
			"month-end anchor clamps to short February",
			date(2023, time.January, 31), date(2023, time.February, 10),
			date(2023, time.January, 31), date(2023, time.February, 28),
		},
		{
			"ref before first period end",
			date(2024, time.June, 5), date(2024, time.June, 5),
			date(2024, time.June, 5), date(2024, time.July, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := subscription.BillingPeriod(tt.anchor, subscription.IntervalMonth, 1, tt.ref)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestBillingPeriodIntervals(t *testing.T) {
	anchor := date(2024, time.January, 1)

	tests := []struct {
		name      string
		iv        subscription.Interval
		count     int
		ref       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			"daily",
			subscription.IntervalDay, 1, date(2024, time.January, 3),
			date(2024, time.January, 3), date(2024, time.January, 4),
		},
		{
			"weekly",
			subscription.IntervalWeek, 1, date(2024, time.January, 10),
			date(2024, time.January, 8), date(2024, time.January, 15),
		},
		{
			"quarterly via interval count",
			subscription.IntervalMonth, 3, date(2024, time.May, 20),
			date(2024, time.April, 1), date(2024, time.July, 1),
		},
		{
			"yearly spans leap day",
			subscription.IntervalYear, 1, date(2024, time.June, 1),
			date(2024, time.January, 1), date(2025, time.January, 1),
		},
		{
			"zero count treated as one",
			subscription.IntervalMonth, 0, date(2024, time.January, 15),
			date(2024, time.January, 1), date(2024, time.February, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := subscription.BillingPeriod(anchor, tt.iv, tt.count, tt.ref)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestBillingPeriodYearlyLeapAnchor(t *testing.T) {
	// Feb 29 anchor clamps to Feb 28 in non-leap years.
	start, end := subscription.BillingPeriod(
		date(2024, time.February, 29), subscription.IntervalYear, 1, date(2025, time.June, 1))
	assert.Equal(t, date(2025, time.February, 28), start)
	assert.Equal(t, date(2026, time.February, 28), end)
}

func TestBillingPeriodContainsRef(t *testing.T) {
	// Whatever the interval, the derived period must contain ref: start <= ref < end.
	anchor := date(2023, time.March, 31)
	for _, iv := range []subscription.Interval{
		subscription.IntervalDay,
		subscription.IntervalWeek,
		subscription.IntervalMonth,
		subscription.IntervalYear,
	} {
		for days := 0; days < 800; days += 13 {
			ref := anchor.AddDate(0, 0, days)
			start, end := subscription.BillingPeriod(anchor, iv, 1, ref)
			assert.False(t, ref.Before(start), "%s: ref %v before start %v", iv, ref, start)
			assert.True(t, ref.Before(end), "%s: ref %v not before end %v", iv, ref, end)
			assert.True(t, start.Before(end), "%s: empty period", iv)
		}
	}
}

func TestIntervalValid(t *testing.T) {
	assert.True(t, subscription.IntervalMonth.Valid())
	assert.True(t, subscription.IntervalYear.Valid())
	assert.False(t, subscription.Interval("fortnight").Valid())
	assert.False(t, subscription.Interval("").Valid())
}

func TestSubscriptionHelpers(t *testing.T) {
	trialStart := date(2024, time.January, 1)
	trialEnd := date(2024, time.January, 15)
	s := &subscription.Subscription{
		Status:     subscription.StatusTrialing,
		TrialStart: &trialStart,
		TrialEnd:   &trialEnd,
	}

	assert.True(t, s.InTrial(date(2024, time.January, 10)))
	assert.False(t, s.InTrial(date(2024, time.January, 15)))
	assert.True(t, s.IsActive())

	s.Status = subscription.StatusCanceled
	assert.False(t, s.IsActive())
}
