package subscription

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Billing intervals
// ─────────────────────────────────────────────────────────────────────────────

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Valid reports whether iv is a known billing interval.
func (iv Interval) Valid() bool {
	switch iv {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// addTo advances t by count intervals. Month and year advances clamp the day
// of month instead of rolling into the next month, so an anchor on Jan 31
// yields Feb 29 in a leap year rather than Mar 2.
func (iv Interval) addTo(t time.Time, count int) time.Time {
	switch iv {
	case IntervalDay:
		return t.AddDate(0, 0, count)
	case IntervalWeek:
		return t.AddDate(0, 0, 7*count)
	case IntervalYear:
		return addMonthsClamped(t, 12*count)
	default: // month
		return addMonthsClamped(t, count)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) - 1 + months
	year += m / 12
	m %= 12
	if m < 0 {
		m += 12
		year--
	}
	target := time.Month(m + 1)

	if max := daysIn(year, target); day > max {
		day = max
	}
	hour, minute, sec := t.Clock()
	return time.Date(year, target, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ─────────────────────────────────────────────────────────────────────────────
// Period derivation
// ─────────────────────────────────────────────────────────────────────────────

// BillingPeriod returns the [start, end) billing period containing ref, rolled
// forward from the subscription anchor in steps of count intervals. A ref
// exactly on a period boundary starts the new period. A non-positive count is
// treated as 1.
func BillingPeriod(anchor time.Time, iv Interval, count int, ref time.Time) (start, end time.Time) {
	if count <= 0 {
		count = 1
	}

	start = anchor
	end = iv.addTo(start, count)
	for !end.After(ref) {
		start = end
		end = iv.addTo(start, count)
	}
	return start, end
}

// CurrentPeriod derives the subscription's billing period containing ref from
// its anchor and interval configuration.
func (s *Subscription) CurrentPeriod(ref time.Time) (start, end time.Time) {
	return BillingPeriod(s.AnchorAt, s.Interval, s.IntervalCount, ref)
}
