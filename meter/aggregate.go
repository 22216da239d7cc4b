package meter

// AggregateEvents reduces raw usage events to a single quantity using the
// meter's aggregation strategy. An empty event list aggregates to 0 for
// every strategy. An unknown strategy falls back to sum.
//
// For the "last" strategy, ties on equal timestamps are broken by insertion
// order: the later event in the slice wins.
func AggregateEvents(events []*UsageEvent, m *Meter) float64 {
	if len(events) == 0 {
		return 0
	}

	agg := AggregationSum
	if m != nil && m.Aggregation != "" {
		agg = m.Aggregation
	}

	switch agg {
	case AggregationMax:
		result := events[0].Quantity
		for _, e := range events[1:] {
			if e.Quantity > result {
				result = e.Quantity
			}
		}
		return result

	case AggregationLast:
		latest := events[0]
		for _, e := range events[1:] {
			// Not-before keeps the later-inserted event on timestamp ties.
			if !e.Timestamp.Before(latest.Timestamp) {
				latest = e
			}
		}
		return latest.Quantity

	case AggregationCount:
		return float64(len(events))

	default: // AggregationSum and unknown strategies
		var total float64
		for _, e := range events {
			total += e.Quantity
		}
		return total
	}
}
