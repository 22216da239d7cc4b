package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

// Nested structures (features, prices, meters, line items, breakdowns) are
// stored as JSONB rather than normalized tables; they are read and written
// whole with their parent.

// ==================== Plan rows ====================

type planRow struct {
	ID            string
	Name          string
	Slug          string
	Description   string
	Currency      string
	Status        string
	TrialDays     int
	BaseAmount    int64
	Interval      string
	IntervalCount int
	Features      []byte
	Meters        []byte
	Prices        []byte
	AppID         string
	Metadata      []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func toPlanRow(p *plan.Plan) (*planRow, error) {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return nil, err
	}
	meters, err := json.Marshal(p.Meters)
	if err != nil {
		return nil, err
	}
	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return nil, err
	}
	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}

	return &planRow{
		ID:            p.ID.String(),
		Name:          p.Name,
		Slug:          p.Slug,
		Description:   p.Description,
		Currency:      p.Currency,
		Status:        string(p.Status),
		TrialDays:     p.TrialDays,
		BaseAmount:    p.BaseAmount.Amount,
		Interval:      string(p.Interval),
		IntervalCount: p.IntervalCount,
		Features:      features,
		Meters:        meters,
		Prices:        prices,
		AppID:         p.AppID,
		Metadata:      metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func fromPlanRow(r *planRow) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(r.ID)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{
		ID:            planID,
		Name:          r.Name,
		Slug:          r.Slug,
		Description:   r.Description,
		Currency:      r.Currency,
		Status:        plan.Status(r.Status),
		TrialDays:     r.TrialDays,
		BaseAmount:    types.New(r.BaseAmount, r.Currency),
		Interval:      subscription.Interval(r.Interval),
		IntervalCount: r.IntervalCount,
		AppID:         r.AppID,
	}
	p.CreatedAt = r.CreatedAt
	p.UpdatedAt = r.UpdatedAt

	if len(r.Features) > 0 {
		if err := json.Unmarshal(r.Features, &p.Features); err != nil {
			return nil, err
		}
	}
	if len(r.Meters) > 0 {
		if err := json.Unmarshal(r.Meters, &p.Meters); err != nil {
			return nil, err
		}
	}
	if len(r.Prices) > 0 {
		if err := json.Unmarshal(r.Prices, &p.Prices); err != nil {
			return nil, err
		}
	}
	if err := unmarshalMetadata(r.Metadata, &p.Metadata); err != nil {
		return nil, err
	}
	return p, nil
}

// ==================== Meter rows ====================

func fromMeterRow(mID, key, name, unit, aggregation string, active bool, appID string, metadata []byte, createdAt, updatedAt time.Time) (*meter.Meter, error) {
	meterID, err := id.ParseMeterID(mID)
	if err != nil {
		return nil, err
	}
	m := &meter.Meter{
		ID:          meterID,
		Key:         key,
		Name:        name,
		Unit:        unit,
		Aggregation: meter.Aggregation(aggregation),
		Active:      active,
		AppID:       appID,
	}
	m.CreatedAt = createdAt
	m.UpdatedAt = updatedAt
	if err := unmarshalMetadata(metadata, &m.Metadata); err != nil {
		return nil, err
	}
	return m, nil
}

// ==================== Subscription rows ====================

type subscriptionRow struct {
	ID                 string
	CustomerID         string
	PlanID             string
	Status             string
	Interval           string
	IntervalCount      int
	AnchorAt           time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStart         sql.NullTime
	TrialEnd           sql.NullTime
	CanceledAt         sql.NullTime
	CancelAt           sql.NullTime
	EndedAt            sql.NullTime
	AppID              string
	Metadata           []byte
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func toSubscriptionRow(s *subscription.Subscription) (*subscriptionRow, error) {
	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return nil, err
	}
	return &subscriptionRow{
		ID:                 s.ID.String(),
		CustomerID:         s.CustomerID,
		PlanID:             s.PlanID.String(),
		Status:             string(s.Status),
		Interval:           string(s.Interval),
		IntervalCount:      s.IntervalCount,
		AnchorAt:           s.AnchorAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialStart:         nullTime(s.TrialStart),
		TrialEnd:           nullTime(s.TrialEnd),
		CanceledAt:         nullTime(s.CanceledAt),
		CancelAt:           nullTime(s.CancelAt),
		EndedAt:            nullTime(s.EndedAt),
		AppID:              s.AppID,
		Metadata:           metadata,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}, nil
}

func fromSubscriptionRow(r *subscriptionRow) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(r.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(r.PlanID)
	if err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		ID:                 subID,
		CustomerID:         r.CustomerID,
		PlanID:             planID,
		Status:             subscription.Status(r.Status),
		Interval:           subscription.Interval(r.Interval),
		IntervalCount:      r.IntervalCount,
		AnchorAt:           r.AnchorAt,
		CurrentPeriodStart: r.CurrentPeriodStart,
		CurrentPeriodEnd:   r.CurrentPeriodEnd,
		TrialStart:         timePtr(r.TrialStart),
		TrialEnd:           timePtr(r.TrialEnd),
		CanceledAt:         timePtr(r.CanceledAt),
		CancelAt:           timePtr(r.CancelAt),
		EndedAt:            timePtr(r.EndedAt),
		AppID:              r.AppID,
	}
	s.CreatedAt = r.CreatedAt
	s.UpdatedAt = r.UpdatedAt
	if err := unmarshalMetadata(r.Metadata, &s.Metadata); err != nil {
		return nil, err
	}
	return s, nil
}

// ==================== Usage event rows ====================

func fromEventRow(eID, customerID, subID, appID, meterKey string, quantity float64, ts time.Time, idemKey sql.NullString, properties []byte) (*meter.UsageEvent, error) {
	eventID, err := id.ParseUsageEventID(eID)
	if err != nil {
		return nil, err
	}
	e := &meter.UsageEvent{
		ID:         eventID,
		CustomerID: customerID,
		AppID:      appID,
		MeterKey:   meterKey,
		Quantity:   quantity,
		Timestamp:  ts,
	}
	if subID != "" {
		if parsed, err := id.ParseSubscriptionID(subID); err == nil {
			e.SubscriptionID = parsed
		}
	}
	if idemKey.Valid {
		e.IdempotencyKey = idemKey.String
	}
	if err := unmarshalMetadata(properties, &e.Properties); err != nil {
		return nil, err
	}
	return e, nil
}

// ==================== Usage summary rows ====================

type summaryRow struct {
	ID              string
	CustomerID      string
	SubscriptionID  string
	AppID           string
	MeterKey        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	AggregatedValue float64
	EventCount      int
	Amount          int64
	Currency        string
	Breakdown       []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func toSummaryRow(s *usage.Summary) (*summaryRow, error) {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return nil, err
	}
	return &summaryRow{
		ID:              s.ID.String(),
		CustomerID:      s.CustomerID,
		SubscriptionID:  s.SubscriptionID.String(),
		AppID:           s.AppID,
		MeterKey:        s.MeterKey,
		PeriodStart:     s.PeriodStart,
		PeriodEnd:       s.PeriodEnd,
		AggregatedValue: s.AggregatedValue,
		EventCount:      s.EventCount,
		Amount:          s.Amount.Amount,
		Currency:        s.Amount.Currency,
		Breakdown:       breakdown,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}, nil
}

func fromSummaryRow(r *summaryRow) (*usage.Summary, error) {
	summaryID, err := id.ParseUsageSummaryID(r.ID)
	if err != nil {
		return nil, err
	}

	s := &usage.Summary{
		ID:              summaryID,
		CustomerID:      r.CustomerID,
		AppID:           r.AppID,
		MeterKey:        r.MeterKey,
		PeriodStart:     r.PeriodStart,
		PeriodEnd:       r.PeriodEnd,
		AggregatedValue: r.AggregatedValue,
		EventCount:      r.EventCount,
		Amount:          types.New(r.Amount, r.Currency),
	}
	s.CreatedAt = r.CreatedAt
	s.UpdatedAt = r.UpdatedAt
	if r.SubscriptionID != "" {
		if parsed, err := id.ParseSubscriptionID(r.SubscriptionID); err == nil {
			s.SubscriptionID = parsed
		}
	}
	if len(r.Breakdown) > 0 {
		var breakdown []pricing.TierBreakdown
		if err := json.Unmarshal(r.Breakdown, &breakdown); err != nil {
			return nil, err
		}
		if len(breakdown) > 0 {
			s.Breakdown = breakdown
		}
	}
	return s, nil
}

// ==================== Invoice rows ====================

type invoiceRow struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Status         string
	Currency       string
	Subtotal       int64
	TaxAmount      int64
	DiscountAmount int64
	Total          int64
	LineItems      []byte
	PeriodStart    time.Time
	PeriodEnd      time.Time
	DueDate        sql.NullTime
	PaidAt         sql.NullTime
	VoidedAt       sql.NullTime
	VoidReason     string
	PaymentRef     string
	AppID          string
	Metadata       []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func toInvoiceRow(inv *invoice.Invoice) (*invoiceRow, error) {
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return nil, err
	}
	metadata, err := marshalMetadata(inv.Metadata)
	if err != nil {
		return nil, err
	}
	return &invoiceRow{
		ID:             inv.ID.String(),
		CustomerID:     inv.CustomerID,
		SubscriptionID: inv.SubscriptionID.String(),
		Status:         string(inv.Status),
		Currency:       inv.Currency,
		Subtotal:       inv.Subtotal.Amount,
		TaxAmount:      inv.TaxAmount.Amount,
		DiscountAmount: inv.DiscountAmount.Amount,
		Total:          inv.Total.Amount,
		LineItems:      lineItems,
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		DueDate:        nullTime(inv.DueDate),
		PaidAt:         nullTime(inv.PaidAt),
		VoidedAt:       nullTime(inv.VoidedAt),
		VoidReason:     inv.VoidReason,
		PaymentRef:     inv.PaymentRef,
		AppID:          inv.AppID,
		Metadata:       metadata,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}, nil
}

func fromInvoiceRow(r *invoiceRow) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(r.ID)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		ID:             invID,
		CustomerID:     r.CustomerID,
		Status:         invoice.Status(r.Status),
		Currency:       r.Currency,
		Subtotal:       types.New(r.Subtotal, r.Currency),
		TaxAmount:      types.New(r.TaxAmount, r.Currency),
		DiscountAmount: types.New(r.DiscountAmount, r.Currency),
		Total:          types.New(r.Total, r.Currency),
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		DueDate:        timePtr(r.DueDate),
		PaidAt:         timePtr(r.PaidAt),
		VoidedAt:       timePtr(r.VoidedAt),
		VoidReason:     r.VoidReason,
		PaymentRef:     r.PaymentRef,
		AppID:          r.AppID,
	}
	inv.CreatedAt = r.CreatedAt
	inv.UpdatedAt = r.UpdatedAt
	if r.SubscriptionID != "" {
		if parsed, err := id.ParseSubscriptionID(r.SubscriptionID); err == nil {
			inv.SubscriptionID = parsed
		}
	}
	if len(r.LineItems) > 0 {
		if err := json.Unmarshal(r.LineItems, &inv.LineItems); err != nil {
			return nil, err
		}
	}
	if err := unmarshalMetadata(r.Metadata, &inv.Metadata); err != nil {
		return nil, err
	}
	return inv, nil
}

// ==================== Entitlement cache rows ====================

func marshalCachedResult(result *entitlement.Result) ([]byte, error) {
	return json.Marshal(result)
}

func unmarshalCachedResult(data []byte) (*entitlement.Result, error) {
	var result entitlement.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ==================== Helpers ====================

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(data []byte, dst *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) > 0 {
		*dst = m
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
