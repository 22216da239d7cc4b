package mongo

import (
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

// Prices embed the Model sum type, which BSON cannot decode into an
// interface, so they travel as a JSON blob inside the document. Everything
// else is plain BSON.

// ==================== Plan documents ====================

type planDoc struct {
	ID            string            `bson:"_id"`
	Name          string            `bson:"name"`
	Slug          string            `bson:"slug"`
	Description   string            `bson:"description"`
	Currency      string            `bson:"currency"`
	Status        string            `bson:"status"`
	TrialDays     int               `bson:"trial_days"`
	BaseAmount    int64             `bson:"base_amount"`
	Interval      string            `bson:"interval"`
	IntervalCount int               `bson:"interval_count"`
	Features      []featureDoc      `bson:"features,omitempty"`
	Meters        []meterDoc        `bson:"meters,omitempty"`
	PricesJSON    []byte            `bson:"prices_json,omitempty"`
	AppID         string            `bson:"app_id"`
	Metadata      map[string]string `bson:"metadata,omitempty"`
	CreatedAt     time.Time         `bson:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at"`
}

type featureDoc struct {
	ID        string            `bson:"id"`
	Key       string            `bson:"key"`
	Name      string            `bson:"name"`
	Type      string            `bson:"type"`
	Limit     int64             `bson:"limit"`
	Period    string            `bson:"period"`
	SoftLimit bool              `bson:"soft_limit"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

func toPlanDoc(p *plan.Plan) (*planDoc, error) {
	var pricesJSON []byte
	if len(p.Prices) > 0 {
		var err error
		pricesJSON, err = json.Marshal(p.Prices)
		if err != nil {
			return nil, err
		}
	}

	features := make([]featureDoc, 0, len(p.Features))
	for _, f := range p.Features {
		features = append(features, featureDoc{
			ID:        f.ID.String(),
			Key:       f.Key,
			Name:      f.Name,
			Type:      string(f.Type),
			Limit:     f.Limit,
			Period:    string(f.Period),
			SoftLimit: f.SoftLimit,
			Metadata:  f.Metadata,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		})
	}

	meters := make([]meterDoc, 0, len(p.Meters))
	for i := range p.Meters {
		meters = append(meters, *toMeterDoc(&p.Meters[i]))
	}

	return &planDoc{
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
		PricesJSON:    pricesJSON,
		AppID:         p.AppID,
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func fromPlanDoc(d *planDoc) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(d.ID)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{
		ID:            planID,
		Name:          d.Name,
		Slug:          d.Slug,
		Description:   d.Description,
		Currency:      d.Currency,
		Status:        plan.Status(d.Status),
		TrialDays:     d.TrialDays,
		BaseAmount:    types.New(d.BaseAmount, d.Currency),
		Interval:      subscription.Interval(d.Interval),
		IntervalCount: d.IntervalCount,
		AppID:         d.AppID,
		Metadata:      d.Metadata,
	}
	p.CreatedAt = d.CreatedAt
	p.UpdatedAt = d.UpdatedAt

	for _, f := range d.Features {
		feature := plan.Feature{
			Key:       f.Key,
			Name:      f.Name,
			Type:      plan.FeatureType(f.Type),
			Limit:     f.Limit,
			Period:    plan.Period(f.Period),
			SoftLimit: f.SoftLimit,
			Metadata:  f.Metadata,
		}
		if parsed, err := id.ParseFeatureID(f.ID); err == nil {
			feature.ID = parsed
		}
		feature.CreatedAt = f.CreatedAt
		feature.UpdatedAt = f.UpdatedAt
		p.Features = append(p.Features, feature)
	}

	for i := range d.Meters {
		m, err := fromMeterDoc(&d.Meters[i])
		if err != nil {
			return nil, err
		}
		p.Meters = append(p.Meters, *m)
	}

	if len(d.PricesJSON) > 0 {
		if err := json.Unmarshal(d.PricesJSON, &p.Prices); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ==================== Meter documents ====================

type meterDoc struct {
	ID          string            `bson:"_id"`
	Key         string            `bson:"key"`
	Name        string            `bson:"name"`
	Unit        string            `bson:"unit"`
	Aggregation string            `bson:"aggregation"`
	Active      bool              `bson:"active"`
	AppID       string            `bson:"app_id"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toMeterDoc(m *meter.Meter) *meterDoc {
	return &meterDoc{
		ID:          m.ID.String(),
		Key:         m.Key,
		Name:        m.Name,
		Unit:        m.Unit,
		Aggregation: string(m.Aggregation),
		Active:      m.Active,
		AppID:       m.AppID,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromMeterDoc(d *meterDoc) (*meter.Meter, error) {
	meterID, err := id.ParseMeterID(d.ID)
	if err != nil {
		return nil, err
	}
	m := &meter.Meter{
		ID:          meterID,
		Key:         d.Key,
		Name:        d.Name,
		Unit:        d.Unit,
		Aggregation: meter.Aggregation(d.Aggregation),
		Active:      d.Active,
		AppID:       d.AppID,
		Metadata:    d.Metadata,
	}
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt
	return m, nil
}

// ==================== Subscription documents ====================

type subscriptionDoc struct {
	ID                 string            `bson:"_id"`
	CustomerID         string            `bson:"customer_id"`
	PlanID             string            `bson:"plan_id"`
	Status             string            `bson:"status"`
	Interval           string            `bson:"interval"`
	IntervalCount      int               `bson:"interval_count"`
	AnchorAt           time.Time         `bson:"anchor_at"`
	CurrentPeriodStart time.Time         `bson:"current_period_start"`
	CurrentPeriodEnd   time.Time         `bson:"current_period_end"`
	TrialStart         *time.Time        `bson:"trial_start,omitempty"`
	TrialEnd           *time.Time        `bson:"trial_end,omitempty"`
	CanceledAt         *time.Time        `bson:"canceled_at,omitempty"`
	CancelAt           *time.Time        `bson:"cancel_at,omitempty"`
	EndedAt            *time.Time        `bson:"ended_at,omitempty"`
	AppID              string            `bson:"app_id"`
	Metadata           map[string]string `bson:"metadata,omitempty"`
	CreatedAt          time.Time         `bson:"created_at"`
	UpdatedAt          time.Time         `bson:"updated_at"`
}

func toSubscriptionDoc(s *subscription.Subscription) *subscriptionDoc {
	return &subscriptionDoc{
		ID:                 s.ID.String(),
		CustomerID:         s.CustomerID,
		PlanID:             s.PlanID.String(),
		Status:             string(s.Status),
		Interval:           string(s.Interval),
		IntervalCount:      s.IntervalCount,
		AnchorAt:           s.AnchorAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialStart:         s.TrialStart,
		TrialEnd:           s.TrialEnd,
		CanceledAt:         s.CanceledAt,
		CancelAt:           s.CancelAt,
		EndedAt:            s.EndedAt,
		AppID:              s.AppID,
		Metadata:           s.Metadata,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func fromSubscriptionDoc(d *subscriptionDoc) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(d.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(d.PlanID)
	if err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		ID:                 subID,
		CustomerID:         d.CustomerID,
		PlanID:             planID,
		Status:             subscription.Status(d.Status),
		Interval:           subscription.Interval(d.Interval),
		IntervalCount:      d.IntervalCount,
		AnchorAt:           d.AnchorAt,
		CurrentPeriodStart: d.CurrentPeriodStart,
		CurrentPeriodEnd:   d.CurrentPeriodEnd,
		TrialStart:         d.TrialStart,
		TrialEnd:           d.TrialEnd,
		CanceledAt:         d.CanceledAt,
		CancelAt:           d.CancelAt,
		EndedAt:            d.EndedAt,
		AppID:              d.AppID,
		Metadata:           d.Metadata,
	}
	s.CreatedAt = d.CreatedAt
	s.UpdatedAt = d.UpdatedAt
	return s, nil
}

// ==================== Usage event documents ====================

type usageEventDoc struct {
	ID             string            `bson:"_id"`
	CustomerID     string            `bson:"customer_id"`
	SubscriptionID string            `bson:"subscription_id,omitempty"`
	AppID          string            `bson:"app_id"`
	MeterKey       string            `bson:"meter_key"`
	Quantity       float64           `bson:"quantity"`
	Timestamp      time.Time         `bson:"ts"`
	IdempotencyKey string            `bson:"idempotency_key,omitempty"`
	Properties     map[string]string `bson:"properties,omitempty"`
}

func toUsageEventDoc(e *meter.UsageEvent) *usageEventDoc {
	d := &usageEventDoc{
		ID:             e.ID.String(),
		CustomerID:     e.CustomerID,
		AppID:          e.AppID,
		MeterKey:       e.MeterKey,
		Quantity:       e.Quantity,
		Timestamp:      e.Timestamp,
		IdempotencyKey: e.IdempotencyKey,
		Properties:     e.Properties,
	}
	if !e.SubscriptionID.IsNil() {
		d.SubscriptionID = e.SubscriptionID.String()
	}
	return d
}

func fromUsageEventDoc(d *usageEventDoc) (*meter.UsageEvent, error) {
	eventID, err := id.ParseUsageEventID(d.ID)
	if err != nil {
		return nil, err
	}
	e := &meter.UsageEvent{
		ID:             eventID,
		CustomerID:     d.CustomerID,
		AppID:          d.AppID,
		MeterKey:       d.MeterKey,
		Quantity:       d.Quantity,
		Timestamp:      d.Timestamp,
		IdempotencyKey: d.IdempotencyKey,
		Properties:     d.Properties,
	}
	if d.SubscriptionID != "" {
		if parsed, err := id.ParseSubscriptionID(d.SubscriptionID); err == nil {
			e.SubscriptionID = parsed
		}
	}
	return e, nil
}

// ==================== Usage summary documents ====================

type summaryDoc struct {
	ID              string    `bson:"_id"`
	CustomerID      string    `bson:"customer_id"`
	SubscriptionID  string    `bson:"subscription_id,omitempty"`
	AppID           string    `bson:"app_id"`
	MeterKey        string    `bson:"meter_key"`
	PeriodStart     time.Time `bson:"period_start"`
	PeriodEnd       time.Time `bson:"period_end"`
	AggregatedValue float64   `bson:"aggregated_value"`
	EventCount      int       `bson:"event_count"`
	Amount          int64     `bson:"amount"`
	Currency        string    `bson:"currency"`
	BreakdownJSON   []byte    `bson:"breakdown_json,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toSummaryDoc(s *usage.Summary) (*summaryDoc, error) {
	var breakdownJSON []byte
	if len(s.Breakdown) > 0 {
		var err error
		breakdownJSON, err = json.Marshal(s.Breakdown)
		if err != nil {
			return nil, err
		}
	}

	d := &summaryDoc{
		ID:              s.ID.String(),
		CustomerID:      s.CustomerID,
		AppID:           s.AppID,
		MeterKey:        s.MeterKey,
		PeriodStart:     s.PeriodStart,
		PeriodEnd:       s.PeriodEnd,
		AggregatedValue: s.AggregatedValue,
		EventCount:      s.EventCount,
		Amount:          s.Amount.Amount,
		Currency:        s.Amount.Currency,
		BreakdownJSON:   breakdownJSON,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if !s.SubscriptionID.IsNil() {
		d.SubscriptionID = s.SubscriptionID.String()
	}
	return d, nil
}

func fromSummaryDoc(d *summaryDoc) (*usage.Summary, error) {
	summaryID, err := id.ParseUsageSummaryID(d.ID)
	if err != nil {
		return nil, err
	}

	s := &usage.Summary{
		ID:              summaryID,
		CustomerID:      d.CustomerID,
		AppID:           d.AppID,
		MeterKey:        d.MeterKey,
		PeriodStart:     d.PeriodStart,
		PeriodEnd:       d.PeriodEnd,
		AggregatedValue: d.AggregatedValue,
		EventCount:      d.EventCount,
		Amount:          types.New(d.Amount, d.Currency),
	}
	s.CreatedAt = d.CreatedAt
	s.UpdatedAt = d.UpdatedAt
	if d.SubscriptionID != "" {
		if parsed, err := id.ParseSubscriptionID(d.SubscriptionID); err == nil {
			s.SubscriptionID = parsed
		}
	}
	if len(d.BreakdownJSON) > 0 {
		var breakdown []pricing.TierBreakdown
		if err := json.Unmarshal(d.BreakdownJSON, &breakdown); err != nil {
			return nil, err
		}
		s.Breakdown = breakdown
	}
	return s, nil
}

// ==================== Entitlement cache documents ====================

type cacheDoc struct {
	Key       string              `bson:"_id"`
	Result    *entitlement.Result `bson:"result"`
	ExpiresAt time.Time           `bson:"expires_at"`
}

// ==================== Invoice documents ====================

type invoiceDoc struct {
	ID             string            `bson:"_id"`
	CustomerID     string            `bson:"customer_id"`
	SubscriptionID string            `bson:"subscription_id,omitempty"`
	Status         string            `bson:"status"`
	Currency       string            `bson:"currency"`
	Subtotal       int64             `bson:"subtotal"`
	TaxAmount      int64             `bson:"tax_amount"`
	DiscountAmount int64             `bson:"discount_amount"`
	Total          int64             `bson:"total"`
	LineItemsJSON  []byte            `bson:"line_items_json,omitempty"`
	PeriodStart    time.Time         `bson:"period_start"`
	PeriodEnd      time.Time         `bson:"period_end"`
	DueDate        *time.Time        `bson:"due_date,omitempty"`
	PaidAt         *time.Time        `bson:"paid_at,omitempty"`
	VoidedAt       *time.Time        `bson:"voided_at,omitempty"`
	VoidReason     string            `bson:"void_reason,omitempty"`
	PaymentRef     string            `bson:"payment_ref,omitempty"`
	AppID          string            `bson:"app_id"`
	Metadata       map[string]string `bson:"metadata,omitempty"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
}

func toInvoiceDoc(inv *invoice.Invoice) (*invoiceDoc, error) {
	var lineItemsJSON []byte
	if len(inv.LineItems) > 0 {
		var err error
		lineItemsJSON, err = json.Marshal(inv.LineItems)
		if err != nil {
			return nil, err
		}
	}

	d := &invoiceDoc{
		ID:             inv.ID.String(),
		CustomerID:     inv.CustomerID,
		Status:         string(inv.Status),
		Currency:       inv.Currency,
		Subtotal:       inv.Subtotal.Amount,
		TaxAmount:      inv.TaxAmount.Amount,
		DiscountAmount: inv.DiscountAmount.Amount,
		Total:          inv.Total.Amount,
		LineItemsJSON:  lineItemsJSON,
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		DueDate:        inv.DueDate,
		PaidAt:         inv.PaidAt,
		VoidedAt:       inv.VoidedAt,
		VoidReason:     inv.VoidReason,
		PaymentRef:     inv.PaymentRef,
		AppID:          inv.AppID,
		Metadata:       inv.Metadata,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if !inv.SubscriptionID.IsNil() {
		d.SubscriptionID = inv.SubscriptionID.String()
	}
	return d, nil
}

func fromInvoiceDoc(d *invoiceDoc) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(d.ID)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		ID:             invID,
		CustomerID:     d.CustomerID,
		Status:         invoice.Status(d.Status),
		Currency:       d.Currency,
		Subtotal:       types.New(d.Subtotal, d.Currency),
		TaxAmount:      types.New(d.TaxAmount, d.Currency),
		DiscountAmount: types.New(d.DiscountAmount, d.Currency),
		Total:          types.New(d.Total, d.Currency),
		PeriodStart:    d.PeriodStart,
		PeriodEnd:      d.PeriodEnd,
		DueDate:        d.DueDate,
		PaidAt:         d.PaidAt,
		VoidedAt:       d.VoidedAt,
		VoidReason:     d.VoidReason,
		PaymentRef:     d.PaymentRef,
		AppID:          d.AppID,
		Metadata:       d.Metadata,
	}
	inv.CreatedAt = d.CreatedAt
	inv.UpdatedAt = d.UpdatedAt
	if d.SubscriptionID != "" {
		if parsed, err := id.ParseSubscriptionID(d.SubscriptionID); err == nil {
			inv.SubscriptionID = parsed
		}
	}
	if len(d.LineItemsJSON) > 0 {
		if err := json.Unmarshal(d.LineItemsJSON, &inv.LineItems); err != nil {
			return nil, err
		}
	}
	return inv, nil
}
