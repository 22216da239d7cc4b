package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/usage"
)

type Store struct {
	mu sync.RWMutex

	// Plan storage
	plans map[string]*plan.Plan

	// Meter definitions keyed by appID + meter key
	meters map[string]*meter.Meter

	// Subscription storage
	subscriptions map[string]*subscription.Subscription

	// Usage events storage
	usageEvents []meter.UsageEvent
	seenKeys    map[string]struct{}

	// Usage summaries
	summaries map[string]*usage.Summary

	// Entitlement cache
	entitlementCache map[string]*entitlement.Result
	cacheExpiry      map[string]time.Time

	// Invoice storage
	invoices map[string]*invoice.Invoice
}

func New() *Store {
	return &Store{
		plans:            make(map[string]*plan.Plan),
		meters:           make(map[string]*meter.Meter),
		subscriptions:    make(map[string]*subscription.Subscription),
		usageEvents:      make([]meter.UsageEvent, 0),
		seenKeys:         make(map[string]struct{}),
		summaries:        make(map[string]*usage.Summary),
		entitlementCache: make(map[string]*entitlement.Result),
		cacheExpiry:      make(map[string]time.Time),
		invoices:         make(map[string]*invoice.Invoice),
	}
}

// Plan Store implementation
func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	s.plans[p.ID.String()] = p
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		return p, nil
	}
	return nil, tally.ErrPlanNotFound
}

func (s *Store) GetPlanBySlug(_ context.Context, slug, appID string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.Slug == slug && p.AppID == appID {
			return p, nil
		}
	}
	return nil, tally.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, appID string, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0)
	for _, p := range s.plans {
		if p.AppID == appID {
			if opts.Status == "" || p.Status == opts.Status {
				result = append(result, p)
			}
		}
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) UpdatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; !exists {
		return tally.ErrPlanNotFound
	}
	s.plans[p.ID.String()] = p
	return nil
}

func (s *Store) DeletePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.plans, planID.String())
	return nil
}

func (s *Store) ArchivePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, exists := s.plans[planID.String()]; exists {
		p.Status = plan.StatusArchived
		return nil
	}
	return tally.ErrPlanNotFound
}

// Meter Store implementation
func meterKey(appID, key string) string {
	return appID + ":" + key
}

func (s *Store) CreateMeter(_ context.Context, m *meter.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meters[meterKey(m.AppID, m.Key)]; exists {
		return tally.ErrDuplicateMeter
	}
	s.meters[meterKey(m.AppID, m.Key)] = m
	return nil
}

func (s *Store) GetMeter(_ context.Context, key, appID string) (*meter.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.meters[meterKey(appID, key)]; ok {
		return m, nil
	}
	return nil, tally.ErrMeterNotFound
}

func (s *Store) ListMeters(_ context.Context, appID string) ([]*meter.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*meter.Meter, 0)
	for _, m := range s.meters {
		if m.AppID == appID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) UpdateMeter(_ context.Context, m *meter.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meters[meterKey(m.AppID, m.Key)]; !exists {
		return tally.ErrMeterNotFound
	}
	s.meters[meterKey(m.AppID, m.Key)] = m
	return nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub, nil
	}
	return nil, tally.ErrSubscriptionNotFound
}

func (s *Store) GetActiveSubscription(_ context.Context, customerID, appID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.CustomerID == customerID && sub.AppID == appID && sub.IsActive() {
			return sub, nil
		}
	}
	return nil, tally.ErrNoActiveSubscription
}

func (s *Store) ListSubscriptions(_ context.Context, customerID, appID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.CustomerID == customerID && sub.AppID == appID {
			if opts.Status == "" || sub.Status == opts.Status {
				result = append(result, sub)
			}
		}
	}
	return result, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, cancelAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, exists := s.subscriptions[subID.String()]; exists {
		sub.CancelAt = &cancelAt
		if !cancelAt.After(now) {
			sub.Status = subscription.StatusCanceled
			sub.CanceledAt = &now
		}
		return nil
	}
	return tally.ErrSubscriptionNotFound
}

// Usage event Store implementation
func (s *Store) IngestBatch(_ context.Context, events []*meter.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		// Events carrying an idempotency key are ingested at most once.
		if e.IdempotencyKey != "" {
			if _, seen := s.seenKeys[e.IdempotencyKey]; seen {
				continue
			}
			s.seenKeys[e.IdempotencyKey] = struct{}{}
		}
		s.usageEvents = append(s.usageEvents, *e)
	}
	return nil
}

func (s *Store) Aggregate(_ context.Context, customerID, appID, meterKey string, start, end time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, event := range s.usageEvents {
		if event.CustomerID == customerID &&
			event.AppID == appID &&
			event.MeterKey == meterKey &&
			inWindow(event.Timestamp, start, end) {
			total += event.Quantity
		}
	}

	return total, nil
}

func (s *Store) AggregateMulti(ctx context.Context, customerID, appID string, meterKeys []string, start, end time.Time) (map[string]float64, error) {
	result := make(map[string]float64)
	for _, key := range meterKeys {
		total, err := s.Aggregate(ctx, customerID, appID, key, start, end)
		if err != nil {
			return nil, err
		}
		result[key] = total
	}
	return result, nil
}

func (s *Store) QueryUsage(_ context.Context, customerID, appID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*meter.UsageEvent, 0)
	for i := range s.usageEvents {
		e := &s.usageEvents[i]
		if e.CustomerID == customerID && e.AppID == appID {
			if opts.MeterKey == "" || e.MeterKey == opts.MeterKey {
				if inWindow(e.Timestamp, opts.Start, opts.End) {
					matched = append(matched, e)
				}
			}
		}
	}

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *Store) PurgeUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	newEvents := make([]meter.UsageEvent, 0)
	for _, e := range s.usageEvents {
		if e.Timestamp.Before(before) {
			count++
		} else {
			newEvents = append(newEvents, e)
		}
	}
	s.usageEvents = newEvents
	return count, nil
}

// Usage summary Store implementation
func (s *Store) SaveSummary(_ context.Context, sum *usage.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[sum.ID.String()] = sum
	return nil
}

func (s *Store) ListSummaries(_ context.Context, customerID, appID string, periodStart, periodEnd time.Time) ([]*usage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*usage.Summary, 0)
	for _, sum := range s.summaries {
		if sum.CustomerID == customerID && sum.AppID == appID &&
			sum.PeriodStart.Equal(periodStart) && sum.PeriodEnd.Equal(periodEnd) {
			result = append(result, sum)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MeterKey < result[j].MeterKey })
	return result, nil
}

// Entitlement Store implementation
func (s *Store) GetCached(_ context.Context, customerID, appID, featureKey string) (*entitlement.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := fmt.Sprintf("%s:%s:%s", customerID, appID, featureKey)
	if expiry, ok := s.cacheExpiry[key]; ok {
		if time.Now().Before(expiry) {
			if result, ok := s.entitlementCache[key]; ok {
				return result, nil
			}
		}
	}
	return nil, nil
}

func (s *Store) SetCached(_ context.Context, customerID, appID, featureKey string, result *entitlement.Result, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s:%s:%s", customerID, appID, featureKey)
	s.entitlementCache[key] = result
	s.cacheExpiry[key] = time.Now().Add(ttl)
	return nil
}

func (s *Store) Invalidate(_ context.Context, customerID, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := fmt.Sprintf("%s:%s:", customerID, appID)
	for key := range s.entitlementCache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.entitlementCache, key)
			delete(s.cacheExpiry, key)
		}
	}
	return nil
}

func (s *Store) InvalidateFeature(_ context.Context, customerID, appID, featureKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s:%s:%s", customerID, appID, featureKey)
	delete(s.entitlementCache, key)
	delete(s.cacheExpiry, key)
	return nil
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices[inv.ID.String()] = inv
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv, nil
	}
	return nil, tally.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, customerID, appID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.CustomerID == customerID && inv.AppID == appID {
			if opts.Status == "" || inv.Status == opts.Status {
				result = append(result, inv)
			}
		}
	}
	return result, nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices[inv.ID.String()] = inv
	return nil
}

func (s *Store) GetInvoiceByPeriod(_ context.Context, customerID, appID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.CustomerID == customerID && inv.AppID == appID &&
			inv.PeriodStart.Equal(periodStart) && inv.PeriodEnd.Equal(periodEnd) {
			return inv, nil
		}
	}
	return nil, tally.ErrInvoiceNotFound
}

func (s *Store) ListPendingInvoices(_ context.Context, appID string) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.AppID == appID && inv.Status == invoice.StatusPending {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		inv.Status = invoice.StatusPaid
		inv.PaidAt = &paidAt
		inv.PaymentRef = paymentRef
		return nil
	}
	return tally.ErrInvoiceNotFound
}

func (s *Store) MarkInvoiceVoided(_ context.Context, invID id.InvoiceID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		inv.Status = invoice.StatusVoided
		now := time.Now()
		inv.VoidedAt = &now
		inv.VoidReason = reason
		return nil
	}
	return tally.ErrInvoiceNotFound
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// inWindow reports whether ts falls in the half-open window [start, end).
// Zero bounds leave that side open.
func inWindow(ts, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && !ts.Before(end) {
		return false
	}
	return true
}
