package tally

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

// Tally is the main billing engine.
type Tally struct {
	store    store.Store
	entCache entitlement.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	clock    func() time.Time

	// Background workers
	meterBuffer chan *meter.UsageEvent
	stopChan    chan struct{}
	wg          sync.WaitGroup

	// Configuration
	meterBatchSize      int
	meterFlushInterval  time.Duration
	entitlementCacheTTL time.Duration
}

// New creates a new Tally instance. The store doubles as the entitlement
// cache unless WithEntitlementCache supplies a dedicated one.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:               s,
		entCache:            s,
		plugins:             plugin.NewRegistry(),
		logger:              slog.Default(),
		clock:               time.Now,
		meterBuffer:         make(chan *meter.UsageEvent, 10000),
		stopChan:            make(chan struct{}),
		meterBatchSize:      100,
		meterFlushInterval:  5 * time.Second,
		entitlementCacheTTL: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithMeterConfig configures metering parameters.
func WithMeterConfig(batchSize int, flushInterval time.Duration) Option {
	return func(t *Tally) {
		t.meterBatchSize = batchSize
		t.meterFlushInterval = flushInterval
	}
}

// WithBufferSize sets the usage event buffer capacity.
func WithBufferSize(size int) Option {
	return func(t *Tally) {
		t.meterBuffer = make(chan *meter.UsageEvent, size)
	}
}

// WithEntitlementCache routes entitlement caching to a dedicated store, such
// as the Redis cache, instead of the primary store.
func WithEntitlementCache(c entitlement.Store) Option {
	return func(t *Tally) {
		t.entCache = c
	}
}

// WithEntitlementCacheTTL sets the entitlement cache TTL.
func WithEntitlementCacheTTL(ttl time.Duration) Option {
	return func(t *Tally) {
		t.entitlementCacheTTL = ttl
	}
}

// WithClock overrides the time source. Billing periods and event timestamps
// derive from it, which makes period math testable.
func WithClock(clock func() time.Time) Option {
	return func(t *Tally) {
		t.clock = clock
	}
}

// Plugins exposes the plugin registry.
func (t *Tally) Plugins() *plugin.Registry {
	return t.plugins
}

// Start begins background workers.
func (t *Tally) Start(ctx context.Context) error {
	// Migrate database
	if err := t.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	t.plugins.EmitInit(ctx, t)

	// Start meter flush worker
	t.wg.Add(1)
	go t.meterFlushWorker(ctx)

	t.logger.Info("tally started",
		"batch_size", t.meterBatchSize,
		"flush_interval", t.meterFlushInterval,
		"cache_ttl", t.entitlementCacheTTL,
	)

	return nil
}

// Stop shuts down the engine, flushing buffered usage first.
func (t *Tally) Stop() error {
	close(t.stopChan)
	t.wg.Wait()

	ctx := context.Background()
	t.plugins.EmitShutdown(ctx)

	return t.store.Close()
}

func (t *Tally) now() time.Time {
	return t.clock()
}

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// CreatePlan validates and creates a new billing plan. All configuration
// violations are collected and returned together.
func (t *Tally) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if p.ID.IsNil() {
		p.ID = id.NewPlanID()
	}
	p.Entity = types.NewEntity()
	if p.Status == "" {
		p.Status = plan.StatusActive
	}

	if errs := p.Validate(); len(errs) > 0 {
		return &types.MultiError{Errors: errs}
	}

	if err := t.store.CreatePlan(ctx, p); err != nil {
		return err
	}

	t.plugins.EmitPlanCreated(ctx, p)
	return nil
}

// GetPlan retrieves a plan by ID.
func (t *Tally) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return t.store.GetPlan(ctx, planID)
}

// GetPlanBySlug retrieves a plan by slug.
func (t *Tally) GetPlanBySlug(ctx context.Context, slug, appID string) (*plan.Plan, error) {
	return t.store.GetPlanBySlug(ctx, slug, appID)
}

// ListPlans lists plans for an app.
func (t *Tally) ListPlans(ctx context.Context, appID string, opts plan.ListOpts) ([]*plan.Plan, error) {
	return t.store.ListPlans(ctx, appID, opts)
}

// UpdatePlan validates and persists a plan change.
func (t *Tally) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	if errs := p.Validate(); len(errs) > 0 {
		return &types.MultiError{Errors: errs}
	}

	old, err := t.store.GetPlan(ctx, p.ID)
	if err != nil {
		return err
	}

	p.Touch()
	if err := t.store.UpdatePlan(ctx, p); err != nil {
		return err
	}

	t.plugins.EmitPlanUpdated(ctx, old, p)
	return nil
}

// ArchivePlan retires a plan from new subscriptions. Existing subscriptions
// keep billing against it.
func (t *Tally) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	if err := t.store.ArchivePlan(ctx, planID); err != nil {
		return err
	}
	t.plugins.EmitPlanArchived(ctx, planID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Meter Management
// ──────────────────────────────────────────────────

// CreateMeter registers a usage meter definition.
func (t *Tally) CreateMeter(ctx context.Context, m *meter.Meter) error {
	if m.Key == "" || m.AppID == "" {
		return ErrInvalidInput
	}
	if m.ID.IsNil() {
		m.ID = id.NewMeterID()
	}
	if m.Aggregation == "" {
		m.Aggregation = meter.AggregationSum
	}
	m.Active = true
	m.Entity = types.NewEntity()

	return t.store.CreateMeter(ctx, m)
}

// GetMeter retrieves a meter by key within an app.
func (t *Tally) GetMeter(ctx context.Context, key, appID string) (*meter.Meter, error) {
	return t.store.GetMeter(ctx, key, appID)
}

// ListMeters lists all meters for an app.
func (t *Tally) ListMeters(ctx context.Context, appID string) ([]*meter.Meter, error) {
	return t.store.ListMeters(ctx, appID)
}

// UpdateMeter persists a meter change.
func (t *Tally) UpdateMeter(ctx context.Context, m *meter.Meter) error {
	m.Touch()
	return t.store.UpdateMeter(ctx, m)
}

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// CreateSubscription creates a new subscription. The billing interval
// defaults to the plan's, the anchor defaults to now, and the current period
// is derived from the anchor.
func (t *Tally) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.CustomerID == "" || sub.AppID == "" {
		return ErrInvalidInput
	}

	p, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	if p.Status == plan.StatusArchived {
		return ErrPlanArchived
	}

	if sub.ID.IsNil() {
		sub.ID = id.NewSubscriptionID()
	}
	sub.Entity = types.NewEntity()

	now := t.now()
	if sub.Interval == "" {
		sub.Interval = p.Interval
		sub.IntervalCount = p.IntervalCount
	}
	if sub.Interval == "" {
		sub.Interval = subscription.IntervalMonth
	}
	if !sub.Interval.Valid() {
		return ErrInvalidInterval
	}
	if sub.AnchorAt.IsZero() {
		sub.AnchorAt = now
	}
	sub.CurrentPeriodStart, sub.CurrentPeriodEnd = subscription.BillingPeriod(
		sub.AnchorAt, sub.Interval, sub.IntervalCount, now)

	if sub.Status == "" {
		sub.Status = subscription.StatusActive
	}
	if p.TrialDays > 0 && sub.TrialStart == nil {
		trialEnd := now.AddDate(0, 0, p.TrialDays)
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
		sub.Status = subscription.StatusTrialing
	}

	if err := t.store.CreateSubscription(ctx, sub); err != nil {
		return err
	}

	_ = t.entCache.Invalidate(ctx, sub.CustomerID, sub.AppID) //nolint:errcheck // best-effort cache invalidation

	t.plugins.EmitSubscriptionCreated(ctx, sub)
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (t *Tally) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return t.store.GetSubscription(ctx, subID)
}

// GetActiveSubscription retrieves the active subscription for a customer.
func (t *Tally) GetActiveSubscription(ctx context.Context, customerID, appID string) (*subscription.Subscription, error) {
	return t.store.GetActiveSubscription(ctx, customerID, appID)
}

// ChangePlan moves a subscription onto a different plan. The billing anchor
// and period are preserved; only the plan binding and interval change.
func (t *Tally) ChangePlan(ctx context.Context, subID id.SubscriptionID, newPlanID id.PlanID) error {
	sub, err := t.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	oldPlan, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	newPlan, err := t.store.GetPlan(ctx, newPlanID)
	if err != nil {
		return err
	}
	if newPlan.Status == plan.StatusArchived {
		return ErrPlanArchived
	}

	sub.PlanID = newPlanID
	if newPlan.Interval != "" {
		sub.Interval = newPlan.Interval
		sub.IntervalCount = newPlan.IntervalCount
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = sub.CurrentPeriod(t.now())
	}
	sub.Touch()

	if err := t.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	_ = t.entCache.Invalidate(ctx, sub.CustomerID, sub.AppID) //nolint:errcheck // best-effort cache invalidation

	t.plugins.EmitSubscriptionChanged(ctx, sub, oldPlan, newPlan)
	return nil
}

// CancelSubscription cancels a subscription, either at the end of the
// current period or immediately.
func (t *Tally) CancelSubscription(ctx context.Context, subID id.SubscriptionID, immediately bool) error {
	sub, err := t.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	now := t.now()
	cancelAt := sub.CurrentPeriodEnd
	if immediately {
		cancelAt = now
	}

	if err := t.store.CancelSubscription(ctx, subID, cancelAt, now); err != nil {
		return err
	}

	_ = t.entCache.Invalidate(ctx, sub.CustomerID, sub.AppID) //nolint:errcheck // best-effort cache invalidation

	t.plugins.EmitSubscriptionCanceled(ctx, sub)
	return nil
}

// RefreshPeriod rolls a subscription's current period forward to cover now,
// and expires the subscription if its cancel-at point has passed. Returns
// the updated subscription.
func (t *Tally) RefreshPeriod(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := t.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	now := t.now()

	if sub.CancelAt != nil && !now.Before(*sub.CancelAt) {
		if sub.Status != subscription.StatusExpired {
			sub.Status = subscription.StatusExpired
			sub.EndedAt = sub.CancelAt
			sub.Touch()
			if err := t.store.UpdateSubscription(ctx, sub); err != nil {
				return nil, err
			}
			_ = t.entCache.Invalidate(ctx, sub.CustomerID, sub.AppID) //nolint:errcheck // best-effort cache invalidation
			t.plugins.EmitSubscriptionExpired(ctx, sub)
		}
		return sub, nil
	}

	start, end := sub.CurrentPeriod(now)
	if start.Equal(sub.CurrentPeriodStart) && end.Equal(sub.CurrentPeriodEnd) {
		return sub, nil
	}

	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.Touch()
	if err := t.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ──────────────────────────────────────────────────
// Usage Metering
// ──────────────────────────────────────────────────

// Meter records a usage event for a customer (non-blocking).
func (t *Tally) Meter(ctx context.Context, customerID, appID, meterKey string, quantity float64) error {
	return t.RecordEvent(ctx, &meter.UsageEvent{
		CustomerID: customerID,
		AppID:      appID,
		MeterKey:   meterKey,
		Quantity:   quantity,
	})
}

// RecordEvent validates and buffers a usage event (non-blocking). Use this
// over Meter when the caller needs to set an idempotency key, timestamp, or
// properties.
func (t *Tally) RecordEvent(_ context.Context, e *meter.UsageEvent) error {
	if e.ID.IsNil() {
		e.ID = id.NewUsageEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}

	if v := meter.ValidateEvent(e); !v.Valid {
		return &types.MultiError{Errors: v.Errors}
	}

	select {
	case t.meterBuffer <- e:
		return nil
	default:
		return ErrMeterBufferFull
	}
}

// Flush synchronously drains the usage buffer into the store.
func (t *Tally) Flush(ctx context.Context) error {
	var batch []*meter.UsageEvent
	for {
		select {
		case e := <-t.meterBuffer:
			batch = append(batch, e)
		default:
			if len(batch) == 0 {
				return nil
			}
			return t.flushMeterBatch(ctx, batch)
		}
	}
}

// meterFlushWorker flushes usage events to the store.
func (t *Tally) meterFlushWorker(ctx context.Context) {
	defer t.wg.Done()

	batch := make([]*meter.UsageEvent, 0, t.meterBatchSize)
	ticker := time.NewTicker(t.meterFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			// Drain whatever is buffered, then final flush
			for {
				select {
				case e := <-t.meterBuffer:
					batch = append(batch, e)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				_ = t.flushMeterBatch(ctx, batch) //nolint:errcheck // already logged
			}
			return

		case event := <-t.meterBuffer:
			batch = append(batch, event)
			if len(batch) >= t.meterBatchSize {
				_ = t.flushMeterBatch(ctx, batch) //nolint:errcheck // already logged
				batch = make([]*meter.UsageEvent, 0, t.meterBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				_ = t.flushMeterBatch(ctx, batch) //nolint:errcheck // already logged
				batch = make([]*meter.UsageEvent, 0, t.meterBatchSize)
			}
		}
	}
}

func (t *Tally) flushMeterBatch(ctx context.Context, batch []*meter.UsageEvent) error {
	start := time.Now()

	if err := t.store.IngestBatch(ctx, batch); err != nil {
		t.logger.Error("failed to flush meter batch",
			"error", err,
			"batch_size", len(batch),
		)
		return err
	}

	elapsed := time.Since(start)
	t.plugins.EmitUsageIngested(ctx, batch)
	t.plugins.EmitUsageFlushed(ctx, len(batch), elapsed)

	t.logger.Debug("flushed meter batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

// PurgeUsage deletes usage events older than the given time and returns the
// number removed.
func (t *Tally) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	return t.store.PurgeUsage(ctx, before)
}

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// Entitled checks whether a customer can use a feature. Metered and seat
// features count usage within the subscription's current billing period;
// features with no reset period count lifetime usage.
func (t *Tally) Entitled(ctx context.Context, customerID, appID, featureKey string) (*entitlement.Result, error) {
	if customerID == "" || appID == "" {
		return &entitlement.Result{
			Allowed: false,
			Feature: featureKey,
			Reason:  "missing customer or app",
		}, nil
	}

	// Check cache first; a miss is (nil, nil)
	if cached, err := t.entCache.GetCached(ctx, customerID, appID, featureKey); err == nil && cached != nil {
		return cached, nil
	}

	sub, err := t.store.GetActiveSubscription(ctx, customerID, appID)
	if err != nil {
		return &entitlement.Result{
			Allowed: false,
			Feature: featureKey,
			Reason:  "no active subscription",
		}, nil
	}

	p, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return &entitlement.Result{
			Allowed: false,
			Feature: featureKey,
			Reason:  "plan not found",
		}, nil
	}

	feature := p.FindFeature(featureKey)
	if feature == nil {
		return &entitlement.Result{
			Allowed: false,
			Feature: featureKey,
			Reason:  "feature not in plan",
		}, nil
	}

	// Boolean feature
	if feature.Type == plan.FeatureBoolean {
		result := &entitlement.Result{
			Allowed: feature.Limit > 0,
			Feature: featureKey,
			Limit:   feature.Limit,
		}
		t.cacheResult(ctx, customerID, appID, featureKey, result)
		return result, nil
	}

	// Metered/seat feature
	var start, end time.Time
	if feature.Period != plan.PeriodNone {
		start, end = sub.CurrentPeriod(t.now())
	}
	used, err := t.store.Aggregate(ctx, customerID, appID, featureKey, start, end)
	if err != nil {
		return nil, err
	}

	result := &entitlement.Result{
		Feature:   featureKey,
		Used:      used,
		Limit:     feature.Limit,
		Remaining: max(0, float64(feature.Limit)-used),
		SoftLimit: feature.SoftLimit,
	}

	switch {
	case feature.Limit == -1:
		result.Allowed = true
		result.Remaining = -1
	case used < float64(feature.Limit):
		result.Allowed = true
	case feature.SoftLimit:
		result.Allowed = true
		result.Reason = "over soft limit"
		t.plugins.EmitSoftLimitReached(ctx, customerID, featureKey, used, feature.Limit)
	default:
		result.Allowed = false
		result.Reason = "quota exceeded"
		t.plugins.EmitQuotaExceeded(ctx, customerID, featureKey, used, feature.Limit)
	}

	t.cacheResult(ctx, customerID, appID, featureKey, result)
	t.plugins.EmitEntitlementChecked(ctx, result)

	return result, nil
}

// Remaining returns the remaining quota for a feature, -1 meaning unlimited.
func (t *Tally) Remaining(ctx context.Context, customerID, appID, featureKey string) (float64, error) {
	result, err := t.Entitled(ctx, customerID, appID, featureKey)
	if err != nil {
		return 0, err
	}
	return result.Remaining, nil
}

func (t *Tally) cacheResult(ctx context.Context, customerID, appID, featureKey string, result *entitlement.Result) {
	_ = t.entCache.SetCached(ctx, customerID, appID, featureKey, result, t.entitlementCacheTTL) //nolint:errcheck // best-effort cache set
}

// ──────────────────────────────────────────────────
// Usage Summaries
// ──────────────────────────────────────────────────

// BuildUsageSummaries aggregates and prices the subscription's current-period
// usage, one summary per plan price, and persists them. Summaries are
// upserted so rebuilding mid-period is safe.
func (t *Tally) BuildUsageSummaries(ctx context.Context, subID id.SubscriptionID) ([]*usage.Summary, error) {
	sub, err := t.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	p, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	start, end := sub.CurrentPeriod(t.now())

	summaries := make([]*usage.Summary, 0, len(p.Prices))
	for i := range p.Prices {
		price := p.Prices[i]
		if price.Currency == "" {
			price.Currency = p.Currency
		}
		m := p.FindMeter(price.MeterKey)

		events, err := t.store.QueryUsage(ctx, sub.CustomerID, sub.AppID, meter.QueryOpts{
			MeterKey: price.MeterKey,
			Start:    start,
			End:      end,
		})
		if err != nil {
			return nil, err
		}

		sum := usage.BuildSummary(usage.BuildInput{
			CustomerID:     sub.CustomerID,
			SubscriptionID: sub.ID,
			AppID:          sub.AppID,
			Meter:          m,
			Price:          price,
			Events:         events,
			PeriodStart:    start,
			PeriodEnd:      end,
			Aggregate:      t.aggregateHook(ctx, m),
			Compute:        t.computeHook(price),
		})

		if err := t.store.SaveSummary(ctx, sum); err != nil {
			return nil, err
		}
		t.plugins.EmitSummaryBuilt(ctx, sum)
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// aggregateHook returns a plugin-backed aggregation override when one is
// registered under the meter's aggregation name, otherwise nil for the
// built-in behavior.
func (t *Tally) aggregateHook(ctx context.Context, m *meter.Meter) func([]*meter.UsageEvent, *meter.Meter) float64 {
	if m == nil {
		return nil
	}
	agg := t.plugins.GetUsageAggregator(string(m.Aggregation))
	if agg == nil {
		return nil
	}
	return func(events []*meter.UsageEvent, mm *meter.Meter) float64 {
		value, err := agg.Aggregate(ctx, events)
		if err != nil {
			t.logger.Warn("custom aggregator failed, falling back",
				"aggregator", agg.AggregatorName(),
				"error", err,
			)
			return meter.AggregateEvents(events, mm)
		}
		return value
	}
}

// computeHook returns a plugin-backed pricing override when a strategy is
// registered under the price model's name, otherwise nil.
func (t *Tally) computeHook(price pricing.Price) func(float64, pricing.Price) pricing.Result {
	if price.Model == nil {
		return nil
	}
	strat := t.plugins.GetPricingStrategy(price.Model.ModelName())
	if strat == nil {
		return nil
	}
	return strat.Compute
}

// PreviewPrice computes the charge for a hypothetical quantity under a price
// without touching stored usage. Registered pricing strategies apply.
func (t *Tally) PreviewPrice(quantity float64, price pricing.Price) pricing.Result {
	if compute := t.computeHook(price); compute != nil {
		return compute(quantity, price)
	}
	return pricing.Calculate(quantity, price)
}

// ──────────────────────────────────────────────────
// Invoice Generation
// ──────────────────────────────────────────────────

// GenerateInvoice builds a draft invoice for the subscription's current
// billing period: the plan base fee plus one usage line item per summary.
// Generating twice for the same period returns the existing invoice with
// ErrAlreadyExists.
func (t *Tally) GenerateInvoice(ctx context.Context, subID id.SubscriptionID) (*invoice.Invoice, error) {
	sub, err := t.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	p, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	start, end := sub.CurrentPeriod(t.now())

	if existing, err := t.store.GetInvoiceByPeriod(ctx, sub.CustomerID, sub.AppID, start, end); err == nil {
		return existing, ErrAlreadyExists
	}

	summaries, err := t.BuildUsageSummaries(ctx, subID)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity:         types.NewEntity(),
		ID:             id.NewInvoiceID(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Status:         invoice.StatusDraft,
		Currency:       p.Currency,
		PeriodStart:    start,
		PeriodEnd:      end,
		AppID:          sub.AppID,
		LineItems:      []invoice.LineItem{},
	}

	// Base subscription fee
	if p.BaseAmount.IsPositive() {
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID:          id.NewLineItemID(),
			InvoiceID:   inv.ID,
			Description: "Base subscription fee",
			Quantity:    1,
			UnitAmount:  p.BaseAmount,
			Amount:      p.BaseAmount,
			Type:        invoice.LineItemBase,
		})
	}

	// Usage charges, one line per summary
	for _, sum := range summaries {
		if sum.Amount.IsZero() && sum.AggregatedValue == 0 {
			continue
		}
		description := sum.MeterKey + " usage"
		if m := p.FindMeter(sum.MeterKey); m != nil && m.Name != "" {
			description = m.Name
		}
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID:          id.NewLineItemID(),
			InvoiceID:   inv.ID,
			MeterKey:    sum.MeterKey,
			Description: description,
			Quantity:    sum.AggregatedValue,
			Amount:      sum.Amount,
			Type:        invoice.LineItemUsage,
			Breakdown:   sum.Breakdown,
		})
	}

	inv.Recalculate()

	// Tax via registered calculators
	for _, calc := range t.plugins.GetTaxCalculators() {
		tax, err := calc.CalculateTax(ctx, inv.Subtotal, sub.CustomerID)
		if err != nil {
			t.logger.Warn("tax calculator failed",
				"plugin", calc.Name(),
				"error", err,
			)
			continue
		}
		inv.TaxAmount = inv.TaxAmount.Add(tax)
	}
	inv.Recalculate()

	if err := t.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	t.plugins.EmitInvoiceGenerated(ctx, inv)
	return inv, nil
}

// GetInvoice retrieves an invoice by ID.
func (t *Tally) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return t.store.GetInvoice(ctx, invID)
}

// ListInvoices lists a customer's invoices.
func (t *Tally) ListInvoices(ctx context.Context, customerID, appID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return t.store.ListInvoices(ctx, customerID, appID, opts)
}

// FinalizeInvoice moves a draft invoice to pending, setting its due date.
func (t *Tally) FinalizeInvoice(ctx context.Context, invID id.InvoiceID, dueDate time.Time) (*invoice.Invoice, error) {
	inv, err := t.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusDraft {
		return nil, ErrInvoiceFinalized
	}

	inv.Status = invoice.StatusPending
	if !dueDate.IsZero() {
		inv.DueDate = &dueDate
	}
	inv.Touch()

	if err := t.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	t.plugins.EmitInvoiceFinalized(ctx, inv)
	return inv, nil
}

// PayInvoice marks an invoice as paid.
func (t *Tally) PayInvoice(ctx context.Context, invID id.InvoiceID, paymentRef string) (*invoice.Invoice, error) {
	inv, err := t.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoice.StatusPaid {
		return nil, ErrInvoicePaid
	}
	if inv.Status == invoice.StatusVoided {
		return nil, ErrInvoiceVoided
	}

	paidAt := t.now()
	if err := t.store.MarkInvoicePaid(ctx, invID, paidAt, paymentRef); err != nil {
		return nil, err
	}

	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentRef = paymentRef

	t.plugins.EmitInvoicePaid(ctx, inv)
	return inv, nil
}

// VoidInvoice voids an unpaid invoice.
func (t *Tally) VoidInvoice(ctx context.Context, invID id.InvoiceID, reason string) (*invoice.Invoice, error) {
	inv, err := t.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoice.StatusPaid {
		return nil, ErrInvoicePaid
	}

	if err := t.store.MarkInvoiceVoided(ctx, invID, reason); err != nil {
		return nil, err
	}

	voidedAt := t.now()
	inv.Status = invoice.StatusVoided
	inv.VoidedAt = &voidedAt
	inv.VoidReason = reason

	t.plugins.EmitInvoiceVoided(ctx, inv, reason)
	return inv, nil
}
