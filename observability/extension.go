// Package observability provides a metrics plugin for Tally that records
// lifecycle event counts and latencies through a caller-supplied
// MetricFactory, keeping the package free of any particular metrics backend.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated          = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated          = (*MetricsExtension)(nil)
	_ plugin.OnPlanArchived         = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionChanged  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired  = (*MetricsExtension)(nil)
	_ plugin.OnUsageIngested        = (*MetricsExtension)(nil)
	_ plugin.OnUsageFlushed         = (*MetricsExtension)(nil)
	_ plugin.OnSummaryBuilt         = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked   = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded        = (*MetricsExtension)(nil)
	_ plugin.OnSoftLimitReached     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceGenerated     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceFinalized     = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid          = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceVoided        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanCreated  Counter
	PlanUpdated  Counter
	PlanArchived Counter

	// Subscription metrics
	SubscriptionCreated    Counter
	SubscriptionUpgraded   Counter
	SubscriptionDowngraded Counter
	SubscriptionCanceled   Counter
	SubscriptionExpired    Counter

	// Usage metrics
	UsageEventsIngested Counter
	UsageBatchSize      Histogram
	UsageFlushLatency   Histogram
	SummariesBuilt      Counter

	// Entitlement metrics
	EntitlementChecks Counter
	EntitlementDenied Counter
	SoftLimitsReached Counter
	QuotasExceeded    Counter

	// Invoice metrics
	InvoiceGenerated Counter
	InvoiceFinalized Counter
	InvoicePaid      Counter
	InvoiceVoided    Counter
	InvoiceTotal     Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanCreated:  factory.Counter("tally.plan.created"),
		PlanUpdated:  factory.Counter("tally.plan.updated"),
		PlanArchived: factory.Counter("tally.plan.archived"),

		// Subscription metrics
		SubscriptionCreated:    factory.Counter("tally.subscription.created"),
		SubscriptionUpgraded:   factory.Counter("tally.subscription.upgraded"),
		SubscriptionDowngraded: factory.Counter("tally.subscription.downgraded"),
		SubscriptionCanceled:   factory.Counter("tally.subscription.canceled"),
		SubscriptionExpired:    factory.Counter("tally.subscription.expired"),

		// Usage metrics
		UsageEventsIngested: factory.Counter("tally.usage.events.ingested"),
		UsageBatchSize:      factory.Histogram("tally.usage.batch.size"),
		UsageFlushLatency:   factory.Histogram("tally.usage.flush.latency_ms"),
		SummariesBuilt:      factory.Counter("tally.usage.summaries.built"),

		// Entitlement metrics
		EntitlementChecks: factory.Counter("tally.entitlement.checks"),
		EntitlementDenied: factory.Counter("tally.entitlement.denied"),
		SoftLimitsReached: factory.Counter("tally.entitlement.soft_limits"),
		QuotasExceeded:    factory.Counter("tally.entitlement.quotas_exceeded"),

		// Invoice metrics
		InvoiceGenerated: factory.Counter("tally.invoice.generated"),
		InvoiceFinalized: factory.Counter("tally.invoice.finalized"),
		InvoicePaid:      factory.Counter("tally.invoice.paid"),
		InvoiceVoided:    factory.Counter("tally.invoice.voided"),
		InvoiceTotal:     factory.Histogram("tally.invoice.total_amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(_ context.Context, _, _ *plan.Plan) error {
	m.PlanUpdated.Inc()
	return nil
}

// OnPlanArchived implements plugin.OnPlanArchived.
func (m *MetricsExtension) OnPlanArchived(_ context.Context, _ string) error {
	m.PlanArchived.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionChanged implements plugin.OnSubscriptionChanged.
func (m *MetricsExtension) OnSubscriptionChanged(_ context.Context, _ *subscription.Subscription, oldPlan, newPlan *plan.Plan) error {
	if newPlan.BaseAmount.Currency == oldPlan.BaseAmount.Currency &&
		newPlan.BaseAmount.LessThan(oldPlan.BaseAmount) {
		m.SubscriptionDowngraded.Inc()
		return nil
	}
	m.SubscriptionUpgraded.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Usage lifecycle hooks
// ──────────────────────────────────────────────────

// OnUsageIngested implements plugin.OnUsageIngested.
func (m *MetricsExtension) OnUsageIngested(_ context.Context, events []*meter.UsageEvent) error {
	count := float64(len(events))
	m.UsageEventsIngested.Add(count)
	m.UsageBatchSize.Observe(count)
	return nil
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (m *MetricsExtension) OnUsageFlushed(_ context.Context, _ int, elapsed time.Duration) error {
	m.UsageFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnSummaryBuilt implements plugin.OnSummaryBuilt.
func (m *MetricsExtension) OnSummaryBuilt(_ context.Context, _ *usage.Summary) error {
	m.SummariesBuilt.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, result *entitlement.Result) error {
	m.EntitlementChecks.Inc()
	if !result.Allowed {
		m.EntitlementDenied.Inc()
	}
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _, _ string, _ float64, _ int64) error {
	m.QuotasExceeded.Inc()
	return nil
}

// OnSoftLimitReached implements plugin.OnSoftLimitReached.
func (m *MetricsExtension) OnSoftLimitReached(_ context.Context, _, _ string, _ float64, _ int64) error {
	m.SoftLimitsReached.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (m *MetricsExtension) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceGenerated.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnInvoiceFinalized implements plugin.OnInvoiceFinalized.
func (m *MetricsExtension) OnInvoiceFinalized(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceFinalized.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceVoided implements plugin.OnInvoiceVoided.
func (m *MetricsExtension) OnInvoiceVoided(_ context.Context, _ *invoice.Invoice, _ string) error {
	m.InvoiceVoided.Inc()
	return nil
}
