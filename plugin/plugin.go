// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"io"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized. The engine passes itself
// as an opaque value so the plugin package stays import-cycle free.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a new plan is created.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanUpdated is called when a plan is updated.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error
}

// OnPlanArchived is called when a plan is archived.
type OnPlanArchived interface {
	Plugin
	OnPlanArchived(ctx context.Context, planID string) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a new subscription is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionChanged is called when a subscription changes plans.
type OnSubscriptionChanged interface {
	Plugin
	OnSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlan, newPlan *plan.Plan) error
}

// OnSubscriptionCanceled is called when a subscription is canceled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionExpired is called when a subscription expires.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Usage/Metering hooks
// ──────────────────────────────────────────────────

// OnUsageIngested is called when usage events are ingested.
type OnUsageIngested interface {
	Plugin
	OnUsageIngested(ctx context.Context, events []*meter.UsageEvent) error
}

// OnUsageFlushed is called when usage events are flushed to the store.
type OnUsageFlushed interface {
	Plugin
	OnUsageFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// OnSummaryBuilt is called when a billing-period usage summary is built.
type OnSummaryBuilt interface {
	Plugin
	OnSummaryBuilt(ctx context.Context, summary *usage.Summary) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called when an entitlement is checked.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, result *entitlement.Result) error
}

// OnQuotaExceeded is called when a quota is exceeded.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, customerID, featureKey string, used float64, limit int64) error
}

// OnSoftLimitReached is called when a soft limit is reached.
type OnSoftLimitReached interface {
	Plugin
	OnSoftLimitReached(ctx context.Context, customerID, featureKey string, used float64, limit int64) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated is called when an invoice is generated.
type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceFinalized is called when an invoice is finalized.
type OnInvoiceFinalized interface {
	Plugin
	OnInvoiceFinalized(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called when an invoice is paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceVoided is called when an invoice is voided.
type OnInvoiceVoided interface {
	Plugin
	OnInvoiceVoided(ctx context.Context, inv *invoice.Invoice, reason string) error
}

// ──────────────────────────────────────────────────
// Pricing strategies
// ──────────────────────────────────────────────────

// PricingStrategy provides custom pricing calculation. A plan price whose
// model name matches a registered strategy is computed by the strategy
// instead of the built-in calculator.
type PricingStrategy interface {
	Plugin
	StrategyName() string
	Compute(quantity float64, price pricing.Price) pricing.Result
}

// ──────────────────────────────────────────────────
// Usage aggregators
// ──────────────────────────────────────────────────

// UsageAggregator provides custom usage aggregation logic for meters whose
// aggregation name matches AggregatorName.
type UsageAggregator interface {
	Plugin
	AggregatorName() string
	Aggregate(ctx context.Context, events []*meter.UsageEvent) (float64, error)
}

// ──────────────────────────────────────────────────
// Tax calculators
// ──────────────────────────────────────────────────

// TaxCalculator calculates tax for invoices.
type TaxCalculator interface {
	Plugin
	CalculateTax(ctx context.Context, subtotal types.Money, customerID string) (types.Money, error)
}

// ──────────────────────────────────────────────────
// Invoice formatters
// ──────────────────────────────────────────────────

// InvoiceFormatter formats invoices for export.
type InvoiceFormatter interface {
	Plugin
	Format() string // "pdf", "html", "csv", etc.
	Render(ctx context.Context, inv *invoice.Invoice, w io.Writer) error
}
