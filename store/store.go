package store

import (
	"context"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/usage"
)

// Store is the unified storage interface for all Tally entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	GetPlanBySlug(ctx context.Context, slug string, appID string) (*plan.Plan, error)
	ListPlans(ctx context.Context, appID string, opts plan.ListOpts) ([]*plan.Plan, error)
	UpdatePlan(ctx context.Context, p *plan.Plan) error
	DeletePlan(ctx context.Context, planID id.PlanID) error
	ArchivePlan(ctx context.Context, planID id.PlanID) error

	// Meter methods
	CreateMeter(ctx context.Context, m *meter.Meter) error
	GetMeter(ctx context.Context, key, appID string) (*meter.Meter, error)
	ListMeters(ctx context.Context, appID string) ([]*meter.Meter, error)
	UpdateMeter(ctx context.Context, m *meter.Meter) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, customerID string, appID string) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string, appID string, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	// CancelSubscription records a cancellation point. The caller supplies
	// its notion of now; a cancelAt at or before now cancels immediately.
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt, now time.Time) error

	// Usage event methods
	IngestBatch(ctx context.Context, events []*meter.UsageEvent) error
	Aggregate(ctx context.Context, customerID, appID, meterKey string, start, end time.Time) (float64, error)
	AggregateMulti(ctx context.Context, customerID, appID string, meterKeys []string, start, end time.Time) (map[string]float64, error)
	QueryUsage(ctx context.Context, customerID, appID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)

	// Usage summary methods
	SaveSummary(ctx context.Context, s *usage.Summary) error
	ListSummaries(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) ([]*usage.Summary, error)

	// Entitlement cache methods
	GetCached(ctx context.Context, customerID, appID, featureKey string) (*entitlement.Result, error)
	SetCached(ctx context.Context, customerID, appID, featureKey string, result *entitlement.Result, ttl time.Duration) error
	Invalidate(ctx context.Context, customerID, appID string) error
	InvalidateFeature(ctx context.Context, customerID, appID, featureKey string) error

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, customerID, appID string, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoiceByPeriod(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error)
	ListPendingInvoices(ctx context.Context, appID string) ([]*invoice.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error
	MarkInvoiceVoided(ctx context.Context, invID id.InvoiceID, reason string) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
