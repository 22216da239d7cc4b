// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system; callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Hook)(nil)
	_ plugin.OnPlanCreated          = (*Hook)(nil)
	_ plugin.OnPlanUpdated          = (*Hook)(nil)
	_ plugin.OnPlanArchived         = (*Hook)(nil)
	_ plugin.OnSubscriptionCreated  = (*Hook)(nil)
	_ plugin.OnSubscriptionChanged  = (*Hook)(nil)
	_ plugin.OnSubscriptionCanceled = (*Hook)(nil)
	_ plugin.OnSubscriptionExpired  = (*Hook)(nil)
	_ plugin.OnInvoiceGenerated     = (*Hook)(nil)
	_ plugin.OnInvoiceFinalized     = (*Hook)(nil)
	_ plugin.OnInvoicePaid          = (*Hook)(nil)
	_ plugin.OnInvoiceVoided        = (*Hook)(nil)
	_ plugin.OnQuotaExceeded        = (*Hook)(nil)
	_ plugin.OnSoftLimitReached     = (*Hook)(nil)
	_ plugin.OnEntitlementChecked   = (*Hook)(nil)
)

// Recorder is the interface audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the audit record emitted for each billing lifecycle event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Hook bridges Tally lifecycle events to an audit trail backend.
type Hook struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates a Hook that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Hook {
	h := &Hook{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements plugin.Plugin.
func (h *Hook) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

func (h *Hook) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return h.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, nil,
		"slug", p.Slug,
		"app_id", p.AppID,
	)
}

func (h *Hook) OnPlanUpdated(ctx context.Context, _, newPlan *plan.Plan) error {
	return h.record(ctx, ActionPlanUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, newPlan.ID.String(), CategoryBilling, nil,
		"slug", newPlan.Slug,
	)
}

func (h *Hook) OnPlanArchived(ctx context.Context, planID string) error {
	return h.record(ctx, ActionPlanArchived, SeverityInfo, OutcomeSuccess,
		ResourcePlan, planID, CategoryBilling, nil)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

func (h *Hook) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"customer_id", sub.CustomerID,
		"plan_id", sub.PlanID.String(),
	)
}

func (h *Hook) OnSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlan, newPlan *plan.Plan) error {
	action := ActionSubscriptionUpgraded
	if newPlan.BaseAmount.Currency == oldPlan.BaseAmount.Currency &&
		newPlan.BaseAmount.LessThan(oldPlan.BaseAmount) {
		action = ActionSubscriptionDowngraded
	}
	return h.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"customer_id", sub.CustomerID,
		"old_plan", oldPlan.Slug,
		"new_plan", newPlan.Slug,
	)
}

func (h *Hook) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"customer_id", sub.CustomerID,
	)
}

func (h *Hook) OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error {
	return h.record(ctx, ActionSubscriptionExpired, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"customer_id", sub.CustomerID,
	)
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

func (h *Hook) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return h.record(ctx, ActionInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID,
		"total", inv.Total.String(),
	)
}

func (h *Hook) OnInvoiceFinalized(ctx context.Context, inv *invoice.Invoice) error {
	return h.record(ctx, ActionInvoiceFinalized, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID,
	)
}

func (h *Hook) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return h.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID,
		"payment_ref", inv.PaymentRef,
	)
}

func (h *Hook) OnInvoiceVoided(ctx context.Context, inv *invoice.Invoice, reason string) error {
	return h.record(ctx, ActionInvoiceVoided, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID,
		"void_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

func (h *Hook) OnQuotaExceeded(ctx context.Context, customerID, featureKey string, used float64, limit int64) error {
	return h.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, featureKey, CategoryAccess, nil,
		"customer_id", customerID,
		"used", used,
		"limit", limit,
	)
}

func (h *Hook) OnSoftLimitReached(ctx context.Context, customerID, featureKey string, used float64, limit int64) error {
	return h.record(ctx, ActionSoftLimitReached, SeverityWarning, OutcomeSuccess,
		ResourceEntitlement, featureKey, CategoryAccess, nil,
		"customer_id", customerID,
		"used", used,
		"limit", limit,
	)
}

// OnEntitlementChecked audits denied checks only; allowed checks are too
// frequent to record.
func (h *Hook) OnEntitlementChecked(ctx context.Context, result *entitlement.Result) error {
	if result.Allowed {
		return nil
	}
	return h.record(ctx, ActionEntitlementDenied, SeverityInfo, OutcomeFailure,
		ResourceEntitlement, result.Feature, CategoryAccess, nil,
		"reason", result.Reason,
		"used", result.Used,
		"limit", result.Limit,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (h *Hook) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if h.enabled != nil && !h.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := h.recorder.Record(ctx, evt); recErr != nil {
		h.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
