package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated  = "plan.created"
	ActionPlanUpdated  = "plan.updated"
	ActionPlanArchived = "plan.archived"

	// Subscription actions
	ActionSubscriptionCreated    = "subscription.created"
	ActionSubscriptionUpgraded   = "subscription.upgraded"
	ActionSubscriptionDowngraded = "subscription.downgraded"
	ActionSubscriptionCanceled   = "subscription.canceled"
	ActionSubscriptionExpired    = "subscription.expired"

	// Entitlement actions
	ActionEntitlementDenied = "entitlement.denied"
	ActionQuotaExceeded     = "quota.exceeded"
	ActionSoftLimitReached  = "soft_limit.reached"

	// Invoice actions
	ActionInvoiceGenerated = "invoice.generated"
	ActionInvoiceFinalized = "invoice.finalized"
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceVoided    = "invoice.voided"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceEntitlement  = "entitlement"
	ResourceInvoice      = "invoice"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
