package tally

import (
	"errors"

	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/pricing"
	"github.com/xraph/tally/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tally: not found")
	ErrAlreadyExists = errors.New("tally: already exists")
	ErrInvalidInput  = errors.New("tally: invalid input")

	// Plan errors
	ErrPlanNotFound     = errors.New("tally: plan not found")
	ErrPlanArchived     = errors.New("tally: plan is archived")
	ErrPlanInUse        = errors.New("tally: plan is in use by subscriptions")
	ErrFeatureNotFound  = errors.New("tally: feature not found")
	ErrDuplicateFeature = errors.New("tally: duplicate feature key")

	// Meter errors
	ErrMeterNotFound   = errors.New("tally: meter not found")
	ErrMeterInactive   = errors.New("tally: meter is inactive")
	ErrDuplicateMeter  = errors.New("tally: duplicate meter key")
	ErrMeterBufferFull = errors.New("tally: meter buffer full")
	ErrDuplicateEvent  = errors.New("tally: duplicate usage event")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("tally: subscription not found")
	ErrSubscriptionCanceled = errors.New("tally: subscription is canceled")
	ErrNoActiveSubscription = errors.New("tally: no active subscription")
	ErrInvalidInterval      = errors.New("tally: unknown billing interval")

	// Entitlement errors
	ErrQuotaExceeded   = errors.New("tally: quota exceeded")
	ErrFeatureDisabled = errors.New("tally: feature disabled")
	ErrNoEntitlement   = errors.New("tally: no entitlement for feature")

	// Invoice errors
	ErrInvoiceNotFound  = errors.New("tally: invoice not found")
	ErrInvoiceFinalized = errors.New("tally: invoice already finalized")
	ErrInvoicePaid      = errors.New("tally: invoice already paid")
	ErrInvoiceVoided    = errors.New("tally: invoice is voided")

	// Store errors
	ErrStoreNotReady     = errors.New("tally: store not ready")
	ErrStoreClosed       = errors.New("tally: store is closed")
	ErrTransactionFailed = errors.New("tally: transaction failed")
	ErrMigrationFailed   = errors.New("tally: migration failed")

	// Cache errors
	ErrCacheMiss       = errors.New("tally: cache miss")
	ErrCacheInvalidate = errors.New("tally: cache invalidation failed")
)

// Pricing configuration errors, surfaced by Price.Validate at plan creation.
// The calculator itself never returns these; it degrades to zero amounts on
// malformed configuration.
var (
	ErrInvalidPricing       = pricing.ErrInvalidPricing
	ErrNoTiers              = pricing.ErrNoTiers
	ErrTiersNotAscending    = pricing.ErrTiersNotAscending
	ErrUnboundedTierNotLast = pricing.ErrUnboundedTierNotLast
	ErrPackageSizeRequired  = pricing.ErrPackageSizeRequired
)

// Usage event validation errors, collected by meter.ValidateEvent.
var (
	ErrMissingCustomerID = meter.ErrMissingCustomerID
	ErrMissingMeterKey   = meter.ErrMissingMeterKey
	ErrQuantityNaN       = meter.ErrQuantityNaN
	ErrNegativeQuantity  = meter.ErrNegativeQuantity
)

// ValidationError reports a single field-level validation failure.
type ValidationError = types.ValidationError

// MultiError collects multiple errors from a batch operation.
type MultiError = types.MultiError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrMeterNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrFeatureNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsQuotaError returns true if the error is related to quota/limits.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrNoEntitlement) ||
		errors.Is(err, ErrFeatureDisabled)
}

// IsConfigError returns true if the error reports malformed pricing
// configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidPricing) ||
		errors.Is(err, ErrNoTiers) ||
		errors.Is(err, ErrTiersNotAscending) ||
		errors.Is(err, ErrUnboundedTierNotLast) ||
		errors.Is(err, ErrPackageSizeRequired)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrMeterBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrCacheInvalidate)
}
