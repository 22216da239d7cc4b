package subscription

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusPaused   Status = "paused"
)

type Subscription struct {
	types.Entity
	ID                 id.SubscriptionID `json:"id"`
	CustomerID         string            `json:"customer_id"`
	PlanID             id.PlanID         `json:"plan_id"`
	Status             Status            `json:"status"`
	Interval           Interval          `json:"interval"`
	IntervalCount      int               `json:"interval_count"`
	AnchorAt           time.Time         `json:"anchor_at"`
	CurrentPeriodStart time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `json:"current_period_end"`
	TrialStart         *time.Time        `json:"trial_start,omitempty"`
	TrialEnd           *time.Time        `json:"trial_end,omitempty"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	CancelAt           *time.Time        `json:"cancel_at,omitempty"`
	EndedAt            *time.Time        `json:"ended_at,omitempty"`
	AppID              string            `json:"app_id"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// InTrial reports whether the subscription is inside its trial window at t.
func (s *Subscription) InTrial(t time.Time) bool {
	if s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	return !t.Before(*s.TrialStart) && t.Before(*s.TrialEnd)
}

// IsActive reports whether the subscription accrues usage at t.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}
