package audithook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/audithook"
	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/types"
)

type capture struct {
	events []*audithook.AuditEvent
}

func (c *capture) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestPlanCreatedEvent(t *testing.T) {
	rec := &capture{}
	hook := audithook.New(rec)

	p := &plan.Plan{
		Entity: types.NewEntity(),
		ID:     id.NewPlanID(),
		Slug:   "pro",
		AppID:  "app_1",
	}
	require.NoError(t, hook.OnPlanCreated(context.Background(), p))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, audithook.ActionPlanCreated, evt.Action)
	assert.Equal(t, audithook.ResourcePlan, evt.Resource)
	assert.Equal(t, p.ID.String(), evt.ResourceID)
	assert.Equal(t, "pro", evt.Metadata["slug"])
	assert.Equal(t, audithook.OutcomeSuccess, evt.Outcome)
}

func TestEntitlementCheckedAuditsDenialsOnly(t *testing.T) {
	rec := &capture{}
	hook := audithook.New(rec)

	allowed := &entitlement.Result{Allowed: true, Feature: "api_calls"}
	require.NoError(t, hook.OnEntitlementChecked(context.Background(), allowed))
	assert.Empty(t, rec.events)

	denied := &entitlement.Result{Allowed: false, Feature: "api_calls", Reason: "quota exceeded", Used: 150, Limit: 100}
	require.NoError(t, hook.OnEntitlementChecked(context.Background(), denied))

	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.ActionEntitlementDenied, rec.events[0].Action)
	assert.Equal(t, "quota exceeded", rec.events[0].Metadata["reason"])
}

func TestInvoiceVoidedCarriesReason(t *testing.T) {
	rec := &capture{}
	hook := audithook.New(rec)

	inv := &invoice.Invoice{
		Entity:     types.NewEntity(),
		ID:         id.NewInvoiceID(),
		CustomerID: "cust_1",
		Total:      types.USD(5000),
	}
	require.NoError(t, hook.OnInvoiceVoided(context.Background(), inv, "billing dispute"))

	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.ActionInvoiceVoided, rec.events[0].Action)
	assert.Equal(t, audithook.SeverityWarning, rec.events[0].Severity)
	assert.Equal(t, "billing dispute", rec.events[0].Metadata["void_reason"])
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &capture{}
	hook := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionQuotaExceeded))

	p := &plan.Plan{Entity: types.NewEntity(), ID: id.NewPlanID(), Slug: "pro", AppID: "app_1"}
	require.NoError(t, hook.OnPlanCreated(context.Background(), p))
	assert.Empty(t, rec.events)

	require.NoError(t, hook.OnQuotaExceeded(context.Background(), "cust_1", "api_calls", 150, 100))
	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.ActionQuotaExceeded, rec.events[0].Action)
}

func TestDisabledActionsFilter(t *testing.T) {
	rec := &capture{}
	hook := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionPlanCreated))

	p := &plan.Plan{Entity: types.NewEntity(), ID: id.NewPlanID(), Slug: "pro", AppID: "app_1"}
	require.NoError(t, hook.OnPlanCreated(context.Background(), p))
	assert.Empty(t, rec.events)

	require.NoError(t, hook.OnPlanArchived(context.Background(), p.ID.String()))
	require.Len(t, rec.events, 1)
}
