// Package tally provides a composable usage-based billing engine for Go applications.
//
// Tally is designed as a library, not a service. Import it directly into your
// Go application for maximum performance and flexibility. It provides:
//
//   - Tiered pricing calculation (per-unit, flat, graduated, volume, package)
//   - High-throughput usage metering with batched, idempotent ingestion
//   - Sub-millisecond entitlement checks with TTL caching
//   - Calendar-aware billing period arithmetic
//   - Automated invoice generation with per-tier line-item detail
//   - Pluggable storage: in-memory, Postgres, SQLite, MongoDB, Redis cache
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.Open(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	t := tally.New(store)
//
//	// Start the engine (begins background workers)
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
// # Core Concepts
//
// Plans bundle a recurring base fee, usage meters, per-meter prices, and
// feature limits:
//
//	p := &plan.Plan{
//	    Name:     "Pro",
//	    Currency: "usd",
//	    Interval: subscription.IntervalMonth,
//	    Meters: []meter.Meter{
//	        {Key: "api_calls", Aggregation: meter.AggregationSum},
//	    },
//	    Prices: []pricing.Price{
//	        {MeterKey: "api_calls", Currency: "usd", Model: pricing.Graduated{
//	            Tiers: []pricing.Tier{
//	                {UpTo: pricing.UpToValue(1000), UnitAmount: tally.USD(0)},
//	                {UnitAmount: tally.USD(2)},
//	            },
//	        }},
//	    },
//	    Features: []plan.Feature{
//	        {Key: "api_calls", Limit: 100000, Type: plan.FeatureMetered},
//	        {Key: "sso", Limit: 1, Type: plan.FeatureBoolean},
//	    },
//	}
//
// Subscriptions connect customers to plans; the current billing period is
// derived from the subscription anchor and the plan interval:
//
//	err := t.CreateSubscription(ctx, sub)
//
// Entitlements check whether a customer can use a feature, and usage is
// recorded through the buffered meter:
//
//	result, err := t.Entitled(ctx, customerID, appID, "api_calls")
//	if result.Allowed {
//	    t.Meter(ctx, customerID, appID, "api_calls", 1)
//	}
//
// At the end of a period, summaries price the aggregated usage and invoices
// collect them into line items:
//
//	inv, err := t.GenerateInvoice(ctx, sub.ID)
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc). Per-tier charges are
// rounded half-up to the nearest minor unit as they are computed.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package tally
