package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema step. Up statements must be idempotent;
// the version table guards re-application anyway.
type migration struct {
	Version string
	Name    string
	Up      string
}

var migrations = []migration{
	{
		Version: "20240101000001",
		Name:    "create_tally_plans",
		Up: `
CREATE TABLE IF NOT EXISTS tally_plans (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    slug           TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    currency       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'draft',
    trial_days     INT NOT NULL DEFAULT 0,
    base_amount    BIGINT NOT NULL DEFAULT 0,
    interval       TEXT NOT NULL DEFAULT 'month',
    interval_count INT NOT NULL DEFAULT 1,
    features       JSONB NOT NULL DEFAULT '[]',
    meters         JSONB NOT NULL DEFAULT '[]',
    prices         JSONB NOT NULL DEFAULT '[]',
    app_id         TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_plans_app_id ON tally_plans (app_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_plans_slug_app ON tally_plans (slug, app_id);
CREATE INDEX IF NOT EXISTS idx_tally_plans_status ON tally_plans (app_id, status);
`,
	},
	{
		Version: "20240101000002",
		Name:    "create_tally_meters",
		Up: `
CREATE TABLE IF NOT EXISTS tally_meters (
    id          TEXT PRIMARY KEY,
    key         TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    unit        TEXT NOT NULL DEFAULT '',
    aggregation TEXT NOT NULL DEFAULT 'sum',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    app_id      TEXT NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_meters_key_app ON tally_meters (key, app_id);
`,
	},
	{
		Version: "20240101000003",
		Name:    "create_tally_subscriptions",
		Up: `
CREATE TABLE IF NOT EXISTS tally_subscriptions (
    id                   TEXT PRIMARY KEY,
    customer_id          TEXT NOT NULL DEFAULT '',
    plan_id              TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'active',
    interval             TEXT NOT NULL DEFAULT 'month',
    interval_count       INT NOT NULL DEFAULT 1,
    anchor_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    current_period_start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    current_period_end   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    trial_start          TIMESTAMPTZ,
    trial_end            TIMESTAMPTZ,
    canceled_at          TIMESTAMPTZ,
    cancel_at            TIMESTAMPTZ,
    ended_at             TIMESTAMPTZ,
    app_id               TEXT NOT NULL DEFAULT '',
    metadata             JSONB NOT NULL DEFAULT '{}',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_subs_customer ON tally_subscriptions (customer_id, app_id);
CREATE INDEX IF NOT EXISTS idx_tally_subs_status ON tally_subscriptions (app_id, status);
`,
	},
	{
		Version: "20240101000004",
		Name:    "create_tally_usage_events",
		Up: `
CREATE TABLE IF NOT EXISTS tally_usage_events (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL DEFAULT '',
    subscription_id TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    meter_key       TEXT NOT NULL DEFAULT '',
    quantity        DOUBLE PRECISION NOT NULL DEFAULT 0,
    ts              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    idempotency_key TEXT,
    properties      JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_tally_usage_lookup
    ON tally_usage_events (customer_id, app_id, meter_key, ts);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_usage_idem
    ON tally_usage_events (idempotency_key) WHERE idempotency_key IS NOT NULL;
`,
	},
	{
		Version: "20240101000005",
		Name:    "create_tally_usage_summaries",
		Up: `
CREATE TABLE IF NOT EXISTS tally_usage_summaries (
    id               TEXT PRIMARY KEY,
    customer_id      TEXT NOT NULL DEFAULT '',
    subscription_id  TEXT NOT NULL DEFAULT '',
    app_id           TEXT NOT NULL DEFAULT '',
    meter_key        TEXT NOT NULL DEFAULT '',
    period_start     TIMESTAMPTZ NOT NULL,
    period_end       TIMESTAMPTZ NOT NULL,
    aggregated_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    event_count      INT NOT NULL DEFAULT 0,
    amount           BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT '',
    breakdown        JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_summaries_period
    ON tally_usage_summaries (customer_id, app_id, period_start, period_end);
`,
	},
	{
		Version: "20240101000006",
		Name:    "create_tally_entitlement_cache",
		Up: `
CREATE TABLE IF NOT EXISTS tally_entitlement_cache (
    cache_key  TEXT PRIMARY KEY,
    result     JSONB NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`,
	},
	{
		Version: "20240101000007",
		Name:    "create_tally_invoices",
		Up: `
CREATE TABLE IF NOT EXISTS tally_invoices (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL DEFAULT '',
    subscription_id TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'draft',
    currency        TEXT NOT NULL DEFAULT '',
    subtotal        BIGINT NOT NULL DEFAULT 0,
    tax_amount      BIGINT NOT NULL DEFAULT 0,
    discount_amount BIGINT NOT NULL DEFAULT 0,
    total           BIGINT NOT NULL DEFAULT 0,
    line_items      JSONB NOT NULL DEFAULT '[]',
    period_start    TIMESTAMPTZ NOT NULL,
    period_end      TIMESTAMPTZ NOT NULL,
    due_date        TIMESTAMPTZ,
    paid_at         TIMESTAMPTZ,
    voided_at       TIMESTAMPTZ,
    void_reason     TEXT NOT NULL DEFAULT '',
    payment_ref     TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_invoices_customer ON tally_invoices (customer_id, app_id);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_status ON tally_invoices (app_id, status);
`,
	},
}

// runMigrations applies pending migrations in version order inside a single
// transaction per step.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tally_schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("tally/postgres: create migration table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tally_schema_migrations WHERE version = $1)`,
			m.Version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("tally/postgres: check migration %s: %w", m.Version, err)
		}
		if applied {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("tally/postgres: begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("tally/postgres: apply %s (%s): %w", m.Name, m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tally_schema_migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("tally/postgres: record %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tally/postgres: commit %s: %w", m.Version, err)
		}
	}
	return nil
}
