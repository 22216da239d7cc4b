package sqlite

// Entities are stored document-style: indexed lookup columns plus a JSON
// payload. Usage events get real columns since they are aggregated in SQL.
const schema = `
CREATE TABLE IF NOT EXISTS tally_plans (
    id     TEXT PRIMARY KEY,
    slug   TEXT NOT NULL DEFAULT '',
    app_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    data   TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_plans_slug_app ON tally_plans (slug, app_id);

CREATE TABLE IF NOT EXISTS tally_meters (
    id     TEXT PRIMARY KEY,
    key    TEXT NOT NULL,
    app_id TEXT NOT NULL DEFAULT '',
    data   TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_meters_key_app ON tally_meters (key, app_id);

CREATE TABLE IF NOT EXISTS tally_subscriptions (
    id          TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL DEFAULT '',
    app_id      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'active',
    data        TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tally_subs_customer ON tally_subscriptions (customer_id, app_id);

CREATE TABLE IF NOT EXISTS tally_usage_events (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL DEFAULT '',
    subscription_id TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    meter_key       TEXT NOT NULL DEFAULT '',
    quantity        REAL NOT NULL DEFAULT 0,
    ts              TIMESTAMP NOT NULL,
    idempotency_key TEXT UNIQUE,
    properties      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_tally_usage_lookup
    ON tally_usage_events (customer_id, app_id, meter_key, ts);

CREATE TABLE IF NOT EXISTS tally_usage_summaries (
    id           TEXT PRIMARY KEY,
    customer_id  TEXT NOT NULL DEFAULT '',
    app_id       TEXT NOT NULL DEFAULT '',
    meter_key    TEXT NOT NULL DEFAULT '',
    period_start TIMESTAMP NOT NULL,
    period_end   TIMESTAMP NOT NULL,
    data         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tally_summaries_period
    ON tally_usage_summaries (customer_id, app_id, period_start, period_end);

CREATE TABLE IF NOT EXISTS tally_entitlement_cache (
    cache_key  TEXT PRIMARY KEY,
    result     TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tally_invoices (
    id           TEXT PRIMARY KEY,
    customer_id  TEXT NOT NULL DEFAULT '',
    app_id       TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'draft',
    period_start TIMESTAMP NOT NULL,
    period_end   TIMESTAMP NOT NULL,
    data         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_customer ON tally_invoices (customer_id, app_id);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_status ON tally_invoices (app_id, status);
`
