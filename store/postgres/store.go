// Package postgres implements the unified store on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/xraph/tally"
	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/meter"
	"github.com/xraph/tally/plan"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/usage"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

const planColumns = `id, name, slug, description, currency, status, trial_days,
	base_amount, interval, interval_count, features, meters, prices,
	app_id, metadata, created_at, updated_at`

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	r, err := toPlanRow(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_plans (`+planColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.Name, r.Slug, r.Description, r.Currency, r.Status, r.TrialDays,
		r.BaseAmount, r.Interval, r.IntervalCount, r.Features, r.Meters, r.Prices,
		r.AppID, r.Metadata, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) scanPlan(row *sql.Row) (*plan.Plan, error) {
	var r planRow
	err := row.Scan(&r.ID, &r.Name, &r.Slug, &r.Description, &r.Currency, &r.Status,
		&r.TrialDays, &r.BaseAmount, &r.Interval, &r.IntervalCount,
		&r.Features, &r.Meters, &r.Prices, &r.AppID, &r.Metadata,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromPlanRow(&r)
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM tally_plans WHERE id = $1`, planID.String())
	return s.scanPlan(row)
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug, appID string) (*plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM tally_plans WHERE slug = $1 AND app_id = $2`, slug, appID)
	return s.scanPlan(row)
}

func (s *Store) ListPlans(ctx context.Context, appID string, opts plan.ListOpts) ([]*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM tally_plans WHERE app_id = $1`
	args := []interface{}{appID}
	if opts.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*plan.Plan
	for rows.Next() {
		var r planRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Slug, &r.Description, &r.Currency,
			&r.Status, &r.TrialDays, &r.BaseAmount, &r.Interval, &r.IntervalCount,
			&r.Features, &r.Meters, &r.Prices, &r.AppID, &r.Metadata,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		p, err := fromPlanRow(&r)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	r, err := toPlanRow(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_plans SET name=$2, slug=$3, description=$4, currency=$5,
			status=$6, trial_days=$7, base_amount=$8, interval=$9,
			interval_count=$10, features=$11, meters=$12, prices=$13,
			metadata=$14, updated_at=NOW()
		WHERE id = $1`,
		r.ID, r.Name, r.Slug, r.Description, r.Currency, r.Status, r.TrialDays,
		r.BaseAmount, r.Interval, r.IntervalCount, r.Features, r.Meters, r.Prices,
		r.Metadata)
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrPlanNotFound)
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tally_plans WHERE id = $1`, planID.String())
	return err
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tally_plans SET status = $2, updated_at = NOW() WHERE id = $1`,
		planID.String(), string(plan.StatusArchived))
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrPlanNotFound)
}

// ==================== Meter Store ====================

func (s *Store) CreateMeter(ctx context.Context, m *meter.Meter) error {
	metadata, err := marshalMetadata(m.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_meters (id, key, name, unit, aggregation, active, app_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID.String(), m.Key, m.Name, m.Unit, string(m.Aggregation), m.Active,
		m.AppID, metadata, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return tally.ErrDuplicateMeter
	}
	return err
}

func (s *Store) GetMeter(ctx context.Context, key, appID string) (*meter.Meter, error) {
	var (
		mID, mKey, name, unit, aggregation, rowAppID string
		active                                       bool
		metadata                                     []byte
		createdAt, updatedAt                         time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, key, name, unit, aggregation, active, app_id, metadata, created_at, updated_at
		FROM tally_meters WHERE key = $1 AND app_id = $2`, key, appID).
		Scan(&mID, &mKey, &name, &unit, &aggregation, &active, &rowAppID, &metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrMeterNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromMeterRow(mID, mKey, name, unit, aggregation, active, rowAppID, metadata, createdAt, updatedAt)
}

func (s *Store) ListMeters(ctx context.Context, appID string) ([]*meter.Meter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, name, unit, aggregation, active, app_id, metadata, created_at, updated_at
		FROM tally_meters WHERE app_id = $1 ORDER BY key`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*meter.Meter
	for rows.Next() {
		var (
			mID, mKey, name, unit, aggregation, rowAppID string
			active                                       bool
			metadata                                     []byte
			createdAt, updatedAt                         time.Time
		)
		if err := rows.Scan(&mID, &mKey, &name, &unit, &aggregation, &active,
			&rowAppID, &metadata, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		m, err := fromMeterRow(mID, mKey, name, unit, aggregation, active, rowAppID, metadata, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) UpdateMeter(ctx context.Context, m *meter.Meter) error {
	metadata, err := marshalMetadata(m.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_meters SET name=$3, unit=$4, aggregation=$5, active=$6,
			metadata=$7, updated_at=NOW()
		WHERE key = $1 AND app_id = $2`,
		m.Key, m.AppID, m.Name, m.Unit, string(m.Aggregation), m.Active, metadata)
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrMeterNotFound)
}

// ==================== Subscription Store ====================

const subscriptionColumns = `id, customer_id, plan_id, status, interval, interval_count,
	anchor_at, current_period_start, current_period_end,
	trial_start, trial_end, canceled_at, cancel_at, ended_at,
	app_id, metadata, created_at, updated_at`

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	r, err := toSubscriptionRow(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		r.ID, r.CustomerID, r.PlanID, r.Status, r.Interval, r.IntervalCount,
		r.AnchorAt, r.CurrentPeriodStart, r.CurrentPeriodEnd,
		r.TrialStart, r.TrialEnd, r.CanceledAt, r.CancelAt, r.EndedAt,
		r.AppID, r.Metadata, r.CreatedAt, r.UpdatedAt)
	return err
}

func scanSubscription(scanner interface{ Scan(...interface{}) error }) (*subscription.Subscription, error) {
	var r subscriptionRow
	err := scanner.Scan(&r.ID, &r.CustomerID, &r.PlanID, &r.Status, &r.Interval,
		&r.IntervalCount, &r.AnchorAt, &r.CurrentPeriodStart, &r.CurrentPeriodEnd,
		&r.TrialStart, &r.TrialEnd, &r.CanceledAt, &r.CancelAt, &r.EndedAt,
		&r.AppID, &r.Metadata, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return fromSubscriptionRow(&r)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM tally_subscriptions WHERE id = $1`, subID.String())
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID, appID string) (*subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM tally_subscriptions
		WHERE customer_id = $1 AND app_id = $2 AND status IN ('active','trialing')
		ORDER BY created_at DESC LIMIT 1`, customerID, appID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrNoActiveSubscription
	}
	return sub, err
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID, appID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM tally_subscriptions WHERE customer_id = $1 AND app_id = $2`
	args := []interface{}{customerID, appID}
	if opts.Status != "" {
		query += ` AND status = $3`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	r, err := toSubscriptionRow(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tally_subscriptions SET status=$2, interval=$3, interval_count=$4,
			anchor_at=$5, current_period_start=$6, current_period_end=$7,
			trial_start=$8, trial_end=$9, canceled_at=$10, cancel_at=$11,
			ended_at=$12, metadata=$13, updated_at=NOW()
		WHERE id = $1`,
		r.ID, r.Status, r.Interval, r.IntervalCount, r.AnchorAt,
		r.CurrentPeriodStart, r.CurrentPeriodEnd, r.TrialStart, r.TrialEnd,
		r.CanceledAt, r.CancelAt, r.EndedAt, r.Metadata)
	return err
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_subscriptions SET
			cancel_at = $2,
			status = CASE WHEN $2 <= $3 THEN 'canceled' ELSE status END,
			canceled_at = CASE WHEN $2 <= $3 THEN $3 ELSE canceled_at END,
			updated_at = $3
		WHERE id = $1`, subID.String(), cancelAt, now)
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrSubscriptionNotFound)
}

// ==================== Usage event Store ====================

func (s *Store) IngestBatch(ctx context.Context, events []*meter.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Duplicate idempotency keys are silently skipped via the partial unique
	// index.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tally_usage_events
			(id, customer_id, subscription_id, app_id, meter_key, quantity, ts, idempotency_key, properties)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		properties, err := marshalMetadata(e.Properties)
		if err != nil {
			return err
		}
		var idemKey sql.NullString
		if e.IdempotencyKey != "" {
			idemKey = sql.NullString{String: e.IdempotencyKey, Valid: true}
		}
		var subID string
		if !e.SubscriptionID.IsNil() {
			subID = e.SubscriptionID.String()
		}
		if _, err := stmt.ExecContext(ctx, e.ID.String(), e.CustomerID, subID,
			e.AppID, e.MeterKey, e.Quantity, e.Timestamp, idemKey, properties); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Aggregate(ctx context.Context, customerID, appID, meterKey string, start, end time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM tally_usage_events
		WHERE customer_id = $1 AND app_id = $2 AND meter_key = $3
			AND ($4::timestamptz IS NULL OR ts >= $4)
			AND ($5::timestamptz IS NULL OR ts < $5)`,
		customerID, appID, meterKey, nullTimeValue(start), nullTimeValue(end)).Scan(&total)
	return total, err
}

func (s *Store) AggregateMulti(ctx context.Context, customerID, appID string, meterKeys []string, start, end time.Time) (map[string]float64, error) {
	result := make(map[string]float64)
	for _, key := range meterKeys {
		total, err := s.Aggregate(ctx, customerID, appID, key, start, end)
		if err != nil {
			return nil, err
		}
		result[key] = total
	}
	return result, nil
}

func (s *Store) QueryUsage(ctx context.Context, customerID, appID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	query := `
		SELECT id, customer_id, subscription_id, app_id, meter_key, quantity, ts, idempotency_key, properties
		FROM tally_usage_events
		WHERE customer_id = $1 AND app_id = $2
			AND ($3 = '' OR meter_key = $3)
			AND ($4::timestamptz IS NULL OR ts >= $4)
			AND ($5::timestamptz IS NULL OR ts < $5)
		ORDER BY ts`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, customerID, appID, opts.MeterKey,
		nullTimeValue(opts.Start), nullTimeValue(opts.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*meter.UsageEvent
	for rows.Next() {
		var (
			eID, rowCustomerID, subID, rowAppID, rowMeterKey string
			quantity                                         float64
			ts                                               time.Time
			idemKey                                          sql.NullString
			properties                                       []byte
		)
		if err := rows.Scan(&eID, &rowCustomerID, &subID, &rowAppID, &rowMeterKey,
			&quantity, &ts, &idemKey, &properties); err != nil {
			return nil, err
		}
		e, err := fromEventRow(eID, rowCustomerID, subID, rowAppID, rowMeterKey, quantity, ts, idemKey, properties)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tally_usage_events WHERE ts < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Usage summary Store ====================

func (s *Store) SaveSummary(ctx context.Context, sum *usage.Summary) error {
	r, err := toSummaryRow(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_usage_summaries
			(id, customer_id, subscription_id, app_id, meter_key, period_start, period_end,
			 aggregated_value, event_count, amount, currency, breakdown, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			aggregated_value = EXCLUDED.aggregated_value,
			event_count      = EXCLUDED.event_count,
			amount           = EXCLUDED.amount,
			breakdown        = EXCLUDED.breakdown,
			updated_at       = NOW()`,
		r.ID, r.CustomerID, r.SubscriptionID, r.AppID, r.MeterKey, r.PeriodStart,
		r.PeriodEnd, r.AggregatedValue, r.EventCount, r.Amount, r.Currency,
		r.Breakdown, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) ListSummaries(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) ([]*usage.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, subscription_id, app_id, meter_key, period_start, period_end,
			aggregated_value, event_count, amount, currency, breakdown, created_at, updated_at
		FROM tally_usage_summaries
		WHERE customer_id = $1 AND app_id = $2 AND period_start = $3 AND period_end = $4
		ORDER BY meter_key`, customerID, appID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*usage.Summary
	for rows.Next() {
		var r summaryRow
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.SubscriptionID, &r.AppID,
			&r.MeterKey, &r.PeriodStart, &r.PeriodEnd, &r.AggregatedValue,
			&r.EventCount, &r.Amount, &r.Currency, &r.Breakdown,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		sum, err := fromSummaryRow(&r)
		if err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// ==================== Entitlement cache Store ====================

func cacheKey(customerID, appID, featureKey string) string {
	return customerID + ":" + appID + ":" + featureKey
}

func (s *Store) GetCached(ctx context.Context, customerID, appID, featureKey string) (*entitlement.Result, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM tally_entitlement_cache
		WHERE cache_key = $1 AND expires_at > NOW()`,
		cacheKey(customerID, appID, featureKey)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalCachedResult(data)
}

func (s *Store) SetCached(ctx context.Context, customerID, appID, featureKey string, result *entitlement.Result, ttl time.Duration) error {
	data, err := marshalCachedResult(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_entitlement_cache (cache_key, result, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET result = EXCLUDED.result, expires_at = EXCLUDED.expires_at`,
		cacheKey(customerID, appID, featureKey), data, time.Now().Add(ttl))
	return err
}

func (s *Store) Invalidate(ctx context.Context, customerID, appID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tally_entitlement_cache WHERE cache_key LIKE $1`,
		customerID+":"+appID+":%")
	return err
}

func (s *Store) InvalidateFeature(ctx context.Context, customerID, appID, featureKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tally_entitlement_cache WHERE cache_key = $1`,
		cacheKey(customerID, appID, featureKey))
	return err
}

// ==================== Invoice Store ====================

const invoiceColumns = `id, customer_id, subscription_id, status, currency,
	subtotal, tax_amount, discount_amount, total, line_items,
	period_start, period_end, due_date, paid_at, voided_at,
	void_reason, payment_ref, app_id, metadata, created_at, updated_at`

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	r, err := toInvoiceRow(inv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		r.ID, r.CustomerID, r.SubscriptionID, r.Status, r.Currency,
		r.Subtotal, r.TaxAmount, r.DiscountAmount, r.Total, r.LineItems,
		r.PeriodStart, r.PeriodEnd, r.DueDate, r.PaidAt, r.VoidedAt,
		r.VoidReason, r.PaymentRef, r.AppID, r.Metadata, r.CreatedAt, r.UpdatedAt)
	return err
}

func scanInvoice(scanner interface{ Scan(...interface{}) error }) (*invoice.Invoice, error) {
	var r invoiceRow
	err := scanner.Scan(&r.ID, &r.CustomerID, &r.SubscriptionID, &r.Status,
		&r.Currency, &r.Subtotal, &r.TaxAmount, &r.DiscountAmount, &r.Total,
		&r.LineItems, &r.PeriodStart, &r.PeriodEnd, &r.DueDate, &r.PaidAt,
		&r.VoidedAt, &r.VoidReason, &r.PaymentRef, &r.AppID, &r.Metadata,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return fromInvoiceRow(&r)
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM tally_invoices WHERE id = $1`, invID.String())
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrInvoiceNotFound
	}
	return inv, err
}

func (s *Store) ListInvoices(ctx context.Context, customerID, appID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM tally_invoices WHERE customer_id = $1 AND app_id = $2`
	args := []interface{}{customerID, appID}
	if opts.Status != "" {
		query += ` AND status = $3`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY period_start`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	r, err := toInvoiceRow(inv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tally_invoices SET status=$2, subtotal=$3, tax_amount=$4,
			discount_amount=$5, total=$6, line_items=$7, due_date=$8,
			paid_at=$9, voided_at=$10, void_reason=$11, payment_ref=$12,
			metadata=$13, updated_at=NOW()
		WHERE id = $1`,
		r.ID, r.Status, r.Subtotal, r.TaxAmount, r.DiscountAmount, r.Total,
		r.LineItems, r.DueDate, r.PaidAt, r.VoidedAt, r.VoidReason,
		r.PaymentRef, r.Metadata)
	return err
}

func (s *Store) GetInvoiceByPeriod(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+` FROM tally_invoices
		WHERE customer_id = $1 AND app_id = $2 AND period_start = $3 AND period_end = $4`,
		customerID, appID, periodStart, periodEnd)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrInvoiceNotFound
	}
	return inv, err
}

func (s *Store) ListPendingInvoices(ctx context.Context, appID string) ([]*invoice.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM tally_invoices
		WHERE app_id = $1 AND status = 'pending' ORDER BY period_start`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_invoices SET status='paid', paid_at=$2, payment_ref=$3, updated_at=NOW()
		WHERE id = $1`, invID.String(), paidAt, paymentRef)
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrInvoiceNotFound)
}

func (s *Store) MarkInvoiceVoided(ctx context.Context, invID id.InvoiceID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_invoices SET status='voided', voided_at=NOW(), void_reason=$2, updated_at=NOW()
		WHERE id = $1`, invID.String(), reason)
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrInvoiceNotFound)
}

// ==================== Helpers ====================

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTimeValue(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// lib/pq unique_violation
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
