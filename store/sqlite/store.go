// Package sqlite implements the unified store on SQLite via mattn/go-sqlite3.
// Entities are stored as JSON documents with indexed lookup columns, which
// keeps the embedded backend simple; usage events get real columns so
// aggregation stays in SQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

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

type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) the SQLite database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: open: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	return New(db), nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("tally/sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_plans (id, slug, app_id, status, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Slug, p.AppID, string(p.Status), string(data), p.CreatedAt)
	if isConstraintErr(err) {
		return tally.ErrAlreadyExists
	}
	return err
}

func (s *Store) getPlanWhere(ctx context.Context, where string, args ...interface{}) (*plan.Plan, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM tally_plans WHERE `+where, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.getPlanWhere(ctx, `id = ?`, planID.String())
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug, appID string) (*plan.Plan, error) {
	return s.getPlanWhere(ctx, `slug = ? AND app_id = ?`, slug, appID)
}

func (s *Store) ListPlans(ctx context.Context, appID string, opts plan.ListOpts) ([]*plan.Plan, error) {
	query := `SELECT data FROM tally_plans WHERE app_id = ?`
	args := []interface{}{appID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at`
	query, args = withLimitOffset(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*plan.Plan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p plan.Plan
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_plans SET slug = ?, status = ?, data = ? WHERE id = ?`,
		p.Slug, string(p.Status), string(data), p.ID.String())
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrPlanNotFound)
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tally_plans WHERE id = ?`, planID.String())
	return err
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	p, err := s.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	p.Status = plan.StatusArchived
	p.Touch()
	return s.UpdatePlan(ctx, p)
}

// ==================== Meter Store ====================

func (s *Store) CreateMeter(ctx context.Context, m *meter.Meter) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_meters (id, key, app_id, data) VALUES (?, ?, ?, ?)`,
		m.ID.String(), m.Key, m.AppID, string(data))
	if isConstraintErr(err) {
		return tally.ErrDuplicateMeter
	}
	return err
}

func (s *Store) GetMeter(ctx context.Context, key, appID string) (*meter.Meter, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM tally_meters WHERE key = ? AND app_id = ?`, key, appID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrMeterNotFound
	}
	if err != nil {
		return nil, err
	}
	var m meter.Meter
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMeters(ctx context.Context, appID string) ([]*meter.Meter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM tally_meters WHERE app_id = ? ORDER BY key`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*meter.Meter
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m meter.Meter
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (s *Store) UpdateMeter(ctx context.Context, m *meter.Meter) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tally_meters SET data = ? WHERE key = ? AND app_id = ?`,
		string(data), m.Key, m.AppID)
	if err != nil {
		return err
	}
	return checkAffected(res, tally.ErrMeterNotFound)
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_subscriptions (id, customer_id, app_id, status, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID.String(), sub.CustomerID, sub.AppID, string(sub.Status), string(data), sub.CreatedAt)
	if isConstraintErr(err) {
		return tally.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM tally_subscriptions WHERE id = ?`, subID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sub subscription.Subscription
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID, appID string) (*subscription.Subscription, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM tally_subscriptions
		WHERE customer_id = ? AND app_id = ? AND status IN ('active','trialing')
		ORDER BY created_at DESC LIMIT 1`, customerID, appID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	var sub subscription.Subscription
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID, appID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	query := `SELECT data FROM tally_subscriptions WHERE customer_id = ? AND app_id = ?`
	args := []interface{}{customerID, appID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at`
	query, args = withLimitOffset(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*subscription.Subscription
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sub subscription.Subscription
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, err
		}
		result = append(result, &sub)
	}
	return result, rows.Err()
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tally_subscriptions SET status = ?, data = ? WHERE id = ?`,
		string(sub.Status), string(data), sub.ID.String())
	return err
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt, now time.Time) error {
	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	sub.CancelAt = &cancelAt
	if !cancelAt.After(now) {
		sub.Status = subscription.StatusCanceled
		sub.CanceledAt = &now
	}
	sub.Touch()
	return s.UpdateSubscription(ctx, sub)
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

	// OR IGNORE drops rows whose idempotency key was already ingested.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO tally_usage_events
			(id, customer_id, subscription_id, app_id, meter_key, quantity, ts, idempotency_key, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		properties, err := json.Marshal(e.Properties)
		if err != nil {
			return err
		}
		var idemKey interface{}
		if e.IdempotencyKey != "" {
			idemKey = e.IdempotencyKey
		}
		var subID string
		if !e.SubscriptionID.IsNil() {
			subID = e.SubscriptionID.String()
		}
		if _, err := stmt.ExecContext(ctx, e.ID.String(), e.CustomerID, subID,
			e.AppID, e.MeterKey, e.Quantity, e.Timestamp, idemKey, string(properties)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Aggregate(ctx context.Context, customerID, appID, meterKey string, start, end time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(quantity), 0) FROM tally_usage_events
		WHERE customer_id = ? AND app_id = ? AND meter_key = ?`
	args := []interface{}{customerID, appID, meterKey}
	if !start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, start)
	}
	if !end.IsZero() {
		query += ` AND ts < ?`
		args = append(args, end)
	}

	var total float64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total)
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
		FROM tally_usage_events WHERE customer_id = ? AND app_id = ?`
	args := []interface{}{customerID, appID}
	if opts.MeterKey != "" {
		query += ` AND meter_key = ?`
		args = append(args, opts.MeterKey)
	}
	if !opts.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, opts.Start)
	}
	if !opts.End.IsZero() {
		query += ` AND ts < ?`
		args = append(args, opts.End)
	}
	query += ` ORDER BY ts`
	query, args = withLimitOffset(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
			properties                                       string
		)
		if err := rows.Scan(&eID, &rowCustomerID, &subID, &rowAppID, &rowMeterKey,
			&quantity, &ts, &idemKey, &properties); err != nil {
			return nil, err
		}

		eventID, err := id.ParseUsageEventID(eID)
		if err != nil {
			return nil, err
		}
		e := &meter.UsageEvent{
			ID:         eventID,
			CustomerID: rowCustomerID,
			AppID:      rowAppID,
			MeterKey:   rowMeterKey,
			Quantity:   quantity,
			Timestamp:  ts,
		}
		if subID != "" {
			if parsed, err := id.ParseSubscriptionID(subID); err == nil {
				e.SubscriptionID = parsed
			}
		}
		if idemKey.Valid {
			e.IdempotencyKey = idemKey.String
		}
		if properties != "" && properties != "null" && properties != "{}" {
			if err := json.Unmarshal([]byte(properties), &e.Properties); err != nil {
				return nil, err
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tally_usage_events WHERE ts < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Usage summary Store ====================

func (s *Store) SaveSummary(ctx context.Context, sum *usage.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_usage_summaries (id, customer_id, app_id, meter_key, period_start, period_end, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
		sum.ID.String(), sum.CustomerID, sum.AppID, sum.MeterKey,
		sum.PeriodStart, sum.PeriodEnd, string(data))
	return err
}

func (s *Store) ListSummaries(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) ([]*usage.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM tally_usage_summaries
		WHERE customer_id = ? AND app_id = ? AND period_start = ? AND period_end = ?
		ORDER BY meter_key`, customerID, appID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*usage.Summary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sum usage.Summary
		if err := json.Unmarshal([]byte(data), &sum); err != nil {
			return nil, err
		}
		result = append(result, &sum)
	}
	return result, rows.Err()
}

// ==================== Entitlement cache Store ====================

func cacheKey(customerID, appID, featureKey string) string {
	return customerID + ":" + appID + ":" + featureKey
}

func (s *Store) GetCached(ctx context.Context, customerID, appID, featureKey string) (*entitlement.Result, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM tally_entitlement_cache WHERE cache_key = ? AND expires_at > ?`,
		cacheKey(customerID, appID, featureKey), time.Now()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result entitlement.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) SetCached(ctx context.Context, customerID, appID, featureKey string, result *entitlement.Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_entitlement_cache (cache_key, result, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET result = excluded.result, expires_at = excluded.expires_at`,
		cacheKey(customerID, appID, featureKey), string(data), time.Now().Add(ttl))
	return err
}

func (s *Store) Invalidate(ctx context.Context, customerID, appID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tally_entitlement_cache WHERE cache_key LIKE ?`,
		customerID+":"+appID+":%")
	return err
}

func (s *Store) InvalidateFeature(ctx context.Context, customerID, appID, featureKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tally_entitlement_cache WHERE cache_key = ?`,
		cacheKey(customerID, appID, featureKey))
	return err
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tally_invoices (id, customer_id, app_id, status, period_start, period_end, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.CustomerID, inv.AppID, string(inv.Status),
		inv.PeriodStart, inv.PeriodEnd, string(data))
	return err
}

func (s *Store) getInvoiceWhere(ctx context.Context, where string, args ...interface{}) (*invoice.Invoice, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM tally_invoices WHERE `+where, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tally.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	var inv invoice.Invoice
	if err := json.Unmarshal([]byte(data), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return s.getInvoiceWhere(ctx, `id = ?`, invID.String())
}

func (s *Store) ListInvoices(ctx context.Context, customerID, appID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	query := `SELECT data FROM tally_invoices WHERE customer_id = ? AND app_id = ?`
	args := []interface{}{customerID, appID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY period_start`
	query, args = withLimitOffset(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*invoice.Invoice
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var inv invoice.Invoice
		if err := json.Unmarshal([]byte(data), &inv); err != nil {
			return nil, err
		}
		result = append(result, &inv)
	}
	return result, rows.Err()
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tally_invoices SET status = ?, data = ? WHERE id = ?`,
		string(inv.Status), string(data), inv.ID.String())
	return err
}

func (s *Store) GetInvoiceByPeriod(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	return s.getInvoiceWhere(ctx,
		`customer_id = ? AND app_id = ? AND period_start = ? AND period_end = ?`,
		customerID, appID, periodStart, periodEnd)
}

func (s *Store) ListPendingInvoices(ctx context.Context, appID string) ([]*invoice.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM tally_invoices WHERE app_id = ? AND status = 'pending'
		ORDER BY period_start`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*invoice.Invoice
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var inv invoice.Invoice
		if err := json.Unmarshal([]byte(data), &inv); err != nil {
			return nil, err
		}
		result = append(result, &inv)
	}
	return result, rows.Err()
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	inv, err := s.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentRef = paymentRef
	inv.Touch()
	return s.UpdateInvoice(ctx, inv)
}

func (s *Store) MarkInvoiceVoided(ctx context.Context, invID id.InvoiceID, reason string) error {
	inv, err := s.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	inv.Status = invoice.StatusVoided
	now := time.Now()
	inv.VoidedAt = &now
	inv.VoidReason = reason
	inv.Touch()
	return s.UpdateInvoice(ctx, inv)
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

func withLimitOffset(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	} else if offset > 0 {
		// SQLite requires LIMIT when OFFSET is present.
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}

func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
