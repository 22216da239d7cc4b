// Package mongo implements the unified store on MongoDB via the official
// driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

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

// Collection name constants.
const (
	colPlans         = "tally_plans"
	colMeters        = "tally_meters"
	colSubscriptions = "tally_subscriptions"
	colUsageEvents   = "tally_usage_events"
	colSummaries     = "tally_usage_summaries"
	colEntitlements  = "tally_entitlement_cache"
	colInvoices      = "tally_invoices"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps a connected client and database name.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Open connects to MongoDB with the given URI and database name.
func Open(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: connect: %w", err)
	}
	return New(client, database), nil
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colPlans: {
			{Keys: bson.D{{Key: "slug", Value: 1}, {Key: "app_id", Value: 1}},
				Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colMeters: {
			{Keys: bson.D{{Key: "key", Value: 1}, {Key: "app_id", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "app_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colUsageEvents: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "app_id", Value: 1}, {Key: "meter_key", Value: 1}, {Key: "ts", Value: 1}}},
			{Keys: bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(
					bson.D{{Key: "idempotency_key", Value: bson.D{{Key: "$exists", Value: true}}}})},
		},
		colSummaries: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "app_id", Value: 1}, {Key: "period_start", Value: 1}, {Key: "period_end", Value: 1}}},
		},
		colEntitlements: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0)},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "app_id", Value: 1}}},
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.col(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	doc, err := toPlanDoc(p)
	if err != nil {
		return err
	}
	if _, err := s.col(colPlans).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) findPlan(ctx context.Context, filter bson.M) (*plan.Plan, error) {
	var doc planDoc
	err := s.col(colPlans).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tally.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromPlanDoc(&doc)
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.findPlan(ctx, bson.M{"_id": planID.String()})
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug, appID string) (*plan.Plan, error) {
	return s.findPlan(ctx, bson.M{"slug": slug, "app_id": appID})
}

func (s *Store) ListPlans(ctx context.Context, appID string, opts plan.ListOpts) ([]*plan.Plan, error) {
	filter := bson.M{"app_id": appID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.col(colPlans).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*plan.Plan
	for cursor.Next(ctx) {
		var doc planDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		p, err := fromPlanDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, cursor.Err()
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	doc, err := toPlanDoc(p)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now()
	res, err := s.col(colPlans).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return tally.ErrPlanNotFound
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	_, err := s.col(colPlans).DeleteOne(ctx, bson.M{"_id": planID.String()})
	return err
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.col(colPlans).UpdateOne(ctx,
		bson.M{"_id": planID.String()},
		bson.M{"$set": bson.M{"status": string(plan.StatusArchived), "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return tally.ErrPlanNotFound
	}
	return nil
}

// ==================== Meter Store ====================

func (s *Store) CreateMeter(ctx context.Context, m *meter.Meter) error {
	if _, err := s.col(colMeters).InsertOne(ctx, toMeterDoc(m)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrDuplicateMeter
		}
		return fmt.Errorf("tally/mongo: create meter: %w", err)
	}
	return nil
}

func (s *Store) GetMeter(ctx context.Context, key, appID string) (*meter.Meter, error) {
	var doc meterDoc
	err := s.col(colMeters).FindOne(ctx, bson.M{"key": key, "app_id": appID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tally.ErrMeterNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromMeterDoc(&doc)
}

func (s *Store) ListMeters(ctx context.Context, appID string) ([]*meter.Meter, error) {
	cursor, err := s.col(colMeters).Find(ctx, bson.M{"app_id": appID},
		options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*meter.Meter
	for cursor.Next(ctx) {
		var doc meterDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		m, err := fromMeterDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, cursor.Err()
}

func (s *Store) UpdateMeter(ctx context.Context, m *meter.Meter) error {
	doc := toMeterDoc(m)
	doc.UpdatedAt = time.Now()
	res, err := s.col(colMeters).ReplaceOne(ctx,
		bson.M{"key": m.Key, "app_id": m.AppID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return tally.ErrMeterNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if _, err := s.col(colSubscriptions).InsertOne(ctx, toSubscriptionDoc(sub)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var doc subscriptionDoc
	err := s.col(colSubscriptions).FindOne(ctx, bson.M{"_id": subID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tally.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSubscriptionDoc(&doc)
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID, appID string) (*subscription.Subscription, error) {
	var doc subscriptionDoc
	err := s.col(colSubscriptions).FindOne(ctx,
		bson.M{
			"customer_id": customerID,
			"app_id":      appID,
			"status":      bson.M{"$in": bson.A{"active", "trialing"}},
		},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tally.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	return fromSubscriptionDoc(&doc)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID, appID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{"customer_id": customerID, "app_id": appID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.col(colSubscriptions).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*subscription.Subscription
	for cursor.Next(ctx) {
		var doc subscriptionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		sub, err := fromSubscriptionDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, cursor.Err()
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	doc := toSubscriptionDoc(sub)
	doc.UpdatedAt = time.Now()
	_, err := s.col(colSubscriptions).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	return err
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt, now time.Time) error {
	update := bson.M{"cancel_at": cancelAt, "updated_at": now}
	if !cancelAt.After(now) {
		update["status"] = string(subscription.StatusCanceled)
		update["canceled_at"] = now
	}
	res, err := s.col(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": subID.String()}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return tally.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Usage event Store ====================

func (s *Store) IngestBatch(ctx context.Context, events []*meter.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(events))
	for _, e := range events {
		docs = append(docs, toUsageEventDoc(e))
	}

	// Unordered insert keeps going past duplicate idempotency keys.
	_, err := s.col(colUsageEvents).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !isOnlyDuplicates(err) {
		return fmt.Errorf("tally/mongo: ingest batch: %w", err)
	}
	return nil
}

// isOnlyDuplicates reports whether a bulk write failed solely on duplicate
// keys, which ingestion treats as success.
func isOnlyDuplicates(err error) bool {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		return false
	}
	for _, we := range bulkErr.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return len(bulkErr.WriteErrors) > 0
}

func (s *Store) Aggregate(ctx context.Context, customerID, appID, meterKey string, start, end time.Time) (float64, error) {
	match := bson.M{
		"customer_id": customerID,
		"app_id":      appID,
		"meter_key":   meterKey,
	}
	if tsFilter := windowFilter(start, end); tsFilter != nil {
		match["ts"] = tsFilter
	}

	cursor, err := s.col(colUsageEvents).Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$quantity"},
		}}},
	})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var out struct {
		Total float64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&out); err != nil {
			return 0, err
		}
	}
	return out.Total, cursor.Err()
}

func (s *Store) AggregateMulti(ctx context.Context, customerID, appID string, meterKeys []string, start, end time.Time) (map[string]float64, error) {
	result := make(map[string]float64, len(meterKeys))
	for _, key := range meterKeys {
		result[key] = 0
	}

	match := bson.M{
		"customer_id": customerID,
		"app_id":      appID,
		"meter_key":   bson.M{"$in": meterKeys},
	}
	if tsFilter := windowFilter(start, end); tsFilter != nil {
		match["ts"] = tsFilter
	}

	cursor, err := s.col(colUsageEvents).Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$meter_key",
			"total": bson.M{"$sum": "$quantity"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var out struct {
			MeterKey string  `bson:"_id"`
			Total    float64 `bson:"total"`
		}
		if err := cursor.Decode(&out); err != nil {
			return nil, err
		}
		result[out.MeterKey] = out.Total
	}
	return result, cursor.Err()
}

func (s *Store) QueryUsage(ctx context.Context, customerID, appID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	filter := bson.M{"customer_id": customerID, "app_id": appID}
	if opts.MeterKey != "" {
		filter["meter_key"] = opts.MeterKey
	}
	if tsFilter := windowFilter(opts.Start, opts.End); tsFilter != nil {
		filter["ts"] = tsFilter
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "ts", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.col(colUsageEvents).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*meter.UsageEvent
	for cursor.Next(ctx) {
		var doc usageEventDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		e, err := fromUsageEventDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, cursor.Err()
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.col(colUsageEvents).DeleteMany(ctx, bson.M{"ts": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ==================== Usage summary Store ====================

func (s *Store) SaveSummary(ctx context.Context, sum *usage.Summary) error {
	doc, err := toSummaryDoc(sum)
	if err != nil {
		return err
	}
	_, err = s.col(colSummaries).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (s *Store) ListSummaries(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) ([]*usage.Summary, error) {
	cursor, err := s.col(colSummaries).Find(ctx, bson.M{
		"customer_id":  customerID,
		"app_id":       appID,
		"period_start": periodStart,
		"period_end":   periodEnd,
	}, options.Find().SetSort(bson.D{{Key: "meter_key", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*usage.Summary
	for cursor.Next(ctx) {
		var doc summaryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		sum, err := fromSummaryDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, cursor.Err()
}

// ==================== Entitlement cache Store ====================

func cacheKey(customerID, appID, featureKey string) string {
	return customerID + ":" + appID + ":" + featureKey
}

func (s *Store) GetCached(ctx context.Context, customerID, appID, featureKey string) (*entitlement.Result, error) {
	var doc cacheDoc
	err := s.col(colEntitlements).FindOne(ctx, bson.M{
		"_id":        cacheKey(customerID, appID, featureKey),
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Result, nil
}

func (s *Store) SetCached(ctx context.Context, customerID, appID, featureKey string, result *entitlement.Result, ttl time.Duration) error {
	doc := cacheDoc{
		Key:       cacheKey(customerID, appID, featureKey),
		Result:    result,
		ExpiresAt: time.Now().Add(ttl),
	}
	_, err := s.col(colEntitlements).ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (s *Store) Invalidate(ctx context.Context, customerID, appID string) error {
	_, err := s.col(colEntitlements).DeleteMany(ctx, bson.M{
		"_id": bson.M{"$regex": "^" + customerID + ":" + appID + ":"},
	})
	return err
}

func (s *Store) InvalidateFeature(ctx context.Context, customerID, appID, featureKey string) error {
	_, err := s.col(colEntitlements).DeleteOne(ctx,
		bson.M{"_id": cacheKey(customerID, appID, featureKey)})
	return err
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	doc, err := toInvoiceDoc(inv)
	if err != nil {
		return err
	}
	if _, err := s.col(colInvoices).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("tally/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) findInvoice(ctx context.Context, filter bson.M) (*invoice.Invoice, error) {
	var doc invoiceDoc
	err := s.col(colInvoices).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tally.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromInvoiceDoc(&doc)
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"_id": invID.String()})
}

func (s *Store) ListInvoices(ctx context.Context, customerID, appID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"customer_id": customerID, "app_id": appID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "period_start", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.col(colInvoices).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*invoice.Invoice
	for cursor.Next(ctx) {
		var doc invoiceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		inv, err := fromInvoiceDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, cursor.Err()
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	doc, err := toInvoiceDoc(inv)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now()
	_, err = s.col(colInvoices).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	return err
}

func (s *Store) GetInvoiceByPeriod(ctx context.Context, customerID, appID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{
		"customer_id":  customerID,
		"app_id":       appID,
		"period_start": periodStart,
		"period_end":   periodEnd,
	})
}

func (s *Store) ListPendingInvoices(ctx context.Context, appID string) ([]*invoice.Invoice, error) {
	cursor, err := s.col(colInvoices).Find(ctx,
		bson.M{"app_id": appID, "status": string(invoice.StatusPending)},
		options.Find().SetSort(bson.D{{Key: "period_start", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*invoice.Invoice
	for cursor.Next(ctx) {
		var doc invoiceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		inv, err := fromInvoiceDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, cursor.Err()
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	res, err := s.col(colInvoices).UpdateOne(ctx,
		bson.M{"_id": invID.String()},
		bson.M{"$set": bson.M{
			"status":      string(invoice.StatusPaid),
			"paid_at":     paidAt,
			"payment_ref": paymentRef,
			"updated_at":  time.Now(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return tally.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) MarkInvoiceVoided(ctx context.Context, invID id.InvoiceID, reason string) error {
	res, err := s.col(colInvoices).UpdateOne(ctx,
		bson.M{"_id": invID.String()},
		bson.M{"$set": bson.M{
			"status":      string(invoice.StatusVoided),
			"voided_at":   time.Now(),
			"void_reason": reason,
			"updated_at":  time.Now(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return tally.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Helpers ====================

func windowFilter(start, end time.Time) bson.M {
	if start.IsZero() && end.IsZero() {
		return nil
	}
	filter := bson.M{}
	if !start.IsZero() {
		filter["$gte"] = start
	}
	if !end.IsZero() {
		filter["$lt"] = end
	}
	return filter
}
