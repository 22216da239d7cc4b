// Package rediscache provides a Redis-backed entitlement cache for
// deployments where checks are served from multiple processes.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/tally/entitlement"
)

const scanBatchSize = 100

// compile-time interface check
var _ entitlement.Store = (*Cache)(nil)

// Cache implements entitlement.Store on Redis.
type Cache struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
	logger     *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides the default key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New wraps an existing client. The caller retains ownership and is
// responsible for closing it.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: "tally:ent",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open dials Redis at the given address and verifies connectivity.
func Open(addr string, opts ...Option) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tally/rediscache: connect: %w", err)
	}

	c := New(client, opts...)
	c.ownsClient = true
	return c, nil
}

func (c *Cache) key(customerID, appID, featureKey string) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, customerID, appID, featureKey)
}

// GetCached returns the cached result, or (nil, nil) on a miss.
func (c *Cache) GetCached(ctx context.Context, customerID, appID, featureKey string) (*entitlement.Result, error) {
	key := c.key(customerID, appID, featureKey)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tally/rediscache: get: %w", err)
	}

	var result entitlement.Result
	if err := json.Unmarshal(data, &result); err != nil {
		// Corrupt entry: drop it and report a miss.
		c.logger.Warn("dropping corrupt entitlement cache entry", "key", key, "error", err)
		_ = c.client.Del(ctx, key)
		return nil, nil
	}
	return &result, nil
}

// SetCached stores the result with the given TTL.
func (c *Cache) SetCached(ctx context.Context, customerID, appID, featureKey string, result *entitlement.Result, ttl time.Duration) error {
	if result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("tally/rediscache: marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(customerID, appID, featureKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("tally/rediscache: set: %w", err)
	}
	return nil
}

// Invalidate removes every cached entitlement for a customer within an app.
func (c *Cache) Invalidate(ctx context.Context, customerID, appID string) error {
	pattern := fmt.Sprintf("%s:%s:%s:*", c.prefix, customerID, appID)

	// SCAN rather than KEYS to avoid blocking the server.
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("tally/rediscache: scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("tally/rediscache: del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// InvalidateFeature removes a single cached entitlement.
func (c *Cache) InvalidateFeature(ctx context.Context, customerID, appID, featureKey string) error {
	if err := c.client.Del(ctx, c.key(customerID, appID, featureKey)).Err(); err != nil {
		return fmt.Errorf("tally/rediscache: del: %w", err)
	}
	return nil
}

// Close releases the client if this cache opened it.
func (c *Cache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}
