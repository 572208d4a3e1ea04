package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// staleTTL bounds how long the fallback copy outlives the fresh entry. A
// merchant outage longer than this surfaces as a miss.
const staleTTL = 24 * time.Hour

// ProductCache implements ports.ProductCache using Redis. Every Set writes
// two copies: a fresh entry with the configured TTL and a long-lived stale
// entry served when the merchant API is unreachable.
type ProductCache struct {
	client *goredis.Client
	prefix string
}

// NewProductCache creates a new Redis-backed product cache.
func NewProductCache(client *goredis.Client) *ProductCache {
	return &ProductCache{
		client: client,
		prefix: "product:",
	}
}

func (c *ProductCache) key(merchantID uuid.UUID, productID string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, merchantID, productID)
}

func (c *ProductCache) staleKey(merchantID uuid.UUID, productID string) string {
	return fmt.Sprintf("%sstale:%s:%s", c.prefix, merchantID, productID)
}

// Get retrieves a fresh cached product. Returns nil, nil on miss.
func (c *ProductCache) Get(ctx context.Context, merchantID uuid.UUID, productID string) (*domain.Product, error) {
	return c.get(ctx, c.key(merchantID, productID))
}

// GetStale retrieves the long-lived fallback copy. Returns nil, nil on miss.
func (c *ProductCache) GetStale(ctx context.Context, merchantID uuid.UUID, productID string) (*domain.Product, error) {
	return c.get(ctx, c.staleKey(merchantID, productID))
}

func (c *ProductCache) get(ctx context.Context, key string) (*domain.Product, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis product get: %w", err)
	}

	var p domain.Product
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached product: %w", err)
	}
	return &p, nil
}

// Set stores a product under both the fresh and stale keys.
func (c *ProductCache) Set(ctx context.Context, merchantID uuid.UUID, productID string, product *domain.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	if err := c.client.Set(ctx, c.key(merchantID, productID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis product set: %w", err)
	}
	if err := c.client.Set(ctx, c.staleKey(merchantID, productID), data, staleTTL).Err(); err != nil {
		return fmt.Errorf("redis product set stale: %w", err)
	}
	return nil
}
