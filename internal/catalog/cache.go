package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// CachedRepository reads through Redis and invalidates on every write.
// Cache errors are logged and the call falls through to the wrapped repository.
type CachedRepository struct {
	inner  Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ Repository = (*CachedRepository)(nil)

func NewCachedRepository(inner Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if inner == nil {
		panic("catalog: inner repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{inner: inner, redis: client, ttl: ttl, logger: logger}
}

func itemCacheKey(kind Kind, id string) string { return fmt.Sprintf("catalog:item:%s:%s", kind, id) }
func listCacheKey(kind Kind) string            { return fmt.Sprintf("catalog:list:%s", kind) }

func (c *CachedRepository) Get(ctx context.Context, kind Kind, id string) (*Item, error) {
	key := itemCacheKey(kind, id)
	var cached Item
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}
	item, err := c.inner.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, item)
	return item, nil
}

func (c *CachedRepository) List(ctx context.Context, kind Kind) ([]*Item, error) {
	key := listCacheKey(kind)
	var cached []*Item
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	items, err := c.inner.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, items)
	return items, nil
}

func (c *CachedRepository) Create(ctx context.Context, item *Item) error {
	if err := c.inner.Create(ctx, item); err != nil {
		return err
	}
	c.invalidate(ctx, item.Kind, item.ID)
	return nil
}

func (c *CachedRepository) Replace(ctx context.Context, item *Item, expectedVersion int64) error {
	err := c.inner.Replace(ctx, item, expectedVersion)
	// A failed conditional write may mean our cached copy is stale.
	c.invalidate(ctx, item.Kind, item.ID)
	return err
}

func (c *CachedRepository) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("catalog cache read failed", "error", err, "key", key)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("catalog cache entry unreadable", "error", err, "key", key)
		return false
	}
	return true
}

func (c *CachedRepository) store(ctx context.Context, key string, v any) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", "error", err, "key", key)
	}
}

func (c *CachedRepository) invalidate(ctx context.Context, kind Kind, id string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, itemCacheKey(kind, id), listCacheKey(kind)).Err(); err != nil {
		c.logger.Error("catalog cache invalidation failed", "error", err, "kind", string(kind), "item_id", id)
	}
}
