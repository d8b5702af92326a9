// Package redis caches carts in Redis in front of the primary store.
package redis

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
)

const defaultTTL = 15 * time.Minute

var _ cart.Store = (*CartCache)(nil)

// CartCache is a read-through, write-through cart.Store decorator. Cache
// failures are logged and never fail the underlying operation.
type CartCache struct {
	next    cart.Store
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewCartCache wraps next with a Redis cache. A zero ttl selects the
// default; up to five minutes of jitter is added per entry.
func NewCartCache(next cart.Store, client redis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CartCache{next: next, client: client, baseTTL: ttl}
}

// Create stores the cart and caches it.
func (c *CartCache) Create(ctx context.Context, v *cart.Cart) error {
	if err := c.next.Create(ctx, v); err != nil {
		return err
	}
	c.set(ctx, v)
	return nil
}

// Get returns the cached cart, loading it from the store on a miss.
func (c *CartCache) Get(ctx context.Context, id string) (*cart.Cart, error) {
	cached, err := c.get(ctx, id)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		zctx.From(ctx).Warn("Cart cache read failed", zap.String("cart_id", id), zap.Error(err))
	}

	v, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, v)
	return v, nil
}

// Update writes through to the store and refreshes the cache. The entry is
// evicted when the store update fails.
func (c *CartCache) Update(ctx context.Context, id string, p cart.Patch) (*cart.Cart, error) {
	v, err := c.next.Update(ctx, id, p)
	if err != nil {
		c.evict(ctx, id)
		return nil, err
	}
	c.set(ctx, v)
	return v, nil
}

func (c *CartCache) get(ctx context.Context, id string) (*cart.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var v cart.Cart
	if err := v.Decode(jx.DecodeBytes(data)); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return &v, nil
}

func (c *CartCache) set(ctx context.Context, v *cart.Cart) {
	var e jx.Encoder
	v.Encode(&e)
	jitter := time.Duration(rand.IntN(5)) * time.Minute
	if err := c.client.Set(ctx, cacheKey(v.ID), e.Bytes(), c.baseTTL+jitter).Err(); err != nil {
		zctx.From(ctx).Warn("Cart cache write failed", zap.String("cart_id", v.ID), zap.Error(err))
	}
}

func (c *CartCache) evict(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		zctx.From(ctx).Warn("Cart cache evict failed", zap.String("cart_id", id), zap.Error(err))
	}
}

func cacheKey(id string) string {
	return "cart:" + id
}
