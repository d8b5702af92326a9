package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

type countingStore struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
	gets  int
}

func (s *countingStore) Create(_ context.Context, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[c.ID] = *c
	return nil
}

func (s *countingStore) Get(_ context.Context, id string) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	c, ok := s.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return &c, nil
}

func (s *countingStore) Update(_ context.Context, id string, p cart.Patch) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	if p.ExpectStatus != "" && c.Status != p.ExpectStatus {
		return nil, cart.ErrConflict
	}
	p.Apply(&c)
	s.carts[id] = c
	return &c, nil
}

func setupTestCache(t *testing.T) (*CartCache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &countingStore{carts: make(map[string]cart.Cart)}
	return NewCartCache(store, client, time.Minute), store, mr
}

func testCart() *cart.Cart {
	return &cart.Cart{
		ID:     "c1",
		Status: cart.StatusActive,
		Lines: []cart.Line{{
			ProductID: "tee",
			Title:     "Tee",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("20.00"),
		}},
		Subtotal: decimal.RequireFromString("40.00"),
		AppliedDiscounts: []discount.Applied{{
			Title:  "10% off",
			Type:   discount.KindPercentage,
			Amount: decimal.RequireFromString("4.00"),
		}},
		Total:    decimal.RequireFromString("36.00"),
		Currency: "usd",
	}
}

func TestCartCache_ReadThrough(t *testing.T) {
	cache, store, mr := setupTestCache(t)
	ctx := context.Background()
	store.carts["c1"] = *testCart()

	got, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.True(t, mr.Exists(cacheKey("c1")))

	got, err = cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)
	assert.True(t, decimal.RequireFromString("36").Equal(got.Total))
	require.Len(t, got.AppliedDiscounts, 1)
	assert.Equal(t, discount.KindPercentage, got.AppliedDiscounts[0].Type)

	ttl := mr.TTL(cacheKey("c1"))
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.Less(t, ttl, 6*time.Minute)
}

func TestCartCache_CreateAndUpdateWriteThrough(t *testing.T) {
	cache, store, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Create(ctx, testCart()))

	email := "a@example.com"
	_, err := cache.Update(ctx, "c1", cart.Patch{Email: &email})
	require.NoError(t, err)

	got, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, email, got.Email)
	assert.Zero(t, store.gets)
}

func TestCartCache_FailedUpdateEvicts(t *testing.T) {
	cache, store, mr := setupTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Create(ctx, testCart()))

	c := store.carts["c1"]
	c.Status = cart.StatusCompleted
	store.carts["c1"] = c

	total := decimal.Zero
	_, err := cache.Update(ctx, "c1", cart.Patch{Total: &total, ExpectStatus: cart.StatusActive})
	require.ErrorIs(t, err, cart.ErrConflict)
	assert.False(t, mr.Exists(cacheKey("c1")))

	got, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, cart.StatusCompleted, got.Status)
}

func TestCartCache_RedisDownFallsBack(t *testing.T) {
	cache, store, mr := setupTestCache(t)
	ctx := context.Background()
	store.carts["c1"] = *testCart()
	mr.Close()

	got, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	_, err = cache.Get(ctx, "missing")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestCartCache_RoundTripsAllFields(t *testing.T) {
	cache, store, mr := setupTestCache(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	completed := created.Add(time.Hour)
	want := testCart()
	want.CustomerID = "cust-1"
	want.Email = "ann@example.com"
	want.ShippingMethod = "standard"
	want.ShippingTotal = decimal.RequireFromString("8.00")
	want.PromoCode = "SHIPFREE"
	want.PromoType = cart.FreeShippingPromo
	want.PromoDiscount = decimal.RequireFromString("8.00")
	want.LoyaltyPoints = 120
	want.CreatedAt = created
	want.UpdatedAt = created
	want.CompletedAt = &completed
	require.NoError(t, cache.Create(ctx, want))

	blob, err := mr.Get(cacheKey("c1"))
	require.NoError(t, err)
	assert.Contains(t, blob, `"total":"36.00"`)
	assert.Contains(t, blob, `"completed_at":"2025-06-15T13:00:00Z"`)

	got, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, store.gets)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.PromoType, got.PromoType)
	assert.Equal(t, 120, got.LoyaltyPoints)
	assert.True(t, want.ShippingTotal.Equal(got.ShippingTotal))
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, want.Lines[0].ProductID, got.Lines[0].ProductID)
	assert.True(t, want.Lines[0].UnitPrice.Equal(got.Lines[0].UnitPrice))
}

func TestCartCache_CorruptEntryFallsBack(t *testing.T) {
	cache, store, mr := setupTestCache(t)
	ctx := context.Background()
	store.carts["c1"] = *testCart()
	require.NoError(t, mr.Set(cacheKey("c1"), `{"id":`))

	got, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, 1, store.gets)
}
