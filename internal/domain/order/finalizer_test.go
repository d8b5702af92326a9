package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/catalog"
)

// --- Mock implementations ---

type mockCarts struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func (m *mockCarts) Create(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.ID] = *c
	return nil
}

func (m *mockCarts) Get(_ context.Context, id string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return &c, nil
}

func (m *mockCarts) Update(_ context.Context, id string, p cart.Patch) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	if p.ExpectStatus != "" && c.Status != p.ExpectStatus {
		return nil, cart.ErrConflict
	}
	p.Apply(&c)
	m.carts[id] = c
	return &c, nil
}

type mockCatalog struct {
	products map[string]catalog.Product
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockOrders struct {
	orders []*Order
	byCart map[string]bool
}

func (m *mockOrders) Create(_ context.Context, o *Order) error {
	if m.byCart == nil {
		m.byCart = make(map[string]bool)
	}
	if m.byCart[o.CartID] {
		return ErrDuplicate
	}
	m.byCart[o.CartID] = true
	o.DisplayID = int64(1000 + len(m.orders) + 1)
	m.orders = append(m.orders, o)
	return nil
}

func (m *mockOrders) Get(_ context.Context, id string) (*Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

type recordingPublisher struct {
	events []Completed
}

func (p *recordingPublisher) Publish(_ context.Context, ev Completed) {
	p.events = append(p.events, ev)
}

type mockPayments struct {
	payment *Payment
}

func (m *mockPayments) Verify(_ context.Context, ref string) (*Payment, error) {
	p := *m.payment
	p.Ref = ref
	return &p, nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	carts     *mockCarts
	catalog   *mockCatalog
	orders    *mockOrders
	publisher *recordingPublisher
	finalizer *Finalizer
}

func newFixture(payments PaymentVerifier) *fixture {
	f := &fixture{
		carts: &mockCarts{carts: make(map[string]cart.Cart)},
		catalog: &mockCatalog{products: map[string]catalog.Product{
			"jacket": {
				ID:    "jacket",
				Title: "Jacket",
				Variants: []catalog.Variant{
					{Title: "M", Price: d("120.00"), InStock: true, Inventory: 3},
				},
			},
			"cap": {
				ID:       "cap",
				Title:    "Cap",
				Variants: []catalog.Variant{{Title: "One size", Price: d("15.00"), InStock: true}},
			},
			"scarf": {
				ID:       "scarf",
				Title:    "Scarf",
				Variants: []catalog.Variant{{Title: "Red", Price: d("30.00"), InStock: false}},
			},
		}},
		orders:    &mockOrders{},
		publisher: &recordingPublisher{},
	}
	f.finalizer = NewFinalizer(f.carts, f.catalog, f.orders, f.publisher, payments)
	f.finalizer.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) addCart(c cart.Cart) {
	if c.Status == "" {
		c.Status = cart.StatusActive
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	f.carts.carts[c.ID] = c
}

func line(productID string, qty int, cached string) cart.Line {
	return cart.Line{ProductID: productID, Quantity: qty, UnitPrice: d(cached)}
}

// --- Tests ---

func TestFinalize_UsesCurrentCatalogPrice(t *testing.T) {
	f := newFixture(nil)
	f.addCart(cart.Cart{ID: "c1", Lines: []cart.Line{line("jacket", 1, "100.00")}, Subtotal: d("100"), Total: d("100")})

	o, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.True(t, d("120.00").Equal(o.Items[0].UnitPrice))
	assert.True(t, d("120.00").Equal(o.Subtotal))
	assert.True(t, d("120.00").Equal(o.Total))
	assert.Equal(t, "Jacket", o.Items[0].Title)
	assert.Equal(t, "M", o.Items[0].VariantTitle)
	assert.Equal(t, int64(1001), o.DisplayID)
}

func TestFinalize_InsufficientInventory(t *testing.T) {
	f := newFixture(nil)
	before := cart.Cart{ID: "c1", Lines: []cart.Line{line("jacket", 5, "120.00")}, Subtotal: d("600"), Total: d("600")}
	f.addCart(before)

	_, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})

	var invErr *InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 3, invErr.Available)
	assert.Equal(t, 5, invErr.Requested)
	assert.Contains(t, err.Error(), "only 3 available")

	after, err := f.carts.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, cart.StatusActive, after.Status)
	assert.Equal(t, before.Lines, after.Lines)
	assert.True(t, before.Total.Equal(after.Total))
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.publisher.events)
}

func TestFinalize_VerificationFailures(t *testing.T) {
	tests := []struct {
		name  string
		lines []cart.Line
		check func(t *testing.T, err error)
	}{
		{
			name:  "missing product",
			lines: []cart.Line{line("cap", 1, "15"), line("gone", 1, "5")},
			check: func(t *testing.T, err error) {
				var e *ProductNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "gone", e.ProductID)
			},
		},
		{
			name:  "missing variant",
			lines: []cart.Line{{ProductID: "cap", VariantIndex: 2, Quantity: 1, UnitPrice: d("15")}},
			check: func(t *testing.T, err error) {
				var e *VariantNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, 2, e.VariantIndex)
			},
		},
		{
			name:  "out of stock",
			lines: []cart.Line{line("scarf", 1, "30")},
			check: func(t *testing.T, err error) {
				var e *OutOfStockError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "Scarf", e.Title)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.addCart(cart.Cart{ID: "c1", Lines: tt.lines})

			_, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
			tt.check(t, err)

			after, err := f.carts.Get(context.Background(), "c1")
			require.NoError(t, err)
			assert.Equal(t, cart.StatusActive, after.Status)
			assert.Empty(t, f.orders.orders)
		})
	}
}

func TestFinalize_CartState(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.finalizer.Finalize(ctx, Request{CartID: "missing"})
	require.ErrorIs(t, err, cart.ErrNotFound)

	f.addCart(cart.Cart{ID: "empty"})
	_, err = f.finalizer.Finalize(ctx, Request{CartID: "empty"})
	require.ErrorIs(t, err, ErrEmptyCart)

	f.addCart(cart.Cart{ID: "done", Status: cart.StatusCompleted, Lines: []cart.Line{line("cap", 1, "15")}})
	_, err = f.finalizer.Finalize(ctx, Request{CartID: "done"})
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	f.addCart(cart.Cart{ID: "gone", Status: cart.StatusAbandoned, Lines: []cart.Line{line("cap", 1, "15")}})
	_, err = f.finalizer.Finalize(ctx, Request{CartID: "gone"})
	require.ErrorIs(t, err, cart.ErrNotActive)
}

func TestFinalize_CompletesCartAndPublishes(t *testing.T) {
	f := newFixture(nil)
	f.addCart(cart.Cart{
		ID:            "c1",
		Email:         "a@example.com",
		Lines:         []cart.Line{line("cap", 2, "15"), line("jacket", 1, "120")},
		ShippingTotal: d("5.00"),
		DiscountTotal: d("15.00"),
		PromoCode:     "SAVE10",
		PromoType:     "percentage",
		PromoDiscount: d("10.00"),
	})

	o, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
	require.NoError(t, err)

	// 150 + 5 - 15 - 10
	assert.True(t, d("130.00").Equal(o.Total))
	want := o.Subtotal.Add(o.ShippingTotal).Sub(o.DiscountTotal).Sub(o.LoyaltyDiscount).Sub(o.PromoDiscount)
	assert.True(t, want.Equal(o.Total))

	c, err := f.carts.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, cart.StatusCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, "SAVE10", ev.PromoCode)
	assert.Equal(t, "a@example.com", ev.Email)
	assert.True(t, d("10.00").Equal(ev.PromoDiscount))

	_, err = f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestFinalize_FreeShipping(t *testing.T) {
	f := newFixture(nil)
	f.addCart(cart.Cart{
		ID:            "c1",
		Lines:         []cart.Line{line("cap", 1, "15")},
		ShippingTotal: d("7.00"),
		PromoCode:     "SHIPFREE",
		PromoType:     cart.FreeShippingPromo,
		PromoDiscount: d("4.00"),
	})

	o, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
	require.NoError(t, err)
	assert.True(t, d("7.00").Equal(o.PromoDiscount))
	assert.True(t, d("15.00").Equal(o.Total))
}

func TestFinalize_TotalFloorsAtZero(t *testing.T) {
	f := newFixture(nil)
	f.addCart(cart.Cart{
		ID:            "c1",
		Lines:         []cart.Line{line("cap", 1, "15")},
		DiscountTotal: d("15.00"),
		PromoDiscount: d("10.00"),
	})

	o, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
	require.NoError(t, err)
	assert.True(t, o.Total.IsZero())
}

func TestFinalize_ClampsQuantity(t *testing.T) {
	f := newFixture(nil)
	f.addCart(cart.Cart{ID: "c1", Lines: []cart.Line{line("cap", 14, "15")}})

	o, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, cart.MaxLineQuantity, o.Items[0].Quantity)
	assert.True(t, d("150.00").Equal(o.Subtotal))
}

func TestFinalize_Payment(t *testing.T) {
	tests := []struct {
		name    string
		payment Payment
		wantErr bool
	}{
		{name: "matching amount", payment: Payment{Amount: d("30.00"), Succeeded: true}},
		{name: "amount mismatch", payment: Payment{Amount: d("25.00"), Succeeded: true}, wantErr: true},
		{name: "not succeeded", payment: Payment{Amount: d("30.00")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(&mockPayments{payment: &tt.payment})
			f.addCart(cart.Cart{ID: "c1", Lines: []cart.Line{line("cap", 2, "15")}})

			o, err := f.finalizer.Finalize(context.Background(), Request{CartID: "c1", PaymentRef: "pi_123"})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "pi_123", o.PaymentRef)
				return
			}
			var e *PaymentMismatchError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "pi_123", e.Ref)
			assert.Empty(t, f.orders.orders)
		})
	}
}
