package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/catalog"
)

// Request holds the input for finalizing a checkout.
type Request struct {
	CartID string
	// PaymentRef identifies a captured payment. Empty for orders paid on
	// delivery.
	PaymentRef string
}

// Finalizer turns an active cart into an order, re-verifying every price
// and stock level against the catalog.
type Finalizer struct {
	carts     cart.Store
	products  catalog.Repository
	orders    Repository
	payments  PaymentVerifier
	publisher Publisher
	now       func() time.Time
}

// NewFinalizer creates a Finalizer. payments may be nil, in which case
// payment references are not verified.
func NewFinalizer(
	carts cart.Store,
	products catalog.Repository,
	orders Repository,
	publisher Publisher,
	payments PaymentVerifier,
) *Finalizer {
	return &Finalizer{
		carts:     carts,
		products:  products,
		orders:    orders,
		payments:  payments,
		publisher: publisher,
		now:       time.Now,
	}
}

// Finalize creates the order for the cart. On any verification failure
// nothing is written and the cart stays active and unchanged.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (*Order, error) {
	c, err := f.carts.Get(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case cart.StatusActive:
	case cart.StatusCompleted:
		return nil, ErrAlreadyCompleted
	default:
		return nil, cart.ErrNotActive
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	items, subtotal, err := f.verify(ctx, c.Lines)
	if err != nil {
		return nil, err
	}

	promoDiscount := c.PromoDiscount
	if c.HasFreeShipping() {
		promoDiscount = c.ShippingTotal
	}
	total := subtotal.
		Add(c.ShippingTotal).
		Sub(c.DiscountTotal).
		Sub(c.LoyaltyDiscount).
		Sub(promoDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	if req.PaymentRef != "" && f.payments != nil {
		if err := f.verifyPayment(ctx, req.PaymentRef, total); err != nil {
			return nil, err
		}
	}

	o := &Order{
		ID:               uuid.NewString(),
		CartID:           c.ID,
		CustomerID:       c.CustomerID,
		Email:            c.Email,
		Items:            items,
		Subtotal:         subtotal,
		ShippingMethod:   c.ShippingMethod,
		ShippingTotal:    c.ShippingTotal,
		DiscountTotal:    c.DiscountTotal,
		AppliedDiscounts: c.AppliedDiscounts,
		LoyaltyPoints:    c.LoyaltyPoints,
		LoyaltyDiscount:  c.LoyaltyDiscount,
		PromoCode:        c.PromoCode,
		PromoDiscount:    promoDiscount,
		Total:            total,
		Currency:         c.Currency,
		PaymentRef:       req.PaymentRef,
		CreatedAt:        f.now().UTC(),
	}
	if err := f.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrAlreadyCompleted
		}
		return nil, errors.Wrap(err, "create order")
	}

	lg := zctx.From(ctx).With(
		zap.String("order_id", o.ID),
		zap.Int64("display_id", o.DisplayID),
		zap.String("cart_id", c.ID),
	)

	completed := cart.StatusCompleted
	completedAt := o.CreatedAt
	if _, err := f.carts.Update(ctx, c.ID, cart.Patch{
		Status:       &completed,
		CompletedAt:  &completedAt,
		ExpectStatus: cart.StatusActive,
	}); err != nil {
		// The order is durable and a retry fails with ErrDuplicate.
		lg.Error("Failed to complete cart", zap.Error(err))
	}

	lg.Info("Order placed", zap.String("total", o.Total.StringFixed(2)))
	if f.publisher != nil {
		f.publisher.Publish(ctx, CompletedFrom(o))
	}
	return o, nil
}

// verify re-reads every line from the catalog and prices it at the current
// catalog price. Cached cart prices are ignored.
func (f *Finalizer) verify(ctx context.Context, lines []cart.Line) ([]Item, decimal.Decimal, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	fetched, err := f.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	products := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		products[p.ID] = p
	}

	items := make([]Item, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, decimal.Zero, &ProductNotFoundError{ProductID: l.ProductID}
		}
		v, ok := p.Variant(l.VariantIndex)
		if !ok {
			return nil, decimal.Zero, &VariantNotFoundError{
				ProductID:    p.ID,
				Title:        p.Title,
				VariantIndex: l.VariantIndex,
			}
		}
		if !v.InStock {
			return nil, decimal.Zero, &OutOfStockError{ProductID: p.ID, Title: p.Title, VariantTitle: v.Title}
		}

		qty := min(max(l.Quantity, 1), cart.MaxLineQuantity)
		if v.TracksInventory() && qty > v.Inventory {
			return nil, decimal.Zero, &InsufficientInventoryError{
				ProductID: p.ID,
				Title:     p.Title,
				Requested: qty,
				Available: v.Inventory,
			}
		}

		lineTotal := v.Price.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		subtotal = subtotal.Add(lineTotal)
		items = append(items, Item{
			ProductID:    p.ID,
			VariantIndex: l.VariantIndex,
			Title:        p.Title,
			VariantTitle: v.Title,
			Quantity:     qty,
			UnitPrice:    v.Price,
			Subtotal:     lineTotal,
		})
	}
	return items, subtotal, nil
}

func (f *Finalizer) verifyPayment(ctx context.Context, ref string, total decimal.Decimal) error {
	p, err := f.payments.Verify(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "verify payment")
	}
	if !p.Succeeded || !p.Amount.Equal(total) {
		return &PaymentMismatchError{
			Ref:       ref,
			Expected:  total,
			Actual:    p.Amount,
			Succeeded: p.Succeeded,
		}
	}
	return nil
}
