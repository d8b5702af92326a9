package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

// Resolver computes the automatic discounts for a set of items.
type Resolver interface {
	Resolve(ctx context.Context, items []discount.Item, subtotal decimal.Decimal) (discount.Resolution, error)
}

var _ Resolver = (*discount.Engine)(nil)

// Config holds cart service settings.
type Config struct {
	Currency string
}

// CreateRequest holds the input for creating a cart.
type CreateRequest struct {
	CustomerID string
	Email      string
}

// Service implements cart mutations. Every mutation persists the recomputed
// totals first and then re-resolves automatic discounts.
type Service struct {
	cfg       Config
	carts     Store
	products  catalog.Repository
	discounts Resolver
	now       func() time.Time
}

// NewService creates a cart Service.
func NewService(cfg Config, carts Store, products catalog.Repository, discounts Resolver) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Service{
		cfg:       cfg,
		carts:     carts,
		products:  products,
		discounts: discounts,
		now:       time.Now,
	}
}

// Create starts a new empty active cart.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Cart, error) {
	now := s.now().UTC()
	c := &Cart{
		ID:         uuid.NewString(),
		Status:     StatusActive,
		CustomerID: req.CustomerID,
		Email:      req.Email,
		Lines:      []Line{},
		Currency:   s.cfg.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.reprice()
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// Get returns the cart by ID.
func (s *Service) Get(ctx context.Context, id string) (*Cart, error) {
	return s.carts.Get(ctx, id)
}

// AddItem adds quantity units of a product variant. A line for the same
// variant is merged, and line quantity never exceeds MaxLineQuantity.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, variantIndex, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	c, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	v, ok := p.Variant(variantIndex)
	if !ok {
		return nil, &VariantNotFoundError{ProductID: productID, VariantIndex: variantIndex}
	}

	merged := false
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.ProductID == productID && l.VariantIndex == variantIndex {
			l.Quantity = min(l.Quantity+quantity, MaxLineQuantity)
			merged = true
			break
		}
	}
	if !merged {
		c.Lines = append(c.Lines, Line{
			ProductID:    productID,
			VariantIndex: variantIndex,
			Title:        p.Title,
			VariantTitle: v.Title,
			Quantity:     min(quantity, MaxLineQuantity),
			UnitPrice:    v.Price,
		})
	}
	return s.save(ctx, c)
}

// UpdateItem sets the quantity of the line at index. A quantity of zero or
// less removes the line.
func (s *Service) UpdateItem(ctx context.Context, cartID string, index, quantity int) (*Cart, error) {
	c, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(c.Lines) {
		return nil, &LineNotFoundError{Index: index}
	}
	if quantity <= 0 {
		c.Lines = append(c.Lines[:index:index], c.Lines[index+1:]...)
	} else {
		c.Lines[index].Quantity = min(quantity, MaxLineQuantity)
	}
	return s.save(ctx, c)
}

// RemoveItem removes the line at index.
func (s *Service) RemoveItem(ctx context.Context, cartID string, index int) (*Cart, error) {
	return s.UpdateItem(ctx, cartID, index, 0)
}

// SetShipping selects a shipping method and its cost.
func (s *Service) SetShipping(ctx context.Context, cartID, method string, price decimal.Decimal) (*Cart, error) {
	if method == "" || price.IsNegative() {
		return nil, &InvalidShippingError{Method: method, Price: price}
	}
	c, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	c.ShippingMethod = method
	c.ShippingTotal = price.Round(2)
	return s.save(ctx, c)
}

// SetContact updates the customer identity attached to the cart.
func (s *Service) SetContact(ctx context.Context, cartID, email, customerID string) (*Cart, error) {
	if _, err := s.activeCart(ctx, cartID); err != nil {
		return nil, err
	}
	updated, err := s.carts.Update(ctx, cartID, Patch{
		Email:        &email,
		CustomerID:   &customerID,
		ExpectStatus: StatusActive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "update contact")
	}
	return updated, nil
}

// Recalculate re-resolves automatic discounts for c and persists them with
// the recomputed total. It never fails: resolution errors are logged and c
// is returned unchanged. Carts that are no longer active are left alone.
func (s *Service) Recalculate(ctx context.Context, c *Cart) *Cart {
	updated, err := s.recalculate(ctx, c)
	if err != nil {
		zctx.From(ctx).Warn("Discount recalculation failed",
			zap.String("cart_id", c.ID),
			zap.Error(err),
		)
		return c
	}
	return updated
}

func (s *Service) recalculate(ctx context.Context, c *Cart) (*Cart, error) {
	if !c.IsActive() {
		return c, nil
	}

	next := *c
	if len(c.Lines) == 0 {
		next.DiscountTotal = decimal.Zero
		next.AppliedDiscounts = []discount.Applied{}
	} else {
		res, err := s.discounts.Resolve(ctx, c.Items(), c.Subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "resolve discounts")
		}
		next.DiscountTotal = res.Total
		next.AppliedDiscounts = res.Applied
	}
	next.reprice()

	updated, err := s.carts.Update(ctx, c.ID, Patch{
		DiscountTotal:    &next.DiscountTotal,
		AppliedDiscounts: &next.AppliedDiscounts,
		Total:            &next.Total,
		ExpectStatus:     StatusActive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "persist discounts")
	}
	return updated, nil
}

func (s *Service) activeCart(ctx context.Context, id string) (*Cart, error) {
	c, err := s.carts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive() {
		return nil, ErrNotActive
	}
	return c, nil
}

// save persists the repriced cart and then recalculates its discounts.
func (s *Service) save(ctx context.Context, c *Cart) (*Cart, error) {
	c.reprice()
	updated, err := s.carts.Update(ctx, c.ID, PricingPatch(c))
	if err != nil {
		return nil, errors.Wrap(err, "update cart")
	}
	return s.Recalculate(ctx, updated), nil
}
