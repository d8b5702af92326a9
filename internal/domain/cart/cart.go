// Package cart holds shopping cart state and the mutations that keep its
// derived totals and automatic discounts up to date.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

// Status is the lifecycle state of a cart.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// MaxLineQuantity is the largest quantity a single cart line may hold.
const MaxLineQuantity = 10

// FreeShippingPromo is the promo type that waives the shipping cost.
const FreeShippingPromo = "free_shipping"

var (
	// ErrNotFound is returned when a cart does not exist.
	ErrNotFound = errors.New("cart not found")
	// ErrNotActive is returned when mutating a completed or abandoned cart.
	ErrNotActive = errors.New("cart is not active")
	// ErrConflict is returned by Store.Update when the stored cart no longer
	// has the expected status.
	ErrConflict = errors.New("cart was modified concurrently")
)

// InvalidQuantityError indicates a non-positive quantity for a new line.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// LineNotFoundError indicates a line index outside the cart.
type LineNotFoundError struct {
	Index int
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("cart line %d not found", e.Index)
}

// VariantNotFoundError indicates a product has no variant at the index.
type VariantNotFoundError struct {
	ProductID    string
	VariantIndex int
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %d of product %s not found", e.VariantIndex, e.ProductID)
}

// InvalidShippingError indicates a missing method or a negative price.
type InvalidShippingError struct {
	Method string
	Price  decimal.Decimal
}

func (e *InvalidShippingError) Error() string {
	if e.Method == "" {
		return "shipping method is required"
	}
	return fmt.Sprintf("shipping price must not be negative, got %s", e.Price)
}

// Line is a product variant in the cart. UnitPrice is the catalog price at
// the time the line was added and is never used for charging.
type Line struct {
	ProductID    string
	VariantIndex int
	Title        string
	VariantTitle string
	Quantity     int
	UnitPrice    decimal.Decimal
}

// Cart is a customer's shopping cart.
type Cart struct {
	ID               string
	Status           Status
	CustomerID       string
	Email            string
	Lines            []Line
	Subtotal         decimal.Decimal
	ShippingMethod   string
	ShippingTotal    decimal.Decimal
	DiscountTotal    decimal.Decimal
	AppliedDiscounts []discount.Applied
	PromoCode        string
	PromoType        string
	PromoDiscount    decimal.Decimal
	LoyaltyPoints    int
	LoyaltyDiscount  decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// IsActive reports whether the cart can still be mutated.
func (c *Cart) IsActive() bool {
	return c.Status == StatusActive
}

// Items converts the cart lines for discount evaluation.
func (c *Cart) Items() []discount.Item {
	items := make([]discount.Item, len(c.Lines))
	for i, l := range c.Lines {
		items[i] = discount.Item{
			ProductID: l.ProductID,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return items
}

// HasFreeShipping reports whether the applied promo waives shipping.
func (c *Cart) HasFreeShipping() bool {
	return c.PromoCode != "" && c.PromoType == FreeShippingPromo
}

// EffectiveShipping is the shipping cost the customer pays.
func (c *Cart) EffectiveShipping() decimal.Decimal {
	if c.HasFreeShipping() {
		return decimal.Zero
	}
	return c.ShippingTotal
}

// ComputeTotal returns subtotal + shipping - discount - loyalty - promo,
// floored at zero.
func (c *Cart) ComputeTotal() decimal.Decimal {
	total := c.Subtotal.
		Add(c.ShippingTotal).
		Sub(c.DiscountTotal).
		Sub(c.LoyaltyDiscount).
		Sub(c.PromoDiscount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

// reprice recomputes every derived amount from the lines, the shipping cost
// and the applied promo. A free shipping promo is worth exactly the current
// shipping cost, so changing or removing it restores shipping on its own.
func (c *Cart) reprice() {
	c.Subtotal = discount.Subtotal(c.Items()).Round(2)
	if c.HasFreeShipping() {
		c.PromoDiscount = c.ShippingTotal
	}
	c.Total = c.ComputeTotal()
}

// Patch is a partial update of a cart. Nil fields are left unchanged.
type Patch struct {
	Lines            *[]Line
	Subtotal         *decimal.Decimal
	ShippingMethod   *string
	ShippingTotal    *decimal.Decimal
	DiscountTotal    *decimal.Decimal
	AppliedDiscounts *[]discount.Applied
	PromoCode        *string
	PromoType        *string
	PromoDiscount    *decimal.Decimal
	Email            *string
	CustomerID       *string
	Total            *decimal.Decimal
	Status           *Status
	CompletedAt      *time.Time

	// ExpectStatus makes the update conditional: when set and the stored
	// cart has a different status, Update fails with ErrConflict.
	ExpectStatus Status
}

// PricingPatch returns a patch carrying every price-related field of c.
func PricingPatch(c *Cart) Patch {
	return Patch{
		Lines:            &c.Lines,
		Subtotal:         &c.Subtotal,
		ShippingMethod:   &c.ShippingMethod,
		ShippingTotal:    &c.ShippingTotal,
		DiscountTotal:    &c.DiscountTotal,
		AppliedDiscounts: &c.AppliedDiscounts,
		PromoCode:        &c.PromoCode,
		PromoType:        &c.PromoType,
		PromoDiscount:    &c.PromoDiscount,
		Total:            &c.Total,
		ExpectStatus:     StatusActive,
	}
}

// Apply writes the non-nil fields of p onto c.
func (p Patch) Apply(c *Cart) {
	if p.Lines != nil {
		c.Lines = append([]Line(nil), (*p.Lines)...)
	}
	if p.Subtotal != nil {
		c.Subtotal = *p.Subtotal
	}
	if p.ShippingMethod != nil {
		c.ShippingMethod = *p.ShippingMethod
	}
	if p.ShippingTotal != nil {
		c.ShippingTotal = *p.ShippingTotal
	}
	if p.DiscountTotal != nil {
		c.DiscountTotal = *p.DiscountTotal
	}
	if p.AppliedDiscounts != nil {
		c.AppliedDiscounts = append([]discount.Applied(nil), (*p.AppliedDiscounts)...)
	}
	if p.PromoCode != nil {
		c.PromoCode = *p.PromoCode
	}
	if p.PromoType != nil {
		c.PromoType = *p.PromoType
	}
	if p.PromoDiscount != nil {
		c.PromoDiscount = *p.PromoDiscount
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.CustomerID != nil {
		c.CustomerID = *p.CustomerID
	}
	if p.Total != nil {
		c.Total = *p.Total
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
}

// Store persists carts. Update is the serialization point for a cart: the
// host must not run two updates of the same cart concurrently, and
// ExpectStatus guards lifecycle transitions.
type Store interface {
	Create(ctx context.Context, c *Cart) error
	Get(ctx context.Context, id string) (*Cart, error)
	Update(ctx context.Context, id string, p Patch) (*Cart, error)
}
