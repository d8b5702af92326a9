package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

// Reason identifies why a code was rejected.
type Reason string

const (
	ReasonEmptyCode    Reason = "empty_code"
	ReasonNotFound     Reason = "not_found"
	ReasonNotStarted   Reason = "not_started"
	ReasonExpired      Reason = "expired"
	ReasonExhausted    Reason = "exhausted"
	ReasonAlreadyUsed  Reason = "already_used"
	ReasonCartNotFound Reason = "cart_not_found"
	ReasonCartInactive Reason = "cart_inactive"
	ReasonMinOrder     Reason = "min_order_amount"
)

// Validation is the outcome of checking a code against a cart. Business rule
// failures are reported here with Valid=false, never as errors.
type Validation struct {
	Valid    bool
	Reason   Reason
	Message  string
	Code     string
	Kind     Kind
	Discount decimal.Decimal

	cart *cart.Cart
}

// Result is the outcome of applying or removing a code.
type Result struct {
	Success  bool
	Message  string
	Discount decimal.Decimal
}

// Service validates and applies promotion codes.
type Service struct {
	promos Repository
	carts  cart.Store
	now    func() time.Time
}

// NewService creates a promo Service.
func NewService(promos Repository, carts cart.Store) *Service {
	return &Service{
		promos: promos,
		carts:  carts,
		now:    time.Now,
	}
}

func invalid(reason Reason, msg string) *Validation {
	return &Validation{Reason: reason, Message: msg, Discount: decimal.Zero}
}

// Validate checks code against the cart. Checks run in order and the first
// failure wins. email is optional; without it the per-customer limit is
// checked against the cart's contact email, if any.
func (s *Service) Validate(ctx context.Context, code, cartID, email string) (*Validation, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return invalid(ReasonEmptyCode, "Enter a promo code"), nil
	}

	p, err := s.promos.FindByCode(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		return invalid(ReasonNotFound, "Promo code not found"), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find promotion")
	}

	now := s.now()
	if p.StartsAt != nil && p.StartsAt.After(now) {
		return invalid(ReasonNotStarted, "Promo code is not active yet"), nil
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
		return invalid(ReasonExpired, "Promo code has expired"), nil
	}

	cond := p.Conditions
	if cond.MaxUsesTotal > 0 && p.UsageCount >= cond.MaxUsesTotal {
		return invalid(ReasonExhausted, "Promo code has been fully redeemed"), nil
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if v, err := s.checkCustomerLimit(ctx, p, email); v != nil || err != nil {
			return v, err
		}
	}

	c, err := s.carts.Get(ctx, cartID)
	if errors.Is(err, cart.ErrNotFound) {
		return invalid(ReasonCartNotFound, "Cart not found"), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if cartEmail := strings.TrimSpace(c.Email); email == "" && cartEmail != "" {
		if v, err := s.checkCustomerLimit(ctx, p, cartEmail); v != nil || err != nil {
			return v, err
		}
	}
	currency := strings.ToUpper(c.Currency)
	if cond.MinOrderAmount.IsPositive() && c.Subtotal.LessThan(cond.MinOrderAmount) {
		return invalid(ReasonMinOrder, fmt.Sprintf("Minimum order amount: %s %s",
			cond.MinOrderAmount.StringFixed(2), currency)), nil
	}

	amount := Amount(p, c)
	return &Validation{
		Valid: true,
		Message: fmt.Sprintf("Promo code %q applied! Discount: %s %s",
			normalized, amount.StringFixed(2), currency),
		Code:     normalized,
		Kind:     p.Kind,
		Discount: amount,
		cart:     c,
	}, nil
}

// checkCustomerLimit returns a rejection when email has used up p.
func (s *Service) checkCustomerLimit(ctx context.Context, p *Code, email string) (*Validation, error) {
	if p.Conditions.MaxUsesPerCustomer <= 0 {
		return nil, nil
	}
	used, err := s.promos.CountUsages(ctx, p.ID, email)
	if err != nil {
		return nil, errors.Wrap(err, "count usages")
	}
	if used >= p.Conditions.MaxUsesPerCustomer {
		return invalid(ReasonAlreadyUsed, "You have already used this promo code"), nil
	}
	return nil, nil
}

// Amount computes the discount p grants on c.
func Amount(p *Code, c *cart.Cart) decimal.Decimal {
	switch p.Kind {
	case KindPercentage:
		amount := discount.PercentageOf(c.Subtotal, p.Value)
		if ceiling := p.Conditions.MaxDiscountAmount; ceiling.IsPositive() && amount.GreaterThan(ceiling) {
			return ceiling
		}
		return amount
	case KindFixed:
		return discount.FixedUpTo(p.Value, c.Subtotal)
	case KindFreeShipping:
		return c.ShippingTotal
	default:
		return decimal.Zero
	}
}

// Apply re-validates the code and stores it on the cart with the
// recomputed total. Usage is not recorded until the order completes.
func (s *Service) Apply(ctx context.Context, code, cartID, email string) (*Result, error) {
	v, err := s.Validate(ctx, code, cartID, email)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return &Result{Message: v.Message, Discount: decimal.Zero}, nil
	}
	if !v.cart.IsActive() {
		return &Result{Message: "Cart is no longer active", Discount: decimal.Zero}, nil
	}

	next := *v.cart
	next.PromoCode = v.Code
	next.PromoType = string(v.Kind)
	next.PromoDiscount = v.Discount
	next.Total = next.ComputeTotal()

	_, err = s.carts.Update(ctx, cartID, cart.Patch{
		PromoCode:     &next.PromoCode,
		PromoType:     &next.PromoType,
		PromoDiscount: &next.PromoDiscount,
		Total:         &next.Total,
		ExpectStatus:  cart.StatusActive,
	})
	if errors.Is(err, cart.ErrConflict) {
		return &Result{Message: "Cart is no longer active", Discount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "update cart")
	}
	return &Result{Success: true, Message: v.Message, Discount: v.Discount}, nil
}

// Remove clears the promo from the cart. A waived shipping cost is charged
// again because the waiver only exists while the promo is applied.
func (s *Service) Remove(ctx context.Context, cartID string) (*Result, error) {
	c, err := s.carts.Get(ctx, cartID)
	if errors.Is(err, cart.ErrNotFound) {
		return &Result{Message: "Cart not found", Discount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	next := *c
	next.PromoCode = ""
	next.PromoType = ""
	next.PromoDiscount = decimal.Zero
	next.Total = next.ComputeTotal()

	_, err = s.carts.Update(ctx, cartID, cart.Patch{
		PromoCode:     &next.PromoCode,
		PromoType:     &next.PromoType,
		PromoDiscount: &next.PromoDiscount,
		Total:         &next.Total,
		ExpectStatus:  cart.StatusActive,
	})
	if errors.Is(err, cart.ErrConflict) {
		return &Result{Message: "Cart is no longer active", Discount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "update cart")
	}
	return &Result{Success: true, Message: "Promo code removed", Discount: decimal.Zero}, nil
}
