// Package discount evaluates automatic discount rules and product bundles
// against a cart and computes the resulting discount amounts.
package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the rule-type tag recorded on every applied discount.
type Kind string

const (
	// KindPercentage takes a percentage off the order subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed takes a fixed amount off, capped at the order subtotal.
	KindFixed Kind = "fixed"
	// KindBuyXGetY discounts the cheapest units of every complete buy+get group.
	KindBuyXGetY Kind = "buyXgetY"
)

// BundleKind returns the tag used for a bundle discount of the given kind.
func BundleKind(k Kind) Kind {
	return "bundle_" + k
}

// Terms describes how a rule computes its amount. Each rule type carries only
// the fields it needs: Percentage, Fixed or BuyXGetY.
type Terms interface {
	Kind() Kind
	terms()
}

// Percentage takes Percent% off the base amount.
type Percentage struct {
	Percent decimal.Decimal
}

// Fixed takes Amount off the base amount, never more than the base.
type Fixed struct {
	Amount decimal.Decimal
}

// BuyXGetY gives DiscountPercent% off the Get cheapest units in every group
// of Buy+Get units. An absent DiscountPercent means 100; an explicit zero
// yields no discount.
type BuyXGetY struct {
	Buy             int
	Get             int
	DiscountPercent decimal.NullDecimal
}

func (Percentage) Kind() Kind { return KindPercentage }
func (Fixed) Kind() Kind      { return KindFixed }
func (BuyXGetY) Kind() Kind   { return KindBuyXGetY }

func (Percentage) terms() {}
func (Fixed) terms()      {}
func (BuyXGetY) terms()   {}

// withDefaults fills unset quantities with 1 and an unset percent with 100.
func (t BuyXGetY) withDefaults() BuyXGetY {
	if t.Buy <= 0 {
		t.Buy = 1
	}
	if t.Get <= 0 {
		t.Get = 1
	}
	if !t.DiscountPercent.Valid {
		t.DiscountPercent = decimal.NewNullDecimal(hundred)
	}
	return t
}

// Conditions are the eligibility requirements of an automatic rule. All
// present conditions must hold; zero values mean "no requirement".
type Conditions struct {
	MinItems           int
	MinOrderAmount     decimal.Decimal
	RequiredProducts   []string
	RequiredCategories []string
}

// NeedsCategories reports whether evaluating c requires product categories.
func (c Conditions) NeedsCategories() bool {
	return len(c.RequiredCategories) > 0
}

// AutoRule is an automatic discount applied without any customer action.
type AutoRule struct {
	ID         string
	Title      string
	Terms      Terms
	Conditions Conditions
	// Priority orders evaluation; higher values are evaluated first.
	Priority  int
	Stackable bool
	StartsAt  *time.Time
	ExpiresAt *time.Time
	Active    bool
}

// ActiveAt reports whether the rule is enabled and now is inside its window.
func (r *AutoRule) ActiveAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return false
	}
	return true
}

// BundleRule discounts a set of products bought together. Terms is either
// Percentage or Fixed and applies to the bundle's own lines only.
type BundleRule struct {
	ID       string
	Title    string
	Products []string
	Terms    Terms
	Active   bool
}

// Item is a cart line as seen by the discount engine.
type Item struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Applied is a discount that matched the cart.
type Applied struct {
	Title  string
	Type   Kind
	Amount decimal.Decimal
}

// Resolution is the outcome of a resolution pass.
type Resolution struct {
	Applied []Applied
	// Total is the sum of Applied amounts capped at the subtotal.
	Total decimal.Decimal
}

// Repository provides the currently active automatic rules and bundles.
type Repository interface {
	// FindActiveAutoDiscounts returns enabled rules whose window contains
	// now, ordered by priority descending.
	FindActiveAutoDiscounts(ctx context.Context, now time.Time) ([]AutoRule, error)
	FindActiveBundles(ctx context.Context) ([]BundleRule, error)
}
