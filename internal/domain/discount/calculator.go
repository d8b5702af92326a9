package discount

import (
	"slices"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// PercentageOf returns percent% of base rounded to 2 decimal places.
func PercentageOf(base, percent decimal.Decimal) decimal.Decimal {
	return floorAtZero(base.Mul(percent).Div(hundred)).Round(2)
}

// FixedUpTo returns value capped at base.
func FixedUpTo(value, base decimal.Decimal) decimal.Decimal {
	return floorAtZero(decimal.Min(value, base)).Round(2)
}

// BuyXGetYAmount expands items into single units sorted by ascending price
// and, for every complete group of Buy+Get units, discounts the Get cheapest
// units of that group. It returns zero when there are fewer units than one
// group.
func BuyXGetYAmount(t BuyXGetY, items []Item) decimal.Decimal {
	t = t.withDefaults()
	groupSize := t.Buy + t.Get

	units := unitPrices(items)
	if len(units) < groupSize {
		return zero
	}
	slices.SortStableFunc(units, decimal.Decimal.Cmp)

	amount := zero
	groups := len(units) / groupSize
	for g := range groups {
		for i := range t.Get {
			amount = amount.Add(PercentageOf(units[g*groupSize+i], t.DiscountPercent.Decimal))
		}
	}
	return amount
}

// BundleAmount returns the discount for b computed over the subtotal of the
// cart lines that belong to the bundle. It returns zero unless every bundle
// product is present in the cart.
func BundleAmount(b BundleRule, items []Item) decimal.Decimal {
	if len(b.Products) == 0 || !containsAll(productIDs(items), b.Products) {
		return zero
	}

	members := make(map[string]struct{}, len(b.Products))
	for _, id := range b.Products {
		members[id] = struct{}{}
	}
	base := zero
	for _, item := range items {
		if _, ok := members[item.ProductID]; ok {
			base = base.Add(lineTotal(item))
		}
	}

	switch t := b.Terms.(type) {
	case Percentage:
		return PercentageOf(base, t.Percent)
	case Fixed:
		return FixedUpTo(t.Amount, base)
	default:
		return zero
	}
}

// amount dispatches on the rule's terms. The subtotal is the base for
// percentage and fixed rules; buy-X-get-Y works on unit prices.
func (r *AutoRule) amount(f Facts) decimal.Decimal {
	switch t := r.Terms.(type) {
	case Percentage:
		return PercentageOf(f.Subtotal, t.Percent)
	case Fixed:
		return FixedUpTo(t.Amount, f.Subtotal)
	case BuyXGetY:
		return BuyXGetYAmount(t, f.Items)
	default:
		return zero
	}
}

// Subtotal returns the sum of unit price times quantity across items.
func Subtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(lineTotal(item))
	}
	return sum
}

func lineTotal(item Item) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func unitPrices(items []Item) []decimal.Decimal {
	var units []decimal.Decimal
	for _, item := range items {
		for range item.Quantity {
			units = append(units, item.UnitPrice)
		}
	}
	return units
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
