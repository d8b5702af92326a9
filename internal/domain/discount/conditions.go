package discount

import "github.com/shopspring/decimal"

// Facts is the cart state conditions are evaluated against.
type Facts struct {
	Items    []Item
	Subtotal decimal.Decimal
	// Categories maps product id to the ids of its categories. It is only
	// consulted by RequiredCategories and may be nil otherwise.
	Categories map[string][]string
}

// Matches reports whether the facts satisfy every present condition.
func Matches(c Conditions, f Facts) bool {
	if c.MinItems > 0 && totalQuantity(f.Items) < c.MinItems {
		return false
	}
	if c.MinOrderAmount.IsPositive() && f.Subtotal.LessThan(c.MinOrderAmount) {
		return false
	}
	if len(c.RequiredProducts) > 0 && !containsAll(productIDs(f.Items), c.RequiredProducts) {
		return false
	}
	if len(c.RequiredCategories) > 0 && !containsAll(cartCategories(f), c.RequiredCategories) {
		return false
	}
	return true
}

func totalQuantity(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func productIDs(items []Item) map[string]struct{} {
	ids := make(map[string]struct{}, len(items))
	for _, item := range items {
		ids[item.ProductID] = struct{}{}
	}
	return ids
}

// cartCategories returns the union of categories of all products in the cart.
func cartCategories(f Facts) map[string]struct{} {
	cats := make(map[string]struct{})
	for _, item := range f.Items {
		for _, id := range f.Categories[item.ProductID] {
			cats[id] = struct{}{}
		}
	}
	return cats
}

func containsAll(set map[string]struct{}, want []string) bool {
	for _, id := range want {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
