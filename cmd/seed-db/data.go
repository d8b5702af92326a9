package main

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/promo"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedProducts() []catalog.Product {
	return []catalog.Product{
		{
			ID:         "trail-jacket",
			Title:      "Trail Jacket",
			Categories: []string{"outerwear"},
			Variants: []catalog.Variant{
				{Title: "M", Price: price("120.00"), InStock: true, Inventory: 25},
				{Title: "L", Price: price("120.00"), InStock: true, Inventory: 12},
			},
		},
		{
			ID:         "wool-beanie",
			Title:      "Wool Beanie",
			Categories: []string{"accessories", "winter"},
			Variants: []catalog.Variant{
				{Title: "One size", Price: price("18.00"), InStock: true},
			},
		},
		{
			ID:         "merino-socks",
			Title:      "Merino Socks",
			Categories: []string{"accessories"},
			Variants: []catalog.Variant{
				{Title: "S/M", Price: price("12.50"), InStock: true},
				{Title: "L/XL", Price: price("12.50"), InStock: false},
			},
		},
		{
			ID:         "hiking-boots",
			Title:      "Hiking Boots",
			Categories: []string{"footwear"},
			Variants: []catalog.Variant{
				{Title: "42", Price: price("149.00"), InStock: true, Inventory: 4},
				{Title: "44", Price: price("149.00"), InStock: true, Inventory: 6},
			},
		},
	}
}

func seedRules() []discount.AutoRule {
	return []discount.AutoRule{
		{
			ID:         "orders-over-200",
			Title:      "10% off orders over 200",
			Terms:      discount.Percentage{Percent: price("10")},
			Conditions: discount.Conditions{MinOrderAmount: price("200")},
			Priority:   10,
			Active:     true,
		},
		{
			ID:         "socks-3-for-2",
			Title:      "Socks: buy 2 get 1 free",
			Terms:      discount.BuyXGetY{Buy: 2, Get: 1, DiscountPercent: decimal.NewNullDecimal(price("100"))},
			Conditions: discount.Conditions{RequiredProducts: []string{"merino-socks"}},
			Priority:   20,
			Stackable:  true,
			Active:     true,
		},
		{
			ID:         "winter-accessories",
			Title:      "5 off winter accessories",
			Terms:      discount.Fixed{Amount: price("5")},
			Conditions: discount.Conditions{MinItems: 2, RequiredCategories: []string{"winter"}},
			Priority:   5,
			Stackable:  true,
			Active:     true,
		},
	}
}

func seedBundles() []discount.BundleRule {
	return []discount.BundleRule{
		{
			ID:       "trail-kit",
			Title:    "Trail kit",
			Products: []string{"trail-jacket", "hiking-boots"},
			Terms:    discount.Percentage{Percent: price("15")},
			Active:   true,
		},
	}
}

func seedPromotions() []promo.Code {
	return []promo.Code{
		{
			ID:         "promo-welcome10",
			Code:       "WELCOME10",
			Title:      "10% off your first order",
			Kind:       promo.KindPercentage,
			Value:      price("10"),
			Conditions: promo.Conditions{MaxUsesPerCustomer: 1, MaxDiscountAmount: price("50")},
			Active:     true,
		},
		{
			ID:         "promo-take15",
			Code:       "TAKE15",
			Title:      "15 off orders over 100",
			Kind:       promo.KindFixed,
			Value:      price("15"),
			Conditions: promo.Conditions{MinOrderAmount: price("100"), MaxUsesTotal: 1000},
			Active:     true,
		},
		{
			ID:     "promo-shipfree",
			Code:   "SHIPFREE",
			Title:  "Free shipping",
			Kind:   promo.KindFreeShipping,
			Active: true,
		},
	}
}
