package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item with its purchasable variants.
type Product struct {
	ID         string
	Title      string
	Variants   []Variant
	Categories []string
}

// Variant is a purchasable option of a product (size, volume, colour).
type Variant struct {
	Title   string
	Price   decimal.Decimal
	InStock bool
	// Inventory is the number of units on hand. Zero means the variant does
	// not track inventory.
	Inventory int
}

// Variant returns the variant at index i.
func (p *Product) Variant(i int) (Variant, bool) {
	if i < 0 || i >= len(p.Variants) {
		return Variant{}, false
	}
	return p.Variants[i], true
}

// TracksInventory reports whether purchases are limited by Inventory.
func (v Variant) TracksInventory() bool {
	return v.Inventory > 0
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products matching ids. Unknown ids are omitted.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
