package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrAlreadyCompleted = errors.New("order already placed for this cart")
)

// ProductNotFoundError indicates a cart line references a missing product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// VariantNotFoundError indicates the chosen variant no longer exists.
type VariantNotFoundError struct {
	ProductID    string
	Title        string
	VariantIndex int
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %d of %q not found", e.VariantIndex, e.Title)
}

// OutOfStockError indicates the chosen variant is not in stock.
type OutOfStockError struct {
	ProductID    string
	Title        string
	VariantTitle string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%q is out of stock", e.Title)
}

// InsufficientInventoryError indicates fewer units are available than the
// cart requests.
type InsufficientInventoryError struct {
	ProductID string
	Title     string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("%q: only %d available, requested %d", e.Title, e.Available, e.Requested)
}

// PaymentMismatchError indicates the payment does not cover the order.
type PaymentMismatchError struct {
	Ref       string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
	Succeeded bool
}

func (e *PaymentMismatchError) Error() string {
	if !e.Succeeded {
		return fmt.Sprintf("payment %s has not succeeded", e.Ref)
	}
	return fmt.Sprintf("payment %s amount %s does not match order total %s",
		e.Ref, e.Actual.StringFixed(2), e.Expected.StringFixed(2))
}
