// Package promo validates promotion codes against carts, applies them, and
// records their usage once an order completes.
package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
)

// ErrNotFound is returned when no active promotion has the code.
var ErrNotFound = errors.New("promotion not found")

// Kind is the type of benefit a promotion grants.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixed        Kind = "fixed"
	KindFreeShipping Kind = cart.FreeShippingPromo
)

// Conditions limit when a code may be used. Zero values are unset.
type Conditions struct {
	MaxUsesTotal       int
	MaxUsesPerCustomer int
	MinOrderAmount     decimal.Decimal
	MaxDiscountAmount  decimal.Decimal
}

// Code is a promotion code.
type Code struct {
	ID         string
	Code       string
	Title      string
	Kind       Kind
	Value      decimal.Decimal
	Conditions Conditions
	StartsAt   *time.Time
	ExpiresAt  *time.Time
	Active     bool
	UsageCount int
}

// DisplayTitle returns the title, falling back to the code itself.
func (c *Code) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Code
}

// Usage records one completed order that used a code.
type Usage struct {
	Code           string
	CustomerID     string
	Email          string
	OrderID        string
	DiscountAmount decimal.Decimal
	Currency       string
	CreatedAt      time.Time
}

// Repository provides access to promotions and their usages.
type Repository interface {
	// FindByCode returns the active promotion with the normalized code.
	FindByCode(ctx context.Context, code string) (*Code, error)
	// CountUsages counts usages of a promotion by the email.
	CountUsages(ctx context.Context, promotionID, email string) (int, error)
	// RecordUsage stores the usage and increments the promotion's usage
	// count in one transaction, regardless of whether it is still active.
	RecordUsage(ctx context.Context, u Usage) error
}

// Normalize trims and upper-cases a code as entered by a customer.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
