package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned by Repository.Create when the cart already
	// has an order.
	ErrDuplicate = errors.New("order already exists for cart")
)

// Order is an immutable record of a completed checkout.
type Order struct {
	ID               string
	DisplayID        int64
	CartID           string
	CustomerID       string
	Email            string
	Items            []Item
	Subtotal         decimal.Decimal
	ShippingMethod   string
	ShippingTotal    decimal.Decimal
	DiscountTotal    decimal.Decimal
	AppliedDiscounts []discount.Applied
	LoyaltyPoints    int
	LoyaltyDiscount  decimal.Decimal
	PromoCode        string
	PromoDiscount    decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	PaymentRef       string
	CreatedAt        time.Time
}

// Item is a snapshot of a purchased line, decoupled from later catalog
// changes.
type Item struct {
	ProductID    string
	VariantIndex int
	Title        string
	VariantTitle string
	Quantity     int
	UnitPrice    decimal.Decimal
	Subtotal     decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order and assigns its sequential DisplayID.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
}

// Completed is emitted after an order is stored and its cart completed.
type Completed struct {
	OrderID       string
	DisplayID     int64
	CartID        string
	CustomerID    string
	Email         string
	Items         []Item
	Subtotal      decimal.Decimal
	ShippingTotal decimal.Decimal
	DiscountTotal decimal.Decimal
	PromoCode     string
	PromoDiscount decimal.Decimal
	Total         decimal.Decimal
	Currency      string
	CreatedAt     time.Time
}

// CompletedFrom builds the event for a stored order.
func CompletedFrom(o *Order) Completed {
	return Completed{
		OrderID:       o.ID,
		DisplayID:     o.DisplayID,
		CartID:        o.CartID,
		CustomerID:    o.CustomerID,
		Email:         o.Email,
		Items:         o.Items,
		Subtotal:      o.Subtotal,
		ShippingTotal: o.ShippingTotal,
		DiscountTotal: o.DiscountTotal,
		PromoCode:     o.PromoCode,
		PromoDiscount: o.PromoDiscount,
		Total:         o.Total,
		Currency:      o.Currency,
		CreatedAt:     o.CreatedAt,
	}
}

// Publisher dispatches Completed events. Delivery is best effort and never
// reported back to the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Completed)
}

// Payment is the state of a captured payment.
type Payment struct {
	Ref       string
	Amount    decimal.Decimal
	Currency  string
	Succeeded bool
}

// PaymentVerifier looks up a payment by reference.
type PaymentVerifier interface {
	Verify(ctx context.Context, ref string) (*Payment, error)
}
