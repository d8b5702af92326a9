package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, cart_id, customer_id, email, items, subtotal,
		shipping_method, shipping_total, discount_total, applied_discounts, loyalty_points,
		loyalty_discount, promo_code, promo_discount, total, currency, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING display_id`

	getOrderSQL = `SELECT id, display_id, cart_id, customer_id, email, items, subtotal,
		shipping_method, shipping_total, discount_total, applied_discounts, loyalty_points,
		loyalty_discount, promo_code, promo_discount, total, currency, payment_ref, created_at
		FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and assigns its DisplayID from the order
// sequence. Line items are stored in a JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.pool.QueryRow(ctx, insertOrderSQL,
		o.ID, o.CartID, o.CustomerID, o.Email, encodeItems(o.Items), o.Subtotal,
		o.ShippingMethod, o.ShippingTotal, o.DiscountTotal, encodeApplied(o.AppliedDiscounts),
		o.LoyaltyPoints, o.LoyaltyDiscount, o.PromoCode, o.PromoDiscount, o.Total,
		o.Currency, o.PaymentRef, o.CreatedAt,
	).Scan(&o.DisplayID)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicate
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var (
		o       order.Order
		items   []byte
		applied []byte
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.DisplayID, &o.CartID, &o.CustomerID, &o.Email, &items, &o.Subtotal,
		&o.ShippingMethod, &o.ShippingTotal, &o.DiscountTotal, &applied, &o.LoyaltyPoints,
		&o.LoyaltyDiscount, &o.PromoCode, &o.PromoDiscount, &o.Total, &o.Currency,
		&o.PaymentRef, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	if o.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	if o.AppliedDiscounts, err = decodeApplied(applied); err != nil {
		return nil, err
	}
	return &o, nil
}
