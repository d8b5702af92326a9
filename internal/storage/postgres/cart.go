package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
)

const (
	cartColumns = `id, status, customer_id, email, lines, subtotal, shipping_method, shipping_total,
		discount_total, applied_discounts, promo_code, promo_type, promo_discount,
		loyalty_points, loyalty_discount, total, currency, created_at, updated_at, completed_at`

	insertCartSQL = `INSERT INTO carts (` + cartColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	getCartSQL = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`

	getCartStatusSQL = `SELECT status FROM carts WHERE id = $1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Create inserts a new cart.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	_, err := r.pool.Exec(ctx, insertCartSQL,
		c.ID, string(c.Status), c.CustomerID, c.Email, encodeLines(c.Lines), c.Subtotal,
		c.ShippingMethod, c.ShippingTotal, c.DiscountTotal, encodeApplied(c.AppliedDiscounts),
		c.PromoCode, c.PromoType, c.PromoDiscount, c.LoyaltyPoints, c.LoyaltyDiscount,
		c.Total, c.Currency, c.CreatedAt, c.UpdatedAt, c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("creating cart %q: %w", c.ID, err)
	}
	return nil
}

// Get returns the cart by ID.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting cart %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", id, err)
	}
	return &c, nil
}

// Update applies p in a single statement and returns the stored cart. When
// p.ExpectStatus is set the row is only updated while it has that status.
func (r *CartRepository) Update(ctx context.Context, id string, p cart.Patch) (*cart.Cart, error) {
	u := newCartUpdate(id)
	if p.Lines != nil {
		u.set("lines", encodeLines(*p.Lines))
	}
	if p.Subtotal != nil {
		u.set("subtotal", *p.Subtotal)
	}
	if p.ShippingMethod != nil {
		u.set("shipping_method", *p.ShippingMethod)
	}
	if p.ShippingTotal != nil {
		u.set("shipping_total", *p.ShippingTotal)
	}
	if p.DiscountTotal != nil {
		u.set("discount_total", *p.DiscountTotal)
	}
	if p.AppliedDiscounts != nil {
		u.set("applied_discounts", encodeApplied(*p.AppliedDiscounts))
	}
	if p.PromoCode != nil {
		u.set("promo_code", *p.PromoCode)
	}
	if p.PromoType != nil {
		u.set("promo_type", *p.PromoType)
	}
	if p.PromoDiscount != nil {
		u.set("promo_discount", *p.PromoDiscount)
	}
	if p.Email != nil {
		u.set("email", *p.Email)
	}
	if p.CustomerID != nil {
		u.set("customer_id", *p.CustomerID)
	}
	if p.Total != nil {
		u.set("total", *p.Total)
	}
	if p.Status != nil {
		u.set("status", string(*p.Status))
	}
	if p.CompletedAt != nil {
		u.set("completed_at", *p.CompletedAt)
	}

	rows, err := r.pool.Query(ctx, u.sql(p.ExpectStatus), u.args...)
	if err != nil {
		return nil, fmt.Errorf("updating cart %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating cart %q: %w", id, err)
	}

	var status string
	if err := r.pool.QueryRow(ctx, getCartStatusSQL, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q status: %w", id, err)
	}
	return nil, cart.ErrConflict
}

type cartUpdate struct {
	sets []string
	args []any
}

func newCartUpdate(id string) *cartUpdate {
	return &cartUpdate{
		sets: []string{"updated_at = now()"},
		args: []any{id},
	}
}

func (u *cartUpdate) set(column string, value any) {
	u.args = append(u.args, value)
	u.sets = append(u.sets, column+" = $"+strconv.Itoa(len(u.args)))
}

func (u *cartUpdate) sql(expect cart.Status) string {
	var b strings.Builder
	b.WriteString("UPDATE carts SET ")
	b.WriteString(strings.Join(u.sets, ", "))
	b.WriteString(" WHERE id = $1")
	if expect != "" {
		u.args = append(u.args, string(expect))
		b.WriteString(" AND status = $" + strconv.Itoa(len(u.args)))
	}
	b.WriteString(" RETURNING " + cartColumns)
	return b.String()
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c       cart.Cart
		status  string
		lines   []byte
		applied []byte
	)
	err := row.Scan(
		&c.ID, &status, &c.CustomerID, &c.Email, &lines, &c.Subtotal, &c.ShippingMethod,
		&c.ShippingTotal, &c.DiscountTotal, &applied, &c.PromoCode, &c.PromoType,
		&c.PromoDiscount, &c.LoyaltyPoints, &c.LoyaltyDiscount, &c.Total, &c.Currency,
		&c.CreatedAt, &c.UpdatedAt, &c.CompletedAt,
	)
	if err != nil {
		return c, err
	}
	c.Status = cart.Status(status)
	if c.Lines, err = decodeLines(lines); err != nil {
		return c, err
	}
	if c.AppliedDiscounts, err = decodeApplied(applied); err != nil {
		return c, err
	}
	return c, nil
}
