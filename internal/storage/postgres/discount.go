package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
)

// maxActiveRules bounds the rules read per resolution.
const maxActiveRules = 50

const (
	findActiveAutoDiscountsSQL = `SELECT id, title, kind, terms, conditions, priority, stackable,
		starts_at, expires_at, active
		FROM auto_discounts
		WHERE active = TRUE
			AND (starts_at IS NULL OR starts_at <= $1)
			AND (expires_at IS NULL OR expires_at >= $1)
		ORDER BY priority DESC, id
		LIMIT $2`

	findActiveBundlesSQL = `SELECT id, title, products, kind, value, active
		FROM bundles WHERE active = TRUE ORDER BY id`

	upsertAutoDiscountSQL = `INSERT INTO auto_discounts
		(id, title, kind, terms, conditions, priority, stackable, starts_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, kind = EXCLUDED.kind,
			terms = EXCLUDED.terms, conditions = EXCLUDED.conditions, priority = EXCLUDED.priority,
			stackable = EXCLUDED.stackable, starts_at = EXCLUDED.starts_at,
			expires_at = EXCLUDED.expires_at, active = EXCLUDED.active`

	upsertBundleSQL = `INSERT INTO bundles (id, title, products, kind, value, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, products = EXCLUDED.products,
			kind = EXCLUDED.kind, value = EXCLUDED.value, active = EXCLUDED.active`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindActiveAutoDiscounts returns rules active at now, highest priority
// first and ties ordered by ID.
func (r *DiscountRepository) FindActiveAutoDiscounts(ctx context.Context, now time.Time) ([]discount.AutoRule, error) {
	rows, err := r.pool.Query(ctx, findActiveAutoDiscountsSQL, now, maxActiveRules)
	if err != nil {
		return nil, fmt.Errorf("finding active auto discounts: %w", err)
	}
	rules, err := pgx.CollectRows(rows, scanAutoRule)
	if err != nil {
		return nil, fmt.Errorf("finding active auto discounts: %w", err)
	}
	return rules, nil
}

// FindActiveBundles returns all active bundles.
func (r *DiscountRepository) FindActiveBundles(ctx context.Context) ([]discount.BundleRule, error) {
	rows, err := r.pool.Query(ctx, findActiveBundlesSQL)
	if err != nil {
		return nil, fmt.Errorf("finding active bundles: %w", err)
	}
	bundles, err := pgx.CollectRows(rows, scanBundle)
	if err != nil {
		return nil, fmt.Errorf("finding active bundles: %w", err)
	}
	return bundles, nil
}

// UpsertAutoDiscount stores an automatic discount rule.
func (r *DiscountRepository) UpsertAutoDiscount(ctx context.Context, rule discount.AutoRule) error {
	if rule.Terms == nil {
		return fmt.Errorf("auto discount %q has no terms", rule.ID)
	}
	_, err := r.pool.Exec(ctx, upsertAutoDiscountSQL,
		rule.ID, rule.Title, string(rule.Terms.Kind()),
		encodeTerms(rule.Terms), encodeConditions(rule.Conditions),
		rule.Priority, rule.Stackable, rule.StartsAt, rule.ExpiresAt, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting auto discount %q: %w", rule.ID, err)
	}
	return nil
}

// UpsertBundle stores a bundle rule.
func (r *DiscountRepository) UpsertBundle(ctx context.Context, b discount.BundleRule) error {
	var value decimal.Decimal
	switch t := b.Terms.(type) {
	case discount.Percentage:
		value = t.Percent
	case discount.Fixed:
		value = t.Amount
	default:
		return fmt.Errorf("bundle %q: unsupported terms %T", b.ID, b.Terms)
	}
	_, err := r.pool.Exec(ctx, upsertBundleSQL,
		b.ID, b.Title, b.Products, string(b.Terms.Kind()), value, b.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting bundle %q: %w", b.ID, err)
	}
	return nil
}

func scanAutoRule(row pgx.CollectableRow) (discount.AutoRule, error) {
	var (
		rule       discount.AutoRule
		kind       string
		terms      []byte
		conditions []byte
	)
	err := row.Scan(
		&rule.ID, &rule.Title, &kind, &terms, &conditions, &rule.Priority, &rule.Stackable,
		&rule.StartsAt, &rule.ExpiresAt, &rule.Active,
	)
	if err != nil {
		return rule, err
	}
	if rule.Terms, err = decodeTerms(discount.Kind(kind), terms); err != nil {
		return rule, fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	if rule.Conditions, err = decodeConditions(conditions); err != nil {
		return rule, fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	return rule, nil
}

func scanBundle(row pgx.CollectableRow) (discount.BundleRule, error) {
	var (
		b     discount.BundleRule
		kind  string
		value decimal.Decimal
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Products, &kind, &value, &b.Active); err != nil {
		return b, err
	}
	switch discount.Kind(kind) {
	case discount.KindPercentage:
		b.Terms = discount.Percentage{Percent: value}
	case discount.KindFixed:
		b.Terms = discount.Fixed{Amount: value}
	default:
		return b, fmt.Errorf("bundle %q: unknown kind %q", b.ID, kind)
	}
	return b, nil
}
