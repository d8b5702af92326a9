package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/promo"
)

const (
	promotionColumns = `id, code, title, kind, value, max_uses_total, max_uses_per_customer,
		min_order_amount, max_discount_amount, starts_at, expires_at, active, usage_count`

	findPromotionByCodeSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE code = upper($1) AND active = TRUE`

	countUsagesSQL = `SELECT count(*) FROM promotion_usages WHERE promotion_id = $1 AND email = $2`

	lockPromotionSQL = `SELECT id FROM promotions WHERE code = upper($1) FOR UPDATE`

	insertUsageSQL = `INSERT INTO promotion_usages
		(promotion_id, customer_id, email, order_id, discount_amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (promotion_id, order_id) DO NOTHING`

	incrementUsageSQL = `UPDATE promotions SET usage_count = usage_count + 1 WHERE id = $1`

	upsertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, title = EXCLUDED.title,
			kind = EXCLUDED.kind, value = EXCLUDED.value,
			max_uses_total = EXCLUDED.max_uses_total,
			max_uses_per_customer = EXCLUDED.max_uses_per_customer,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			starts_at = EXCLUDED.starts_at, expires_at = EXCLUDED.expires_at,
			active = EXCLUDED.active`

	insertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO NOTHING`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up an active promotion by its normalized code.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	rows, err := r.pool.Query(ctx, findPromotionByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	return &p, nil
}

// CountUsages counts usages of the promotion by email.
func (r *PromoRepository) CountUsages(ctx context.Context, promotionID, email string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsagesSQL, promotionID, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usages of %q: %w", promotionID, err)
	}
	return n, nil
}

// RecordUsage inserts the usage and increments the usage count in one
// transaction. Recording the same order twice is a no-op.
func (r *PromoRepository) RecordUsage(ctx context.Context, u promo.Usage) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, lockPromotionSQL, u.Code).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return promo.ErrNotFound
			}
			return fmt.Errorf("locking promotion %q: %w", u.Code, err)
		}
		tag, err := tx.Exec(ctx, insertUsageSQL,
			id, u.CustomerID, u.Email, u.OrderID, u.DiscountAmount, u.Currency, u.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting usage of %q: %w", u.Code, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, incrementUsageSQL, id); err != nil {
			return fmt.Errorf("incrementing usage of %q: %w", u.Code, err)
		}
		return nil
	})
}

// Upsert stores a promotion by ID.
func (r *PromoRepository) Upsert(ctx context.Context, p promo.Code) error {
	if _, err := r.pool.Exec(ctx, upsertPromotionSQL, promotionArgs(p)...); err != nil {
		return fmt.Errorf("upserting promotion %q: %w", p.Code, err)
	}
	return nil
}

// InsertBatch inserts promotions, skipping codes that already exist, and
// returns how many were inserted.
func (r *PromoRepository) InsertBatch(ctx context.Context, codes []promo.Code) (int64, error) {
	batch := &pgx.Batch{}
	for _, p := range codes {
		batch.Queue(insertPromotionSQL, promotionArgs(p)...)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range codes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting promotions: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func promotionArgs(p promo.Code) []any {
	c := p.Conditions
	return []any{
		p.ID, p.Code, p.Title, string(p.Kind), p.Value,
		c.MaxUsesTotal, c.MaxUsesPerCustomer, c.MinOrderAmount, c.MaxDiscountAmount,
		p.StartsAt, p.ExpiresAt, p.Active, p.UsageCount,
	}
}

func scanPromotion(row pgx.CollectableRow) (promo.Code, error) {
	var (
		p    promo.Code
		kind string
	)
	err := row.Scan(
		&p.ID, &p.Code, &p.Title, &kind, &p.Value,
		&p.Conditions.MaxUsesTotal, &p.Conditions.MaxUsesPerCustomer,
		&p.Conditions.MinOrderAmount, &p.Conditions.MaxDiscountAmount,
		&p.StartsAt, &p.ExpiresAt, &p.Active, &p.UsageCount,
	)
	p.Kind = promo.Kind(kind)
	return p, err
}
