package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
)

const (
	getProductsByIDsSQL = `SELECT id, title, categories FROM products WHERE id = ANY($1) ORDER BY id`

	getVariantsSQL = `SELECT product_id, position, title, price, in_stock, inventory
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, position`

	upsertProductSQL = `INSERT INTO products (id, title, categories) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, categories = EXCLUDED.categories`

	deleteVariantsSQL = `DELETE FROM product_variants WHERE product_id = $1`

	insertVariantSQL = `INSERT INTO product_variants (product_id, position, title, price, in_stock, inventory)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetByID returns a single product with its variants.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	products, err := r.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, catalog.ErrNotFound
	}
	return &products[0], nil
}

// GetByIDs returns the products matching any of the given IDs. Missing IDs
// are omitted.
func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(&p.ID, &p.Title, &p.Categories)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}

	rows, err = r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			productID string
			position  int
			v         catalog.Variant
		)
		if err := rows.Scan(&productID, &position, &v.Title, &v.Price, &v.InStock, &v.Inventory); err != nil {
			return nil, fmt.Errorf("scanning variant: %w", err)
		}
		i, ok := index[productID]
		if !ok {
			continue
		}
		products[i].Variants = append(products[i].Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	return products, nil
}

// Upsert stores a product and replaces its variants. Variant positions
// follow slice order.
func (r *CatalogRepository) Upsert(ctx context.Context, p catalog.Product) error {
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Title, categories); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx, deleteVariantsSQL, p.ID); err != nil {
			return fmt.Errorf("deleting variants of %q: %w", p.ID, err)
		}
		batch := &pgx.Batch{}
		for i, v := range p.Variants {
			batch.Queue(insertVariantSQL, p.ID, i, v.Title, v.Price, v.InStock, v.Inventory)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting variants of %q: %w", p.ID, err)
		}
		return nil
	})
}
