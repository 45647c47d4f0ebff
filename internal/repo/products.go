package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/loyalty-api/internal/catalog"
)

// ProductsRepo reads product rows for catalog lookups. All queries are
// tenant scoped.
type ProductsRepo struct {
	Pool *pgxpool.Pool
}

const productColumns = `id, title, sku, price, discount_bps, active`

// ProductByID returns the product with the given id.
func (r ProductsRepo) ProductByID(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND tenant_id = $2`,
		id, tenantSlug(ctx))
	return scanProduct(row)
}

// ProductBySKU returns the product with the given barcode/SKU.
func (r ProductsRepo) ProductBySKU(ctx context.Context, sku string) (catalog.Product, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1 AND tenant_id = $2`,
		sku, tenantSlug(ctx))
	return scanProduct(row)
}

// UpsertProduct inserts or updates a product, used by the seeder.
func (r ProductsRepo) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO products (id, tenant_id, title, sku, price, discount_bps, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, sku) DO UPDATE
		 SET title = EXCLUDED.title, price = EXCLUDED.price,
		     discount_bps = EXCLUDED.discount_bps, active = EXCLUDED.active`,
		p.ID, tenantSlug(ctx), p.Title, p.SKU, p.Price, p.DiscountBps, p.Active)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.SKU, uniqueViolation(err, "product already exists"))
	}
	return nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Title, &p.SKU, &p.Price, &p.DiscountBps, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, err
	}
	return p, nil
}
