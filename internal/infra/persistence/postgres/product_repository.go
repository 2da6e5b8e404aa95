package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domproduct "example.com/shopcore/internal/domain/product"
)

const productColumns = `id, name, description, price, discount_price, stock, images, category, brand, sku, is_active`

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) Save(ctx context.Context, p *domproduct.Product) error {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price, stock = EXCLUDED.stock, images = EXCLUDED.images,
			category = EXCLUDED.category, brand = EXCLUDED.brand, sku = EXCLUDED.sku, is_active = EXCLUDED.is_active`,
		p.ID, p.Name, p.Description, p.Price, p.DiscountPrice, p.Stock, images, p.Category, p.Brand, p.SKU, p.IsActive)
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domproduct.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domproduct.ErrProductNotFound
	}
	return p, err
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]*domproduct.Product, error) {
	if len(ids) == 0 {
		return []*domproduct.Product{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *ProductRepository) List(ctx context.Context, filter domproduct.ListFilter) ([]*domproduct.Product, error) {
	limit := any(nil)
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = FALSE OR is_active)
		ORDER BY id
		LIMIT $2`, filter.OnlyActive, limit)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int64) error {
	if stock < 0 {
		return domproduct.ErrInvalidStock
	}
	tag, err := r.pool.Exec(ctx, `UPDATE products SET stock = $1 WHERE id = $2`, stock, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domproduct.ErrProductNotFound
	}
	return nil
}

func collectProducts(rows pgx.Rows) ([]*domproduct.Product, error) {
	defer rows.Close()
	var out []*domproduct.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (*domproduct.Product, error) {
	var p domproduct.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.DiscountPrice, &p.Stock, &p.Images,
		&p.Category, &p.Brand, &p.SKU, &p.IsActive); err != nil {
		return nil, err
	}
	return &p, nil
}

func classifyShortage(ctx context.Context, tx pgx.Tx, id string, qty int64) error {
	var (
		active bool
		stock  int64
	)
	err := tx.QueryRow(ctx, `SELECT is_active, stock FROM products WHERE id = $1`, id).Scan(&active, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domproduct.ErrProductNotFound
	}
	if err != nil {
		return err
	}
	if err := domproduct.CheckReservable(&domproduct.Product{IsActive: active, Stock: stock}, id, qty); err != nil {
		return err
	}
	return fmt.Errorf("stock update for product %s matched no row", id)
}
