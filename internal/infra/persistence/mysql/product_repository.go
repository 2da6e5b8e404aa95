package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/infra/persistence"
)

const productColumns = `id, name, COALESCE(description, ''), price, discount_price, stock, images, category, brand, sku, is_active`

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Save inserts or replaces a product row.
func (r *ProductRepository) Save(ctx context.Context, p *domproduct.Product) error {
	images, err := persistence.EncodeStrings(p.Images)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO products (id, name, description, price, discount_price, stock, images, category, brand, sku, is_active)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            name = VALUES(name), description = VALUES(description), price = VALUES(price),
            discount_price = VALUES(discount_price), stock = VALUES(stock), images = VALUES(images),
            category = VALUES(category), brand = VALUES(brand), sku = VALUES(sku), is_active = VALUES(is_active)
    `, p.ID, p.Name, p.Description, p.Price, nullFloat(p.DiscountPrice), p.Stock, string(images), p.Category, p.Brand, p.SKU, p.IsActive)
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domproduct.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domproduct.ErrProductNotFound
	}
	return p, err
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]*domproduct.Product, error) {
	if len(ids) == 0 {
		return []*domproduct.Product{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(nil, ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (r *ProductRepository) List(ctx context.Context, filter domproduct.ListFilter) ([]*domproduct.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if filter.OnlyActive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int64) error {
	if stock < 0 {
		return domproduct.ErrInvalidStock
	}
	res, err := r.db.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, stock, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domproduct.ErrProductNotFound
	}
	return err
}

func collectProducts(rows *sql.Rows) ([]*domproduct.Product, error) {
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

func scanProduct(s scanner) (*domproduct.Product, error) {
	var (
		p        domproduct.Product
		discount sql.NullFloat64
		images   []byte
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &discount, &p.Stock, &images,
		&p.Category, &p.Brand, &p.SKU, &p.IsActive); err != nil {
		return nil, err
	}
	p.DiscountPrice = floatPtr(discount)
	var err error
	if p.Images, err = persistence.DecodeStrings(images); err != nil {
		return nil, fmt.Errorf("product %s images: %w", p.ID, err)
	}
	return &p, nil
}

// classifyShortage explains why a conditional decrement matched no row.
func classifyShortage(ctx context.Context, tx *sql.Tx, id string, qty int64) error {
	var (
		active bool
		stock  int64
	)
	err := tx.QueryRowContext(ctx, `SELECT is_active, stock FROM products WHERE id = ?`, id).Scan(&active, &stock)
	if errors.Is(err, sql.ErrNoRows) {
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
