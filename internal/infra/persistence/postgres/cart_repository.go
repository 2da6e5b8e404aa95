package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domcart "example.com/shopcore/internal/domain/cart"
)

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, productID, quantity)
	return err
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cart_items SET quantity = $1 WHERE user_id = $2 AND product_id = $3`,
		quantity, userID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domcart.ErrItemNotInCart
	}
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID string) ([]domcart.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at, product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domcart.Item{}
	for rows.Next() {
		var item domcart.Item
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *CartRepository) DeleteItems(ctx context.Context, userID string, productIDs []string) error {
	return deleteCartLines(ctx, r.pool, userID, productIDs)
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func deleteCartLines(ctx context.Context, ex execer, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := ex.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs)
	return err
}
