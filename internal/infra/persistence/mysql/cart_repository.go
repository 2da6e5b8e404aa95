package mysql

import (
	"context"
	"database/sql"
	"errors"

	domcart "example.com/shopcore/internal/domain/cart"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int64) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO cart_items (user_id, product_id, quantity)
        VALUES (?, ?, ?)
        ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)
    `, userID, productID, quantity)
	return err
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE cart_items SET quantity = ? WHERE user_id = ? AND product_id = ?
    `, quantity, userID, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value is unchanged.
	var exists int
	err = r.db.QueryRowContext(ctx, `
        SELECT 1 FROM cart_items WHERE user_id = ? AND product_id = ?
    `, userID, productID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domcart.ErrItemNotInCart
	}
	return err
}

func (r *CartRepository) ListItems(ctx context.Context, userID string) ([]domcart.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT product_id, quantity
        FROM cart_items
        WHERE user_id = ?
        ORDER BY created_at, product_id
    `, userID)
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
	return deleteCartLines(ctx, r.db, userID, productIDs)
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	return err
}

func deleteCartLines(ctx context.Context, ex execer, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND product_id IN (`+placeholders(len(productIDs))+`)`,
		stringArgs([]any{userID}, productIDs)...)
	return err
}
