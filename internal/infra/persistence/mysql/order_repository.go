package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/infra/persistence"
)

const orderColumns = `
    id, order_number, user_id, status, payment_method, payment_status,
    subtotal, shipping, tax, discount, total_amount, total_items, item_count,
    shipping_address, billing_address, COALESCE(notes, ''), tracking_number, carrier,
    transaction_id, COALESCE(cancellation_reason, ''),
    created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *domorder.Order, consumedCartProductIDs []string) (retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := insertOrder(ctx, tx, o); err != nil {
		if isDuplicateKey(err) {
			return domorder.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}

	// Lines arrive sorted by product id so concurrent checkouts lock rows in the same order.
	for _, line := range o.StockLines() {
		res, err := tx.ExecContext(ctx, `
            UPDATE products SET stock = stock - ?
            WHERE id = ? AND is_active = 1 AND stock >= ?
        `, line.Quantity, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return classifyShortage(ctx, tx, line.ProductID, line.Quantity)
		}
	}

	for i, it := range o.Items {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO order_items (order_id, position, product_id, product_name, product_image,
                price, discount_price, final_price, quantity, item_total, sku, category)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, o.ID, i, it.ProductID, it.ProductName, it.ProductImage, it.Price, nullFloat(it.DiscountPrice),
			it.FinalPrice, it.Quantity, it.ItemTotal, it.SKU, it.Category)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, o.ID, o.History()); err != nil {
		return err
	}
	if err := deleteCartLines(ctx, tx, o.UserID, consumedCartProductIDs); err != nil {
		return fmt.Errorf("consume cart: %w", err)
	}
	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domorder.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domorder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, r.db, o)
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter) ([]*domorder.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []*domorder.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, o := range orders {
		if orders[i], err = r.hydrate(ctx, r.db, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) Update(ctx context.Context, id string, fn domorder.MutateFunc) (_ *domorder.Order, retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domorder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o, err = r.hydrate(ctx, tx, o); err != nil {
		return nil, err
	}
	seen := len(o.History())

	restock, err := fn(o)
	if err != nil {
		return nil, err
	}
	for _, line := range domproduct.MergeLines(restock) {
		// A product deleted since the order was placed has nothing to restore.
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + ? WHERE id = ?`, line.Quantity, line.ProductID); err != nil {
			return nil, fmt.Errorf("restore stock: %w", err)
		}
	}

	if err := saveOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := insertHistory(ctx, tx, o.ID, o.History()[seen:]); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *OrderRepository) hydrate(ctx context.Context, q querier, o *domorder.Order) (*domorder.Order, error) {
	items, err := listOrderItems(ctx, q, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	history, err := listHistory(ctx, q, o.ID)
	if err != nil {
		return nil, err
	}
	return domorder.Rehydrate(o, history), nil
}

func insertOrder(ctx context.Context, ex execer, o *domorder.Order) error {
	shipping, err := persistence.EncodeAddress(o.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := persistence.EncodeOptionalAddress(o.BillingAddress)
	if err != nil {
		return err
	}
	s := o.Summary
	_, err = ex.ExecContext(ctx, `
        INSERT INTO orders (id, order_number, user_id, status, payment_method, payment_status,
            subtotal, shipping, tax, discount, total_amount, total_items, item_count,
            shipping_address, billing_address, notes, tracking_number, carrier, transaction_id,
            cancellation_reason, created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, o.ID, o.OrderNumber, o.UserID, o.Status, o.PaymentMethod, o.PaymentStatus,
		s.Subtotal, s.Shipping, s.Tax, s.Discount, s.TotalAmount, s.TotalItems, s.ItemCount,
		string(shipping), nullJSON(billing), o.Notes, o.TrackingNumber, o.Carrier, o.TransactionID,
		o.CancellationReason, o.CreatedAt, o.UpdatedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt)
	return err
}

func saveOrder(ctx context.Context, ex execer, o *domorder.Order) error {
	_, err := ex.ExecContext(ctx, `
        UPDATE orders SET status = ?, payment_status = ?, tracking_number = ?, carrier = ?,
            transaction_id = ?, cancellation_reason = ?, updated_at = ?,
            paid_at = ?, shipped_at = ?, delivered_at = ?, cancelled_at = ?
        WHERE id = ?
    `, o.Status, o.PaymentStatus, o.TrackingNumber, o.Carrier, o.TransactionID, o.CancellationReason,
		o.UpdatedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ID)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, ex execer, orderID string, entries []domorder.StatusEntry) error {
	for _, e := range entries {
		_, err := ex.ExecContext(ctx, `
            INSERT INTO order_status_history (order_id, status, note, updated_by, created_at)
            VALUES (?, ?, ?, ?, ?)
        `, orderID, e.Status, e.Note, e.UpdatedBy, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

func listOrderItems(ctx context.Context, q querier, orderID string) ([]domorder.Item, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT product_id, product_name, product_image, price, discount_price, final_price,
            quantity, item_total, sku, category
        FROM order_items WHERE order_id = ? ORDER BY position
    `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domorder.Item
	for rows.Next() {
		var (
			it       domorder.Item
			discount sql.NullFloat64
		)
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.ProductImage, &it.Price, &discount,
			&it.FinalPrice, &it.Quantity, &it.ItemTotal, &it.SKU, &it.Category); err != nil {
			return nil, err
		}
		it.DiscountPrice = floatPtr(discount)
		items = append(items, it)
	}
	return items, rows.Err()
}

func listHistory(ctx context.Context, q querier, orderID string) ([]domorder.StatusEntry, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT status, COALESCE(note, ''), updated_by, created_at
        FROM order_status_history WHERE order_id = ? ORDER BY id
    `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domorder.StatusEntry
	for rows.Next() {
		var e domorder.StatusEntry
		if err := rows.Scan(&e.Status, &e.Note, &e.UpdatedBy, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanOrder(s scanner) (*domorder.Order, error) {
	var (
		o                                  domorder.Order
		shipping, billing                  []byte
		paid, shipped, delivered, canceled sql.NullTime
	)
	err := s.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.Summary.Subtotal, &o.Summary.Shipping, &o.Summary.Tax, &o.Summary.Discount, &o.Summary.TotalAmount,
		&o.Summary.TotalItems, &o.Summary.ItemCount,
		&shipping, &billing, &o.Notes, &o.TrackingNumber, &o.Carrier, &o.TransactionID, &o.CancellationReason,
		&o.CreatedAt, &o.UpdatedAt, &paid, &shipped, &delivered, &canceled)
	if err != nil {
		return nil, err
	}
	if o.ShippingAddress, err = persistence.DecodeAddress(shipping); err != nil {
		return nil, fmt.Errorf("order %s shipping address: %w", o.ID, err)
	}
	if o.BillingAddress, err = persistence.DecodeOptionalAddress(billing); err != nil {
		return nil, fmt.Errorf("order %s billing address: %w", o.ID, err)
	}
	o.PaidAt = timePtr(paid)
	o.ShippedAt = timePtr(shipped)
	o.DeliveredAt = timePtr(delivered)
	o.CancelledAt = timePtr(canceled)
	return &o, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullJSON(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
