package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/infra/persistence"
)

const orderColumns = `
	id, order_number, user_id, status, payment_method, payment_status,
	subtotal, shipping, tax, discount, total_amount, total_items, item_count,
	shipping_address, billing_address, notes, tracking_number, carrier,
	transaction_id, cancellation_reason,
	created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *domorder.Order, consumedCartProductIDs []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertOrder(ctx, tx, o); err != nil {
		if isUniqueViolation(err) {
			return domorder.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}

	// Lines arrive sorted by product id so concurrent checkouts lock rows in the same order.
	for _, line := range o.StockLines() {
		tag, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $1
			WHERE id = $2 AND is_active AND stock >= $1`, line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return classifyShortage(ctx, tx, line.ProductID, line.Quantity)
		}
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, product_name, product_image,
				price, discount_price, final_price, quantity, item_total, sku, category)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			o.ID, i, it.ProductID, it.ProductName, it.ProductImage, it.Price, it.DiscountPrice,
			it.FinalPrice, it.Quantity, it.ItemTotal, it.SKU, it.Category)
	}
	queueHistory(batch, o.ID, o.History())
	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}

	if err := deleteCartLines(ctx, tx, o.UserID, consumedCartProductIDs); err != nil {
		return fmt.Errorf("consume cart: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domorder.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domorder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return hydrate(ctx, r.pool, o)
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter) ([]*domorder.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
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
		if orders[i], err = hydrate(ctx, r.pool, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) Update(ctx context.Context, id string, fn domorder.MutateFunc) (*domorder.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domorder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o, err = hydrate(ctx, tx, o); err != nil {
		return nil, err
	}
	seen := len(o.History())

	restock, err := fn(o)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for _, line := range domproduct.MergeLines(restock) {
		batch.Queue(`UPDATE products SET stock = stock + $1 WHERE id = $2`, line.Quantity, line.ProductID)
	}
	batch.Queue(`
		UPDATE orders SET status = $1, payment_status = $2, tracking_number = $3, carrier = $4,
			transaction_id = $5, cancellation_reason = $6, updated_at = $7,
			paid_at = $8, shipped_at = $9, delivered_at = $10, cancelled_at = $11
		WHERE id = $12`,
		o.Status, o.PaymentStatus, o.TrackingNumber, o.Carrier, o.TransactionID, o.CancellationReason,
		o.UpdatedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ID)
	queueHistory(batch, o.ID, o.History()[seen:])
	if err := sendBatch(ctx, tx, batch); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *domorder.Order) error {
	shipping, err := persistence.EncodeAddress(o.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := persistence.EncodeOptionalAddress(o.BillingAddress)
	if err != nil {
		return err
	}
	s := o.Summary
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		o.ID, o.OrderNumber, o.UserID, o.Status, o.PaymentMethod, o.PaymentStatus,
		s.Subtotal, s.Shipping, s.Tax, s.Discount, s.TotalAmount, s.TotalItems, s.ItemCount,
		shipping, billing, o.Notes, o.TrackingNumber, o.Carrier, o.TransactionID,
		o.CancellationReason, o.CreatedAt, o.UpdatedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt)
	return err
}

func queueHistory(batch *pgx.Batch, orderID string, entries []domorder.StatusEntry) {
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO order_status_history (order_id, status, note, updated_by, created_at)
			VALUES ($1, $2, $3, $4, $5)`, orderID, e.Status, e.Note, e.UpdatedBy, e.Timestamp)
	}
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func hydrate(ctx context.Context, q querier, o *domorder.Order) (*domorder.Order, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, product_image, price, discount_price, final_price,
			quantity, item_total, sku, category
		FROM order_items WHERE order_id = $1 ORDER BY position`, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domorder.Item, error) {
		var it domorder.Item
		err := row.Scan(&it.ProductID, &it.ProductName, &it.ProductImage, &it.Price, &it.DiscountPrice,
			&it.FinalPrice, &it.Quantity, &it.ItemTotal, &it.SKU, &it.Category)
		return it, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT status, note, updated_by, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return nil, err
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domorder.StatusEntry, error) {
		var e domorder.StatusEntry
		err := row.Scan(&e.Status, &e.Note, &e.UpdatedBy, &e.Timestamp)
		e.Timestamp = e.Timestamp.UTC()
		return e, err
	})
	if err != nil {
		return nil, err
	}
	return domorder.Rehydrate(o, history), nil
}

func scanOrder(row pgx.Row) (*domorder.Order, error) {
	var (
		o                 domorder.Order
		shipping, billing []byte
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.Summary.Subtotal, &o.Summary.Shipping, &o.Summary.Tax, &o.Summary.Discount, &o.Summary.TotalAmount,
		&o.Summary.TotalItems, &o.Summary.ItemCount,
		&shipping, &billing, &o.Notes, &o.TrackingNumber, &o.Carrier, &o.TransactionID, &o.CancellationReason,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	if o.ShippingAddress, err = persistence.DecodeAddress(shipping); err != nil {
		return nil, fmt.Errorf("order %s shipping address: %w", o.ID, err)
	}
	if o.BillingAddress, err = persistence.DecodeOptionalAddress(billing); err != nil {
		return nil, fmt.Errorf("order %s billing address: %w", o.ID, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
