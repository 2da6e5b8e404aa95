package memory

import (
	"context"
	"sort"

	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
)

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *domorder.Order, consumedCartProductIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, taken := r.db.numbers[o.OrderNumber]; taken {
		return domorder.ErrDuplicateOrderNumber
	}

	lines := o.StockLines()
	for _, l := range lines {
		if err := domproduct.CheckReservable(r.db.products[l.ProductID], l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	for _, l := range lines {
		r.db.products[l.ProductID].Stock -= l.Quantity
	}

	r.db.orders[o.ID] = o.Clone()
	r.db.numbers[o.OrderNumber] = o.ID
	r.db.deleteCartLines(o.UserID, consumedCartProductIDs)
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domorder.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok {
		return nil, domorder.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter) ([]*domorder.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]*domorder.Order, 0)
	for _, o := range r.db.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *OrderRepository) Update(ctx context.Context, id string, fn domorder.MutateFunc) (*domorder.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.orders[id]
	if !ok {
		return nil, domorder.ErrOrderNotFound
	}
	working := current.Clone()
	restock, err := fn(working)
	if err != nil {
		return nil, err
	}
	for _, l := range restock {
		if p, ok := r.db.products[l.ProductID]; ok {
			p.Stock += l.Quantity
		}
	}
	r.db.orders[id] = working.Clone()
	return working, nil
}
