package memory

import (
	"context"
	"sort"

	domproduct "example.com/shopcore/internal/domain/product"
)

type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domproduct.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[id]
	if !ok {
		return nil, domproduct.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]*domproduct.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*domproduct.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.db.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *ProductRepository) List(ctx context.Context, filter domproduct.ListFilter) ([]*domproduct.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*domproduct.Product, 0, len(r.db.products))
	for _, p := range r.db.products {
		if filter.OnlyActive && !p.IsActive {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int64) error {
	if stock < 0 {
		return domproduct.ErrInvalidStock
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[id]
	if !ok {
		return domproduct.ErrProductNotFound
	}
	p.Stock = stock
	return nil
}
