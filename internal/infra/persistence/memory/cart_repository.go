package memory

import (
	"context"

	domcart "example.com/shopcore/internal/domain/cart"
)

type CartRepository struct {
	db *DB
}

func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := r.db.carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			return nil
		}
	}
	r.db.carts[userID] = append(items, domcart.Item{ProductID: productID, Quantity: quantity})
	return nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := r.db.carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	return domcart.ErrItemNotInCart
}

func (r *CartRepository) ListItems(ctx context.Context, userID string) ([]domcart.Item, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return append([]domcart.Item{}, r.db.carts[userID]...), nil
}

func (r *CartRepository) DeleteItems(ctx context.Context, userID string, productIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.deleteCartLines(userID, productIDs)
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.carts, userID)
	return nil
}

// deleteCartLines must be called with db.mu held.
func (db *DB) deleteCartLines(userID string, productIDs []string) {
	if len(productIDs) == 0 {
		return
	}
	drop := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}
	kept := db.carts[userID][:0]
	for _, it := range db.carts[userID] {
		if !drop[it.ProductID] {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		delete(db.carts, userID)
		return
	}
	db.carts[userID] = kept
}
