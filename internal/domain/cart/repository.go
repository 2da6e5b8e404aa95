package cart

import "context"

type Repository interface {
	// AddOrUpdateItem adds quantity to the existing line or creates it.
	AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int64) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int64) error
	ListItems(ctx context.Context, userID string) ([]Item, error)
	DeleteItems(ctx context.Context, userID string, productIDs []string) error
	Clear(ctx context.Context, userID string) error
}
