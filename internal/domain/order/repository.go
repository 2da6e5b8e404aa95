package order

import (
	"context"

	domproduct "example.com/shopcore/internal/domain/product"
)

type ListFilter struct {
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	Limit         int
}

// MutateFunc changes a loaded order and returns stock to give back.
type MutateFunc func(o *Order) ([]domproduct.StockLine, error)

type Repository interface {
	// Create stores o, takes its item quantities out of stock and removes
	// the consumed cart lines of o.UserID, in one transaction. Stock is only
	// taken when the product is active and has enough units, otherwise a
	// product error is returned and nothing is written.
	Create(ctx context.Context, o *Order, consumedCartProductIDs []string) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
	// Update loads the order under lock, applies fn, restores the returned
	// stock lines (missing products are skipped) and saves the order along
	// with any new history entries, in one transaction.
	Update(ctx context.Context, id string, fn MutateFunc) (*Order, error)
}
