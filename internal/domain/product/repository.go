package product

import "context"

type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]*Product, error)
	List(ctx context.Context, filter ListFilter) ([]*Product, error)
	SetStock(ctx context.Context, id string, stock int64) error
}
