package product

import (
	"context"

	"go.uber.org/zap"

	dom "example.com/shopcore/internal/domain/product"
)

type Service struct {
	repo   dom.Repository
	logger *zap.Logger
}

func NewService(repo dom.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetByID(ctx context.Context, id string) (*dom.Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter dom.ListFilter) ([]*dom.Product, error) {
	return s.repo.List(ctx, filter)
}

// SetStock overwrites the stock counter, used for restocking.
func (s *Service) SetStock(ctx context.Context, id string, stock int64) (*dom.Product, error) {
	if stock < 0 {
		return nil, dom.ErrInvalidStock
	}
	if err := s.repo.SetStock(ctx, id, stock); err != nil {
		return nil, err
	}
	s.logger.Info("stock set", zap.String("product_id", id), zap.Int64("stock", stock))
	return s.repo.GetByID(ctx, id)
}
