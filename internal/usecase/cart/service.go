package cart

import (
	"context"

	"go.uber.org/zap"

	domcart "example.com/shopcore/internal/domain/cart"
	domproduct "example.com/shopcore/internal/domain/product"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domproduct.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domproduct.Product, error)
}

type Service struct {
	cartRepo    domcart.Repository
	productRepo ProductRepository
	logger      *zap.Logger
}

func NewService(cartRepo domcart.Repository, productRepo ProductRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		logger:      logger,
	}
}

func (s *Service) AddToCart(ctx context.Context, userID, productID string, quantity int64) error {
	if !domproduct.ValidQuantity(quantity) {
		return domcart.ErrInvalidQuantity
	}
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return err
	}
	wanted := quantity
	if existing, ok := domcart.Find(items, productID); ok {
		wanted += existing.Quantity
	}
	if err := domproduct.CheckReservable(p, productID, wanted); err != nil {
		return err
	}
	return s.cartRepo.AddOrUpdateItem(ctx, userID, productID, quantity)
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int64) error {
	if !domproduct.ValidQuantity(quantity) {
		return domcart.ErrInvalidQuantity
	}
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if err := domproduct.CheckReservable(p, productID, quantity); err != nil {
		return err
	}
	return s.cartRepo.SetQuantity(ctx, userID, productID, quantity)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := domcart.Find(items, productID); !ok {
		return domcart.ErrItemNotInCart
	}
	return s.cartRepo.DeleteItems(ctx, userID, []string{productID})
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.cartRepo.Clear(ctx, userID)
}

// GetCart returns the priced cart. Lines whose product is gone, inactive or
// sold out are deleted, and quantities above the current stock are lowered.
func (s *Service) GetCart(ctx context.Context, userID string) (*domcart.Cart, error) {
	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart := &domcart.Cart{UserID: userID, Items: []domcart.DetailedItem{}}
	if len(items) == 0 {
		return cart, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]*domproduct.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	var stale []string
	for _, item := range items {
		p, ok := productMap[item.ProductID]
		if !ok || !p.IsActive || p.Stock <= 0 {
			stale = append(stale, item.ProductID)
			continue
		}
		if item.Quantity > p.Stock {
			if err := s.cartRepo.SetQuantity(ctx, userID, item.ProductID, p.Stock); err != nil {
				return nil, err
			}
			item.Quantity = p.Stock
		}
		price := p.EffectivePrice()
		cart.Items = append(cart.Items, domcart.DetailedItem{
			Item:         item,
			ProductName:  p.Name,
			ProductImage: p.PrimaryImage(),
			UnitPrice:    price,
			LineTotal:    price * float64(item.Quantity),
			Stock:        p.Stock,
		})
		cart.TotalItems += item.Quantity
		cart.Subtotal += price * float64(item.Quantity)
	}

	if len(stale) > 0 {
		if err := s.cartRepo.DeleteItems(ctx, userID, stale); err != nil {
			return nil, err
		}
		s.logger.Debug("pruned cart lines", zap.String("user_id", userID), zap.Strings("product_ids", stale))
	}
	return cart, nil
}
