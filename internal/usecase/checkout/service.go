package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domcart "example.com/shopcore/internal/domain/cart"
	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
)

const maxOrderNumberAttempts = 5

type CartRepository interface {
	ListItems(ctx context.Context, userID string) ([]domcart.Item, error)
}

type ProductRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]*domproduct.Product, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *domorder.Order, consumedCartProductIDs []string) error
}

type Service struct {
	cartRepo    CartRepository
	productRepo ProductRepository
	orderRepo   OrderRepository
	pricing     domorder.PricingPolicy
	logger      *zap.Logger
	clock       func() time.Time
	newID       func() string
	newNumber   func(time.Time) string
}

type Option func(*Service)

func WithPricing(p domorder.PricingPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.pricing = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOrderNumbers overrides the order number generator.
func WithOrderNumbers(gen func(time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newNumber = gen
		}
	}
}

func NewService(cartRepo CartRepository, productRepo ProductRepository, orderRepo OrderRepository, opts ...Option) *Service {
	s := &Service{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		pricing:     domorder.NoCharges{},
		logger:      zap.NewNop(),
		clock:       time.Now,
		newID:       func() string { return ulid.Make().String() },
		newNumber:   domorder.NewOrderNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrderInput places an order either from explicit Items or from the
// cart lines named by ProductIDs. Items wins when both are given.
type CreateOrderInput struct {
	UserID          string
	Items           []domproduct.StockLine
	ProductIDs      []string
	ShippingAddress domorder.Address
	BillingAddress  *domorder.Address
	PaymentMethod   domorder.PaymentMethod
	PaymentStatus   domorder.PaymentStatus
	Notes           string
}

type CreateFromCartInput struct {
	UserID          string
	ShippingAddress domorder.Address
	BillingAddress  *domorder.Address
	PaymentMethod   domorder.PaymentMethod
	Notes           string
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domorder.Order, error) {
	if err := validateHeader(in.PaymentMethod, in.PaymentStatus); err != nil {
		return nil, err
	}

	var (
		lines    []domproduct.StockLine
		consumed []string
		err      error
	)
	switch {
	case len(in.Items) > 0:
		lines, err = explicitLines(in.Items)
	case len(in.ProductIDs) > 0:
		lines, consumed, err = s.cartLines(ctx, in.UserID, in.ProductIDs)
	default:
		err = domorder.ErrEmptyOrderItems
	}
	if err != nil {
		return nil, s.reject(in.UserID, err)
	}

	return s.place(ctx, placement{
		userID:   in.UserID,
		lines:    lines,
		consumed: consumed,
		shipping: in.ShippingAddress,
		billing:  in.BillingAddress,
		method:   in.PaymentMethod,
		payment:  in.PaymentStatus,
		notes:    in.Notes,
	})
}

func (s *Service) CreateOrderFromCart(ctx context.Context, in CreateFromCartInput) (*domorder.Order, error) {
	if err := validateHeader(in.PaymentMethod, ""); err != nil {
		return nil, err
	}

	lines, consumed, err := s.cartLines(ctx, in.UserID, nil)
	if err != nil {
		return nil, s.reject(in.UserID, err)
	}

	return s.place(ctx, placement{
		userID:   in.UserID,
		lines:    lines,
		consumed: consumed,
		shipping: in.ShippingAddress,
		billing:  in.BillingAddress,
		method:   in.PaymentMethod,
		notes:    in.Notes,
	})
}

type placement struct {
	userID   string
	lines    []domproduct.StockLine
	consumed []string
	shipping domorder.Address
	billing  *domorder.Address
	method   domorder.PaymentMethod
	payment  domorder.PaymentStatus
	notes    string
}

func (s *Service) place(ctx context.Context, p placement) (*domorder.Order, error) {
	items, err := s.snapshot(ctx, p.lines)
	if err != nil {
		return nil, s.reject(p.userID, err)
	}

	subtotal := domorder.Summarize(items, domorder.Charges{}).Subtotal
	summary := domorder.Summarize(items, s.pricing.Charges(items, subtotal))

	now := s.clock().UTC()
	o, err := domorder.New(domorder.NewParams{
		ID:              s.newID(),
		UserID:          p.userID,
		Items:           items,
		Summary:         summary,
		ShippingAddress: p.shipping,
		BillingAddress:  p.billing,
		PaymentMethod:   p.method,
		PaymentStatus:   p.payment,
		Notes:           p.notes,
		Now:             now,
	})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		o.OrderNumber = s.newNumber(s.clock())
		err = s.orderRepo.Create(ctx, o, p.consumed)
		if errors.Is(err, domorder.ErrDuplicateOrderNumber) {
			s.logger.Debug("order number collision", zap.String("order_number", o.OrderNumber))
			continue
		}
		if err != nil {
			return nil, s.reject(p.userID, err)
		}
		s.logger.Info("order created",
			zap.String("order_id", o.ID),
			zap.String("order_number", o.OrderNumber),
			zap.String("user_id", o.UserID),
			zap.Float64("total", o.Summary.TotalAmount),
		)
		return o, nil
	}
	return nil, domorder.ErrOrderNumberExhausted
}

// snapshot re-reads every product and copies its current price data.
func (s *Service) snapshot(ctx context.Context, lines []domproduct.StockLine) ([]domorder.Item, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domproduct.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]domorder.Item, 0, len(lines))
	for _, l := range lines {
		p := byID[l.ProductID]
		if err := domproduct.CheckReservable(p, l.ProductID, l.Quantity); err != nil {
			return nil, err
		}
		items = append(items, domorder.SnapshotItem(p, l.Quantity))
	}
	return items, nil
}

// cartLines resolves the cart lines to order. A nil productIDs takes the
// whole cart.
func (s *Service) cartLines(ctx context.Context, userID string, productIDs []string) ([]domproduct.StockLine, []string, error) {
	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, domcart.ErrCartEmpty
	}

	var picked []domcart.Item
	if productIDs == nil {
		picked = items
	} else {
		for _, id := range dedupe(productIDs) {
			it, ok := domcart.Find(items, id)
			if !ok {
				return nil, nil, domcart.ErrItemNotInCart
			}
			picked = append(picked, it)
		}
	}

	lines := make([]domproduct.StockLine, 0, len(picked))
	consumed := make([]string, 0, len(picked))
	for _, it := range picked {
		lines = append(lines, domproduct.StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
		consumed = append(consumed, it.ProductID)
	}
	return domproduct.MergeLines(lines), consumed, nil
}

func explicitLines(items []domproduct.StockLine) ([]domproduct.StockLine, error) {
	for _, it := range items {
		if it.ProductID == "" || !domproduct.ValidQuantity(it.Quantity) {
			return nil, domcart.ErrInvalidQuantity
		}
	}
	merged := domproduct.MergeLines(items)
	for _, l := range merged {
		if !domproduct.ValidQuantity(l.Quantity) {
			return nil, domcart.ErrInvalidQuantity
		}
	}
	return merged, nil
}

func validateHeader(method domorder.PaymentMethod, payment domorder.PaymentStatus) error {
	if !method.IsValid() {
		return domorder.ErrInvalidPaymentMethod
	}
	if payment != "" && !payment.IsValid() {
		return domorder.ErrInvalidPaymentStatus
	}
	return nil
}

func (s *Service) reject(userID string, err error) error {
	if isBusinessError(err) {
		s.logger.Warn("order rejected", zap.String("user_id", userID), zap.Error(err))
	}
	return err
}

func isBusinessError(err error) bool {
	return errors.Is(err, domproduct.ErrProductNotFound) ||
		errors.Is(err, domproduct.ErrProductUnavailable) ||
		errors.Is(err, domproduct.ErrInsufficientStock) ||
		errors.Is(err, domcart.ErrCartEmpty) ||
		errors.Is(err, domcart.ErrItemNotInCart)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
