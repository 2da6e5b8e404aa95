package order

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	domuser "example.com/shopcore/internal/domain/user"
)

const maxListLimit = 200

type Service struct {
	repo   domorder.Repository
	logger *zap.Logger
	clock  func() time.Time
}

func NewService(repo domorder.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, clock: time.Now}
}

type Stats struct {
	TotalOrders   int
	TotalRevenue  float64
	StatusCounts  map[domorder.Status]int
	PaymentCounts map[domorder.PaymentStatus]int
}

func (s *Service) Get(ctx context.Context, actor domuser.Actor, id string) (*domorder.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, domuser.ErrForbidden
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, actor domuser.Actor, filter domorder.ListFilter) ([]*domorder.Order, error) {
	if actor.UserID == "" {
		return nil, domuser.ErrUnauthorized
	}
	filter.UserID = actor.UserID
	if err := normalizeFilter(&filter); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) ListAll(ctx context.Context, actor domuser.Actor, filter domorder.ListFilter) ([]*domorder.Order, error) {
	if !actor.IsAdmin() {
		return nil, domuser.ErrForbidden
	}
	if err := normalizeFilter(&filter); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) UpdateStatus(ctx context.Context, actor domuser.Actor, id string, status domorder.Status, note string) (*domorder.Order, error) {
	if !actor.IsAdmin() {
		return nil, domuser.ErrForbidden
	}
	if !status.IsValid() {
		return nil, domorder.ErrInvalidStatus
	}
	o, err := s.repo.Update(ctx, id, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		return o.TransitionTo(status, strings.TrimSpace(note), actor.UserID, s.clock().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order status updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("by", actor.UserID),
	)
	return o, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, actor domuser.Actor, id string, ps domorder.PaymentStatus, transactionID string) (*domorder.Order, error) {
	if !actor.IsAdmin() {
		return nil, domuser.ErrForbidden
	}
	if !ps.IsValid() {
		return nil, domorder.ErrInvalidPaymentStatus
	}
	o, err := s.repo.Update(ctx, id, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		return nil, o.SetPaymentStatus(ps, strings.TrimSpace(transactionID), s.clock().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order payment updated",
		zap.String("order_id", o.ID),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return o, nil
}

func (s *Service) AddTracking(ctx context.Context, actor domuser.Actor, id, number, carrier string) (*domorder.Order, error) {
	if !actor.IsAdmin() {
		return nil, domuser.ErrForbidden
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domorder.ErrMissingTrackingNumber
	}
	return s.repo.Update(ctx, id, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		return nil, o.AssignTracking(number, strings.TrimSpace(carrier), s.clock().UTC())
	})
}

// Cancel cancels an order on behalf of its owner or an admin and puts the
// ordered quantities back in stock.
func (s *Service) Cancel(ctx context.Context, actor domuser.Actor, id, reason string) (*domorder.Order, error) {
	o, err := s.repo.Update(ctx, id, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		if !actor.CanAccess(o.UserID) {
			return nil, domuser.ErrForbidden
		}
		return o.Cancel(strings.TrimSpace(reason), actor.UserID, s.clock().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order cancelled", zap.String("order_id", o.ID), zap.String("by", actor.UserID))
	return o, nil
}

func (s *Service) Stats(ctx context.Context, actor domuser.Actor) (*Stats, error) {
	if !actor.IsAdmin() {
		return nil, domuser.ErrForbidden
	}
	orders, err := s.repo.List(ctx, domorder.ListFilter{})
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalOrders:   len(orders),
		StatusCounts:  make(map[domorder.Status]int, len(domorder.AllStatuses)),
		PaymentCounts: make(map[domorder.PaymentStatus]int, len(domorder.AllPaymentStatuses)),
	}
	for _, status := range domorder.AllStatuses {
		st.StatusCounts[status] = 0
	}
	for _, ps := range domorder.AllPaymentStatuses {
		st.PaymentCounts[ps] = 0
	}
	for _, o := range orders {
		st.StatusCounts[o.Status]++
		st.PaymentCounts[o.PaymentStatus]++
		if o.PaymentStatus == domorder.PaymentPaid {
			st.TotalRevenue += o.Summary.TotalAmount
		}
	}
	return st, nil
}

func normalizeFilter(f *domorder.ListFilter) error {
	if f.Status != "" && !f.Status.IsValid() {
		return domorder.ErrInvalidStatus
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.IsValid() {
		return domorder.ErrInvalidPaymentStatus
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return nil
}
