package order

import (
	"fmt"
	"time"

	domproduct "example.com/shopcore/internal/domain/product"
)

const (
	noteCreated   = "Order created"
	noteCancelled = "Order cancelled by user"
)

type Address struct {
	FirstName string
	LastName  string
	Company   string
	Street    string
	Apartment string
	City      string
	State     string
	ZipCode   string
	Country   string
	Phone     string
	Email     string
}

// Item is a snapshot of a product taken when the order was placed.
type Item struct {
	ProductID     string
	ProductName   string
	ProductImage  string
	Price         float64
	DiscountPrice *float64
	FinalPrice    float64
	Quantity      int64
	ItemTotal     float64
	SKU           string
	Category      string
}

// SnapshotItem copies the fields of p that an order keeps.
func SnapshotItem(p *domproduct.Product, qty int64) Item {
	final := p.EffectivePrice()
	var discount *float64
	if p.DiscountPrice != nil {
		d := *p.DiscountPrice
		discount = &d
	}
	return Item{
		ProductID:     p.ID,
		ProductName:   p.Name,
		ProductImage:  p.PrimaryImage(),
		Price:         p.Price,
		DiscountPrice: discount,
		FinalPrice:    final,
		Quantity:      qty,
		ItemTotal:     roundCents(final * float64(qty)),
		SKU:           p.SKU,
		Category:      p.Category,
	}
}

type StatusEntry struct {
	Status    Status
	Timestamp time.Time
	Note      string
	UpdatedBy string
}

type Order struct {
	ID                 string
	OrderNumber        string
	UserID             string
	Items              []Item
	Summary            Summary
	ShippingAddress    Address
	BillingAddress     *Address
	PaymentMethod      PaymentMethod
	PaymentStatus      PaymentStatus
	Status             Status
	Notes              string
	TrackingNumber     string
	Carrier            string
	TransactionID      string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaidAt             *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time

	history []StatusEntry
}

type NewParams struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []Item
	Summary         Summary
	ShippingAddress Address
	BillingAddress  *Address
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Notes           string
	Now             time.Time
}

// New builds a pending order with its creation history entry.
func New(p NewParams) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, ErrEmptyOrderItems
	}
	if !p.PaymentMethod.IsValid() {
		return nil, ErrInvalidPaymentMethod
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentPending
	}
	if !p.PaymentStatus.IsValid() {
		return nil, ErrInvalidPaymentStatus
	}
	if p.ShippingAddress == (Address{}) {
		return nil, ErrMissingShippingAddress
	}

	items := make([]Item, len(p.Items))
	copy(items, p.Items)

	o := &Order{
		ID:              p.ID,
		OrderNumber:     p.OrderNumber,
		UserID:          p.UserID,
		Items:           items,
		Summary:         p.Summary,
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		PaymentMethod:   p.PaymentMethod,
		PaymentStatus:   p.PaymentStatus,
		Status:          StatusPending,
		Notes:           p.Notes,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}
	if o.PaymentStatus == PaymentPaid {
		paid := p.Now
		o.PaidAt = &paid
	}
	o.appendHistory(StatusPending, noteCreated, p.UserID, p.Now)
	return o, nil
}

// Rehydrate attaches persisted history to an order loaded by a store.
func Rehydrate(o *Order, history []StatusEntry) *Order {
	o.history = append([]StatusEntry(nil), history...)
	return o
}

// History returns a copy of the status history, oldest first.
func (o *Order) History() []StatusEntry {
	out := make([]StatusEntry, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]Item, len(o.Items))
	copy(c.Items, o.Items)
	c.history = o.History()
	if o.BillingAddress != nil {
		b := *o.BillingAddress
		c.BillingAddress = &b
	}
	return &c
}

// StockLines lists the quantities this order holds per product.
func (o *Order) StockLines() []domproduct.StockLine {
	lines := make([]domproduct.StockLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, domproduct.StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return domproduct.MergeLines(lines)
}

// TransitionTo moves the order to status. A cancelled target is handled by
// Cancel and its restock lines are returned. A shipped order may only move to
// delivered.
func (o *Order) TransitionTo(status Status, note, by string, now time.Time) ([]domproduct.StockLine, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if status == StatusCancelled {
		return o.Cancel(note, by, now)
	}
	if o.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
	}
	// Shipped goods can only be delivered.
	if o.Status == StatusShipped && status != StatusDelivered {
		return nil, fmt.Errorf("%w: shipped order can only be delivered", ErrInvalidTransition)
	}

	o.Status = status
	o.UpdatedAt = now
	switch status {
	case StatusShipped:
		o.ShippedAt = timePtr(now)
	case StatusDelivered:
		o.DeliveredAt = timePtr(now)
	}
	if note == "" {
		note = fmt.Sprintf("Order status updated to %s", status)
	}
	o.appendHistory(status, note, by, now)
	return nil, nil
}

// Cancel marks the order cancelled and returns the stock to give back.
func (o *Order) Cancel(reason, by string, now time.Time) ([]domproduct.StockLine, error) {
	switch o.Status {
	case StatusShipped, StatusDelivered:
		return nil, ErrCannotCancel
	case StatusCancelled:
		return nil, fmt.Errorf("%w: order is already cancelled", ErrInvalidTransition)
	}
	if reason == "" {
		reason = noteCancelled
	}
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.CancelledAt = timePtr(now)
	o.UpdatedAt = now
	o.appendHistory(StatusCancelled, reason, by, now)
	return o.StockLines(), nil
}

func (o *Order) SetPaymentStatus(ps PaymentStatus, transactionID string, now time.Time) error {
	if !ps.IsValid() {
		return ErrInvalidPaymentStatus
	}
	o.PaymentStatus = ps
	if transactionID != "" {
		o.TransactionID = transactionID
	}
	if ps == PaymentPaid {
		o.PaidAt = timePtr(now)
	}
	o.UpdatedAt = now
	return nil
}

func (o *Order) AssignTracking(number, carrier string, now time.Time) error {
	if number == "" {
		return ErrMissingTrackingNumber
	}
	o.TrackingNumber = number
	if carrier != "" {
		o.Carrier = carrier
	}
	o.UpdatedAt = now
	return nil
}

func (o *Order) appendHistory(status Status, note, by string, now time.Time) {
	o.history = append(o.history, StatusEntry{
		Status:    status,
		Timestamp: now,
		Note:      note,
		UpdatedBy: by,
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}
