package order

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domproduct "example.com/shopcore/internal/domain/product"
)

var testAddress = Address{
	FirstName: "Ada",
	LastName:  "Lovelace",
	Street:    "12 Analytical Row",
	City:      "London",
	State:     "LDN",
	ZipCode:   "N1 9GU",
	Country:   "UK",
	Phone:     "+441234567890",
}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	discount := 80.0
	p := &domproduct.Product{ID: "p1", Name: "Lamp", Price: 100, DiscountPrice: &discount, IsActive: true, Stock: 3}
	items := []Item{SnapshotItem(p, 2)}
	o, err := New(NewParams{
		ID:              "o1",
		OrderNumber:     "ORD123456789",
		UserID:          "u1",
		Items:           items,
		Summary:         Summarize(items, Charges{}),
		ShippingAddress: testAddress,
		PaymentMethod:   MethodCashOnDelivery,
		Now:             time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	return o
}

func TestNew_SetsPendingAndCreatedHistory(t *testing.T) {
	o := newTestOrder(t)

	require.Equal(t, StatusPending, o.Status)
	require.Equal(t, PaymentPending, o.PaymentStatus)
	h := o.History()
	require.Len(t, h, 1)
	require.Equal(t, StatusPending, h[0].Status)
	require.Equal(t, "Order created", h[0].Note)
	require.Equal(t, "u1", h[0].UpdatedBy)
}

func TestNew_Validation(t *testing.T) {
	item := Item{ProductID: "p1", Quantity: 1, FinalPrice: 1, ItemTotal: 1}

	_, err := New(NewParams{ShippingAddress: testAddress, PaymentMethod: MethodPayPal})
	require.ErrorIs(t, err, ErrEmptyOrderItems)

	_, err = New(NewParams{Items: []Item{item}, ShippingAddress: testAddress, PaymentMethod: "cheque"})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = New(NewParams{Items: []Item{item}, ShippingAddress: testAddress, PaymentMethod: MethodPayPal, PaymentStatus: "owed"})
	require.ErrorIs(t, err, ErrInvalidPaymentStatus)

	_, err = New(NewParams{Items: []Item{item}, PaymentMethod: MethodPayPal})
	require.ErrorIs(t, err, ErrMissingShippingAddress)
}

func TestSnapshotItem_UsesDiscountPrice(t *testing.T) {
	o := newTestOrder(t)
	it := o.Items[0]
	require.Equal(t, 100.0, it.Price)
	require.Equal(t, 80.0, it.FinalPrice)
	require.Equal(t, 160.0, it.ItemTotal)
	require.Equal(t, 160.0, o.Summary.Subtotal)
	require.Equal(t, int64(2), o.Summary.TotalItems)
	require.Equal(t, 1, o.Summary.ItemCount)
}

func TestHistory_ReturnsCopy(t *testing.T) {
	o := newTestOrder(t)
	h := o.History()
	h[0].Note = "tampered"
	require.Equal(t, "Order created", o.History()[0].Note)
}

func TestTransitionTo_ForwardAndTimestamps(t *testing.T) {
	o := newTestOrder(t)
	now := time.Unix(1700000100, 0)

	for _, st := range []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered} {
		lines, err := o.TransitionTo(st, "", "admin", now)
		require.NoError(t, err)
		require.Nil(t, lines)
	}
	require.Equal(t, StatusDelivered, o.Status)
	require.NotNil(t, o.ShippedAt)
	require.NotNil(t, o.DeliveredAt)

	h := o.History()
	require.Len(t, h, 5)
	require.Equal(t, "Order status updated to shipped", h[3].Note)
	require.Equal(t, "admin", h[4].UpdatedBy)
}

func TestTransitionTo_Errors(t *testing.T) {
	o := newTestOrder(t)

	_, err := o.TransitionTo("teleported", "", "admin", time.Now())
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = o.TransitionTo(StatusDelivered, "", "admin", time.Now())
	require.NoError(t, err)
	_, err = o.TransitionTo(StatusProcessing, "", "admin", time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = o.TransitionTo(StatusCancelled, "", "admin", time.Now())
	require.ErrorIs(t, err, ErrCannotCancel)
}

func TestTransitionTo_ShippedOnlyToDelivered(t *testing.T) {
	o := newTestOrder(t)
	_, err := o.TransitionTo(StatusShipped, "", "admin", time.Now())
	require.NoError(t, err)

	for _, st := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped} {
		_, err = o.TransitionTo(st, "", "admin", time.Now())
		require.ErrorIs(t, err, ErrInvalidTransition, st)
	}
	_, err = o.Cancel("", "admin", time.Now())
	require.ErrorIs(t, err, ErrCannotCancel)
	require.Equal(t, StatusShipped, o.Status)
	require.Len(t, o.History(), 2)

	_, err = o.TransitionTo(StatusDelivered, "", "admin", time.Now())
	require.NoError(t, err)
}

func TestCancel_ReturnsRestockLines(t *testing.T) {
	o := newTestOrder(t)

	lines, err := o.TransitionTo(StatusCancelled, "", "u1", time.Now())
	require.NoError(t, err)
	require.Equal(t, []domproduct.StockLine{{ProductID: "p1", Quantity: 2}}, lines)
	require.Equal(t, StatusCancelled, o.Status)
	require.Equal(t, "Order cancelled by user", o.CancellationReason)
	require.NotNil(t, o.CancelledAt)

	_, err = o.Cancel("again", "u1", time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, o.History(), 2)
}

func TestCancel_ShippedRejected(t *testing.T) {
	o := newTestOrder(t)
	_, err := o.TransitionTo(StatusShipped, "", "admin", time.Now())
	require.NoError(t, err)

	lines, err := o.Cancel("changed my mind", "u1", time.Now())
	require.ErrorIs(t, err, ErrCannotCancel)
	require.Nil(t, lines)
	require.Equal(t, StatusShipped, o.Status)
}

func TestSetPaymentStatus(t *testing.T) {
	o := newTestOrder(t)

	require.ErrorIs(t, o.SetPaymentStatus("owed", "", time.Now()), ErrInvalidPaymentStatus)

	require.NoError(t, o.SetPaymentStatus(PaymentPaid, "tx-1", time.Now()))
	require.Equal(t, PaymentPaid, o.PaymentStatus)
	require.Equal(t, "tx-1", o.TransactionID)
	require.NotNil(t, o.PaidAt)

	require.NoError(t, o.SetPaymentStatus(PaymentRefunded, "", time.Now()))
	require.Equal(t, "tx-1", o.TransactionID)
	require.Equal(t, StatusPending, o.Status)
}

func TestAssignTracking(t *testing.T) {
	o := newTestOrder(t)

	require.ErrorIs(t, o.AssignTracking("", "UPS", time.Now()), ErrMissingTrackingNumber)
	require.NoError(t, o.AssignTracking("1Z999", "UPS", time.Now()))
	require.Equal(t, "1Z999", o.TrackingNumber)
	require.Equal(t, "UPS", o.Carrier)
	require.Equal(t, StatusPending, o.Status)
}

func TestSummarize_WithFlatPolicy(t *testing.T) {
	items := []Item{
		{ProductID: "a", Quantity: 2, FinalPrice: 10, ItemTotal: 20},
		{ProductID: "b", Quantity: 1, FinalPrice: 30, ItemTotal: 30},
	}
	policy := FlatPolicy{Shipping: 5, TaxRate: 0.1, Discount: 3}
	s := Summarize(items, policy.Charges(items, 50))

	require.Equal(t, 50.0, s.Subtotal)
	require.Equal(t, 5.0, s.Shipping)
	require.Equal(t, 5.0, s.Tax)
	require.Equal(t, 3.0, s.Discount)
	require.Equal(t, 57.0, s.TotalAmount)
	require.Equal(t, int64(3), s.TotalItems)
	require.Equal(t, 2, s.ItemCount)
}

func TestSummarize_RoundsToCents(t *testing.T) {
	item := SnapshotItem(&domproduct.Product{ID: "a", Price: 0.1, IsActive: true}, 3)
	require.Equal(t, 0.3, item.ItemTotal)

	items := []Item{
		{ProductID: "a", Quantity: 1, FinalPrice: 0.1, ItemTotal: 0.1},
		{ProductID: "b", Quantity: 1, FinalPrice: 0.2, ItemTotal: 0.2},
	}
	s := Summarize(items, Charges{Shipping: 0.7})
	require.Equal(t, 0.3, s.Subtotal)
	require.Equal(t, 1.0, s.TotalAmount)
}

func TestNewOrderNumber_Format(t *testing.T) {
	n := NewOrderNumber(time.UnixMilli(1700000123456))
	require.Regexp(t, regexp.MustCompile(`^ORD123456\d{3}$`), n)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Shipped")
	require.NoError(t, err)
	require.Equal(t, StatusShipped, st)

	_, err = ParseStatus("lost")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParsePaymentStatus("lost")
	require.ErrorIs(t, err, ErrInvalidPaymentStatus)
}
