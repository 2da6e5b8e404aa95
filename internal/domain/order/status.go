package order

import "strings"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled,
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further status change is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) Cancellable() bool {
	return s != StatusShipped && s != StatusDelivered && s != StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var AllPaymentStatuses = []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded}

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	ps := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !ps.IsValid() {
		return "", ErrInvalidPaymentStatus
	}
	return ps, nil
}

type PaymentMethod string

const (
	MethodCreditCard     PaymentMethod = "credit_card"
	MethodDebitCard      PaymentMethod = "debit_card"
	MethodPayPal         PaymentMethod = "paypal"
	MethodStripe         PaymentMethod = "stripe"
	MethodRazorpay       PaymentMethod = "razorpay"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
)

func (p PaymentMethod) IsValid() bool {
	switch p {
	case MethodCreditCard, MethodDebitCard, MethodPayPal, MethodStripe,
		MethodRazorpay, MethodCashOnDelivery, MethodBankTransfer:
		return true
	default:
		return false
	}
}
