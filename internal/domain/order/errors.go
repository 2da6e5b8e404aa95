package order

import "errors"

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrInvalidPaymentStatus   = errors.New("invalid payment status")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrInvalidTransition      = errors.New("order status cannot be changed")
	ErrCannotCancel           = errors.New("cannot cancel shipped or delivered order")
	ErrMissingTrackingNumber  = errors.New("tracking number is required")
	ErrMissingShippingAddress = errors.New("shipping address is required")
	ErrEmptyOrderItems        = errors.New("order must contain at least one item")
	ErrDuplicateOrderNumber   = errors.New("order number already exists")
	ErrOrderNumberExhausted   = errors.New("could not allocate a unique order number")
)
