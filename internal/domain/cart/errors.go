package cart

import (
	"errors"

	domproduct "example.com/shopcore/internal/domain/product"
)

var (
	ErrCartEmpty       = errors.New("cart is empty")
	ErrItemNotInCart   = errors.New("item not found in cart")
	ErrInvalidQuantity = domproduct.ErrInvalidQuantity
)
