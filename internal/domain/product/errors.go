package product

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidStock       = errors.New("stock must not be negative")
	ErrInvalidQuantity    = fmt.Errorf("quantity must be between 1 and %d", MaxLineQuantity)
)

// ShortageError carries the numbers behind an ErrInsufficientStock.
type ShortageError struct {
	ProductID string
	Available int64
	Requested int64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}
