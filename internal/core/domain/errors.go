package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrEmptyOrder           = errors.New("order has no lines")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrConflict             = errors.New("optimistic lock conflict")
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrUnavailable          = errors.New("temporarily unavailable")
)

// InsufficientStockError reports the product that could not cover a requested
// quantity. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}
