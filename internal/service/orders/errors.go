package orders

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderConflict = errors.New("order conflict")
	ErrEmptyOrder    = errors.New("order has no items")
)
