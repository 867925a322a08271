package services

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateOrder    = errors.New("order already exists")
	// ErrConflict means another writer changed the order between read and write.
	ErrConflict     = errors.New("order was modified concurrently")
	ErrInvalidOrder = errors.New("invalid order")
)
