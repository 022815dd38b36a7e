package order

import "errors"

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrDuplicateOrder = errors.New("order already exists for checkout session")
	ErrItemsFailed    = errors.New("order items insert failed")
	ErrCommitFailed   = errors.New("order commit failed")
)
