package listing

import "errors"

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrInvalidStatus   = errors.New("invalid listing status")
)
