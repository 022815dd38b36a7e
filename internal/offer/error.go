package offer

import "errors"

var ErrInvalidStatus = errors.New("invalid offer status")
