package notification

import "errors"

var ErrInvalidKind = errors.New("invalid notification kind")
