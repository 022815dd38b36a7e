package lock

import (
	"context"
	"time"
)

// Locker hands out short-lived exclusive markers keyed by string. A marker expires on its
// own after ttl so a crashed holder cannot block the key forever.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

type Lease interface {
	Release(ctx context.Context) error
}
