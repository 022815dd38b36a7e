package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names shared by the packages that increment them.
const (
	OrdersCreated          = "checkout_orders_created"
	OrdersReused           = "checkout_orders_reused"
	FinalizeProcessing     = "checkout_finalize_processing"
	OrderCompensations     = "checkout_order_compensations"
	HoldsReleased          = "reservation_holds_released"
	OffersExpired          = "reservation_offers_expired"
	WebhooksReceived       = "payment_webhooks_received"
	WebhooksDuplicate      = "payment_webhooks_duplicate"
	NotificationsDropped   = "notifications_dropped"
	NotificationsDelivered = "notifications_delivered"
	NotificationsFailed    = "notifications_failed"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Registry hands out named counters, creating them on first use.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]*Counter)}
}

// Default is the process-wide registry reported by the counters endpoint.
var Default = NewRegistry()

func (r *Registry) Counter(name string) *Counter {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; !ok {
		c = &Counter{}
		r.counters[name] = c
	}
	return c
}

func (r *Registry) Snapshot() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]uint64, len(r.counters))
	for name, c := range r.counters {
		out[name] = c.Load()
	}
	return out
}

func Inc(name string) {
	Default.Counter(name).Inc()
}

func Add(name string, n uint64) {
	Default.Counter(name).Add(n)
}
