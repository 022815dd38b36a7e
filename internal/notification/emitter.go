package notification

import (
	"context"
	"sync"

	"marketplace-be/internal/cache"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Emitter accepts notifications without reporting delivery failures to the caller.
type Emitter interface {
	Emit(ctx context.Context, n Notification)
}

// pipeline is the single delivery path: store, publish, invalidate. Each step logs
// its own failure at warn and the next step still runs.
type pipeline struct {
	store     Repository
	publisher Publisher
	cache     cache.Cache
	clock     clock.Clock
}

func (p *pipeline) deliver(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = p.clock.Now()
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "notification"),
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("recipient", n.UserID),
	)

	if n.UserID == "" {
		log.Warn("notification without recipient dropped")
		return
	}

	sinks := 0
	if err := p.store.Insert(ctx, &n); err != nil {
		log.Warn("failed to store notification", zap.Error(err))
	} else {
		sinks++
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, n); err != nil {
			log.Warn("failed to publish notification", zap.Error(err))
		} else {
			sinks++
		}
	}

	if sinks == 0 {
		metrics.Inc(metrics.NotificationsFailed)
		log.Warn("notification not delivered")
		return
	}

	if p.cache != nil {
		if err := p.cache.Delete(ctx, UnreadCountKey(n.UserID)); err != nil {
			log.Warn("failed to invalidate unread count", zap.Error(err))
		}
	}

	metrics.Inc(metrics.NotificationsDelivered)
	log.Debug("notification delivered")
}

// SyncEmitter delivers inline on the caller's goroutine.
type SyncEmitter struct {
	p *pipeline
}

func NewSyncEmitter(store Repository, pub Publisher, c cache.Cache, clk clock.Clock) *SyncEmitter {
	return &SyncEmitter{p: &pipeline{store: store, publisher: pub, cache: c, clock: clk}}
}

func (e *SyncEmitter) Emit(ctx context.Context, n Notification) {
	e.p.deliver(ctx, n)
}

type envelope struct {
	n         Notification
	requestID string
	userID    string
}

// Dispatcher queues notifications for a background worker so request handlers never wait on
// delivery. A full queue drops the notification with a warning.
type Dispatcher struct {
	p     *pipeline
	queue chan envelope

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(store Repository, pub Publisher, c cache.Cache, clk clock.Clock, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		p:     &pipeline{store: store, publisher: pub, cache: c, clock: clk},
		queue: make(chan envelope, buffer),
	}
}

// Start runs the worker until Close. ctx is only used as the parent for delivery
// contexts; cancelling it does not discard queued notifications.
func (d *Dispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for env := range d.queue {
			dctx := base
			if env.requestID != "" {
				dctx = logger.WithRequestID(dctx, env.requestID)
			}
			if env.userID != "" {
				dctx = logger.WithUserID(dctx, env.userID)
			}
			d.p.deliver(dctx, env.n)
		}
	}()
}

func (d *Dispatcher) Emit(ctx context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := logger.FromCtx(ctx)

	if d.closed {
		metrics.Inc(metrics.NotificationsDropped)
		log.Warn("dispatcher closed, notification dropped", zap.String("kind", string(n.Kind)))
		return
	}

	env := envelope{n: n, requestID: logger.RequestIDFrom(ctx), userID: logger.UserIDFrom(ctx)}

	select {
	case d.queue <- env:
	default:
		metrics.Inc(metrics.NotificationsDropped)
		log.Warn("notification queue full, notification dropped",
			zap.String("kind", string(n.Kind)),
			zap.String("recipient", n.UserID),
		)
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
