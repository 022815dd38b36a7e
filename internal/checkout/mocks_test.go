package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-be/internal/listing"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutSession), args.Error(1)
}

func (m *MockGateway) ParseWebhook(payload []byte, header string) (*payment.Event, error) {
	args := m.Called(payload, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Event), args.Error(1)
}

type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) ReleaseExpiredReservations(ctx context.Context, now time.Time) ([]listing.ReleasedHold, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]listing.ReleasedHold), args.Error(1)
}

func (m *MockListingRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*listing.Listing, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*listing.Listing), args.Error(1)
}

func (m *MockListingRepository) MarkSold(ctx context.Context, ids []string, buyerID string, now time.Time) ([]listing.SoldListing, error) {
	args := m.Called(ctx, ids, buyerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]listing.SoldListing), args.Error(1)
}

type MockOfferRepository struct {
	mock.Mock
}

func (m *MockOfferRepository) ExpireAccepted(ctx context.Context, ids []string, now time.Time) (int64, error) {
	args := m.Called(ctx, ids, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOfferRepository) CompleteAccepted(ctx context.Context, ids []string, now time.Time) (int64, error) {
	args := m.Called(ctx, ids, now)
	return args.Get(0).(int64), args.Error(1)
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (e *recordingEmitter) Emit(_ context.Context, n notification.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, n)
}

func (e *recordingEmitter) kinds() []notification.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]notification.Kind, 0, len(e.sent))
	for _, n := range e.sent {
		out = append(out, n.Kind)
	}
	return out
}

// memOrders mimics the orders table: one row per checkout session, written together with
// its items, and items cascade on delete.
type memOrders struct {
	mu        sync.Mutex
	bySession map[string]*order.Order
	byID      map[string]*order.Order

	createCalls int
	deleted     []string

	itemsErr  error
	commitErr error
	deleteErr error
	getErr    error
	// beforeCreate runs once, inside the first Create, before its row becomes visible.
	beforeCreate func()
}

func newMemOrders() *memOrders {
	return &memOrders{
		bySession: make(map[string]*order.Order),
		byID:      make(map[string]*order.Order),
	}
}

func (r *memOrders) GetBySessionID(_ context.Context, sessionID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	o, ok := r.bySession[sessionID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]order.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (r *memOrders) Create(_ context.Context, o *order.Order) (bool, error) {
	r.mu.Lock()
	hook := r.beforeCreate
	r.beforeCreate = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.itemsErr != nil {
		return false, fmt.Errorf("%w: %w", order.ErrItemsFailed, r.itemsErr)
	}
	if _, ok := r.bySession[o.CheckoutSessionID]; ok {
		return false, nil
	}
	cp := *o
	cp.Items = append([]order.OrderItem(nil), o.Items...)
	r.bySession[o.CheckoutSessionID] = &cp
	r.byID[o.ID] = &cp
	if r.commitErr != nil {
		return false, fmt.Errorf("%w: %w", order.ErrCommitFailed, r.commitErr)
	}
	return true, nil
}

func (r *memOrders) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, orderID)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if o, ok := r.byID[orderID]; ok {
		delete(r.bySession, o.CheckoutSessionID)
		delete(r.byID, orderID)
	}
	return nil
}

func (r *memOrders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
