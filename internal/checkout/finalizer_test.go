package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-be/internal/apperror"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/listing"
	"marketplace-be/internal/lock"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/money"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	f        *Finalizer
	gw       *MockGateway
	orders   *memOrders
	listings *MockListingRepository
	offers   *MockOfferRepository
	locker   *lock.MemoryLocker
	emitter  *recordingEmitter
	clock    *clock.Fixed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fx := &fixture{
		gw:       new(MockGateway),
		orders:   newMemOrders(),
		listings: new(MockListingRepository),
		offers:   new(MockOfferRepository),
		emitter:  &recordingEmitter{},
		clock:    &clock.Fixed{T: testNow},
	}
	fx.locker = lock.NewMemoryLocker(fx.clock)

	fx.f = NewFinalizer(fx.gw, fx.orders, fx.listings, fx.offers, fx.locker, fx.emitter, fx.clock, Config{
		LockTTL:       30 * time.Second,
		ServiceFeeBps: 250,
		AppBaseURL:    "https://market.test",
	})

	seq := 0
	fx.f.newID = func() string {
		seq++
		return "ord-" + string(rune('0'+seq))
	}

	return fx
}

func strPtr(s string) *string { return &s }

func paidSession() *payment.CheckoutSession {
	line2 := "Flat 2"
	return &payment.CheckoutSession{
		ID:             "cs_123",
		Status:         "complete",
		PaymentStatus:  payment.PaymentStatusPaid,
		BuyerID:        "u1",
		Currency:       "GBP",
		AmountSubtotal: 5498,
		AmountTotal:    6147,
		ServiceFee:     150,
		ShippingCost:   499,
		ShippingMethod: "standard",
		ShippingAddress: &payment.Address{
			Name: "Ada Lovelace", Line1: "1 High St", Line2: &line2,
			City: "London", PostalCode: "N1 1AA", Country: "GB",
		},
		LineItems: []payment.LineItem{
			{ListingID: "lst-1", Description: "Denim jacket", UnitAmount: 3499, Quantity: 1},
			{ListingID: "lst-2", Description: "Wool scarf", UnitAmount: 1999, Quantity: 1},
		},
	}
}

func snapshots() map[string]*listing.Listing {
	return map[string]*listing.Listing{
		"lst-1": {ID: "lst-1", SellerID: "s1", SellerName: "Sam", Title: "Vintage denim jacket", ImageURL: "https://img/1", Price: 3499, Status: listing.StatusActive},
		"lst-2": {ID: "lst-2", SellerID: "s2", SellerName: "Kim", Title: "Wool scarf", Price: 1999, Status: listing.StatusActive},
	}
}

// expectHappyPath wires the listing/offer side effects of a successful creation.
func (fx *fixture) expectHappyPath(session *payment.CheckoutSession) {
	fx.gw.On("GetCheckoutSession", mock.Anything, session.ID).Return(session, nil)
	fx.listings.On("GetByIDs", mock.Anything, []string{"lst-1", "lst-2"}).Return(snapshots(), nil)
	fx.listings.On("MarkSold", mock.Anything, []string{"lst-1", "lst-2"}, "u1", testNow).
		Return([]listing.SoldListing{{ID: "lst-1", OfferID: "off-1"}, {ID: "lst-2"}}, nil)
	fx.offers.On("CompleteAccepted", mock.Anything, []string{"off-1"}, testNow).Return(int64(1), nil)
}

func TestFinalize_ExampleScenario(t *testing.T) {
	fx := newFixture(t)
	fx.expectHappyPath(paidSession())

	res, err := fx.f.Finalize(context.Background(), Request{
		SessionID:      "cs_123",
		ExpectedUserID: strPtr("u1"),
		IncludeAddress: true,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.False(t, res.Reused)

	s := res.Summary
	require.NotNil(t, s)
	assert.Equal(t, "ord-1", s.OrderID)
	assert.Equal(t, "MS-CS_123", s.OrderRef)
	assert.Equal(t, Totals{Subtotal: 5498, ServiceFee: 150, Shipping: 499, Total: 6147, Currency: "GBP"}, s.Totals)
	assert.Equal(t, "61.47", money.Format(s.Totals.Total))
	assert.Equal(t, "standard", s.ShippingMethod)
	require.NotNil(t, s.ShippingAddress)
	assert.Equal(t, "1 High St", s.ShippingAddress.Line1)

	require.Len(t, s.Items, 2)
	assert.Equal(t, "Vintage denim jacket", s.Items[0].Title)
	assert.Equal(t, "s1", s.Items[0].SellerID)
	assert.Equal(t, int64(3499), s.Items[0].Price)

	assert.Equal(t, []notification.Kind{
		notification.KindOrderConfirmed,
		notification.KindItemSold,
		notification.KindItemSold,
	}, fx.emitter.kinds())
	assert.Equal(t, "https://market.test/orders/ord-1", fx.emitter.sent[0].Link)

	fx.listings.AssertExpectations(t)
	fx.offers.AssertExpectations(t)
}

func TestFinalize_Idempotent(t *testing.T) {
	fx := newFixture(t)
	fx.expectHappyPath(paidSession())
	ctx := context.Background()

	first, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123", IncludeAddress: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, first.Outcome)
	assert.False(t, first.Reused)

	for i := 0; i < 4; i++ {
		again, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123", IncludeAddress: true})
		require.NoError(t, err)
		require.Equal(t, OutcomeOK, again.Outcome)
		assert.True(t, again.Reused)
		assert.Equal(t, first.Summary, again.Summary)
	}

	assert.Equal(t, 1, fx.orders.count())
	assert.Equal(t, 1, fx.orders.createCalls)
	fx.listings.AssertNumberOfCalls(t, "MarkSold", 1)
	assert.Len(t, fx.emitter.sent, 3)
}

func TestFinalize_Concurrent(t *testing.T) {
	fx := newFixture(t)
	fx.expectHappyPath(paidSession())

	createdBefore := metrics.Default.Counter(metrics.OrdersCreated).Load()

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	created := 0
	var orderID string
	for _, r := range results {
		require.NotNil(t, r)
		switch r.Outcome {
		case OutcomeOK:
			if !r.Reused {
				created++
			}
			if orderID == "" {
				orderID = r.Summary.OrderID
			}
			assert.Equal(t, orderID, r.Summary.OrderID)
		case OutcomeProcessing:
			assert.Equal(t, 1500*time.Millisecond, r.RetryAfter)
		default:
			t.Fatalf("unexpected outcome %s", r.Outcome)
		}
	}

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, fx.orders.count())
	assert.Equal(t, createdBefore+1, metrics.Default.Counter(metrics.OrdersCreated).Load())
}

func TestFinalize_NotPaid(t *testing.T) {
	fx := newFixture(t)
	s := paidSession()
	s.PaymentStatus = payment.PaymentStatusUnpaid
	fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(s, nil)

	for i := 0; i < 3; i++ {
		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotPaid, res.Outcome)
		assert.Nil(t, res.Summary)
	}

	assert.Zero(t, fx.orders.count())
	assert.Zero(t, fx.orders.createCalls)
	fx.listings.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
}

func TestFinalize_AddressGuard(t *testing.T) {
	fx := newFixture(t)
	fx.expectHappyPath(paidSession())
	ctx := context.Background()

	created, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, created.Outcome)
	assert.Nil(t, created.Summary.ShippingAddress)

	reused, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
	require.NoError(t, err)
	assert.True(t, reused.Reused)
	assert.Nil(t, reused.Summary.ShippingAddress)

	owner, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123", ExpectedUserID: strPtr("u1"), IncludeAddress: true})
	require.NoError(t, err)
	assert.NotNil(t, owner.Summary.ShippingAddress)
}

func TestFinalize_Forbidden(t *testing.T) {
	t.Run("OtherUser", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)

		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123", ExpectedUserID: strPtr("u2"), IncludeAddress: true})
		require.NoError(t, err)
		assert.Equal(t, OutcomeForbidden, res.Outcome)
		assert.Nil(t, res.Summary)
		assert.Zero(t, fx.orders.createCalls)
		fx.listings.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
		assert.Empty(t, fx.emitter.sent)
	})

	t.Run("SessionWithoutBuyer", func(t *testing.T) {
		fx := newFixture(t)
		s := paidSession()
		s.BuyerID = ""
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(s, nil)

		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123", ExpectedUserID: strPtr("u1")})
		require.NoError(t, err)
		assert.Equal(t, OutcomeForbidden, res.Outcome)
	})
}

func TestFinalize_CompensatingDelete(t *testing.T) {
	t.Run("ItemFailureLeavesNoOrder", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
		fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(snapshots(), nil)
		itemsErr := errors.New("order_items insert failed")
		fx.orders.itemsErr = itemsErr

		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		assert.Nil(t, res)
		require.Error(t, err)
		assert.ErrorIs(t, err, itemsErr)
		assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
		assert.Equal(t, "order_items_failed", apperror.CodeOf(err))

		assert.Zero(t, fx.orders.count())
		assert.Empty(t, fx.orders.deleted)
		fx.listings.AssertNotCalled(t, "MarkSold", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, fx.emitter.sent)
	})

	t.Run("CommitFailureDeletesOrder", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
		fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(snapshots(), nil)
		commitErr := errors.New("connection reset")
		fx.orders.commitErr = commitErr
		compensationsBefore := metrics.Default.Counter(metrics.OrderCompensations).Load()

		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, commitErr)
		assert.Equal(t, compensationsBefore+1, metrics.Default.Counter(metrics.OrderCompensations).Load())
		assert.Zero(t, fx.orders.count())
		assert.Equal(t, []string{"ord-1"}, fx.orders.deleted)
		assert.Empty(t, fx.emitter.sent)
	})

	t.Run("DeleteFailureKeepsOriginalError", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		defer logger.Replace(zap.New(core))()

		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
		fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(snapshots(), nil)
		commitErr := errors.New("connection reset")
		fx.orders.commitErr = commitErr
		fx.orders.deleteErr = errors.New("delete failed")

		_, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		assert.ErrorIs(t, err, commitErr)
		assert.Equal(t, 1, logs.FilterMessage("compensating order delete failed").Len())

		// Whatever survived was written with its items.
		left, err := fx.orders.GetBySessionID(context.Background(), "cs_123")
		require.NoError(t, err)
		assert.Len(t, left.Items, 2)
	})

	t.Run("RetryAfterFailureSucceeds", func(t *testing.T) {
		fx := newFixture(t)
		fx.expectHappyPath(paidSession())
		fx.orders.itemsErr = errors.New("transient")

		_, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		require.Error(t, err)

		fx.orders.itemsErr = nil
		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeOK, res.Outcome)
		assert.False(t, res.Reused)
		assert.Equal(t, 1, fx.orders.count())
	})
}

func TestFinalize_NoPurchasableItems(t *testing.T) {
	fx := newFixture(t)
	session := paidSession()
	for i := range session.LineItems {
		session.LineItems[i].ListingID = ""
	}
	fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(session, nil)
	fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(map[string]*listing.Listing{}, nil)

	_, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, "no_order_items", apperror.CodeOf(err))
	assert.Zero(t, fx.orders.createCalls)
}

// Two finalizers sharing the orders table but not the lock, as two server instances do.
func TestFinalize_TwoInstances(t *testing.T) {
	newOther := func(fx *fixture) *Finalizer {
		other := NewFinalizer(fx.gw, fx.orders, fx.listings, fx.offers, lock.NewMemoryLocker(fx.clock), fx.emitter, fx.clock, Config{
			LockTTL:       30 * time.Second,
			ServiceFeeBps: 250,
			AppBaseURL:    "https://market.test",
		})
		other.newID = func() string { return "ord-other" }
		return other
	}

	t.Run("NeverSeesPartialOrder", func(t *testing.T) {
		fx := newFixture(t)
		fx.expectHappyPath(paidSession())
		other := newOther(fx)
		ctx := context.Background()

		var (
			otherRes *Result
			otherErr error
		)
		fx.orders.beforeCreate = func() {
			otherRes, otherErr = other.Finalize(ctx, Request{SessionID: "cs_123"})
		}

		res, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
		require.NoError(t, err)
		require.NoError(t, otherErr)

		require.Equal(t, OutcomeOK, otherRes.Outcome)
		assert.False(t, otherRes.Reused)
		assert.Len(t, otherRes.Summary.Items, 2)

		require.Equal(t, OutcomeOK, res.Outcome)
		assert.True(t, res.Reused)
		assert.Equal(t, "ord-other", res.Summary.OrderID)
		assert.Equal(t, otherRes.Summary, res.Summary)
		assert.Equal(t, 1, fx.orders.count())
	})

	t.Run("FailedCreateKeepsOtherOrder", func(t *testing.T) {
		fx := newFixture(t)
		fx.expectHappyPath(paidSession())
		other := newOther(fx)
		ctx := context.Background()

		var otherRes *Result
		fx.orders.beforeCreate = func() {
			otherRes, _ = other.Finalize(ctx, Request{SessionID: "cs_123"})
			fx.orders.mu.Lock()
			fx.orders.itemsErr = errors.New("order_items insert failed")
			fx.orders.mu.Unlock()
		}

		_, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
		require.Error(t, err)

		require.NotNil(t, otherRes)
		assert.Equal(t, OutcomeOK, otherRes.Outcome)
		assert.Empty(t, fx.orders.deleted)

		kept, err := fx.orders.GetBySessionID(ctx, "cs_123")
		require.NoError(t, err)
		assert.Equal(t, "ord-other", kept.ID)
		assert.Len(t, kept.Items, 2)
	})
}

func TestFinalize_Processing(t *testing.T) {
	fx := newFixture(t)
	fx.expectHappyPath(paidSession())
	ctx := context.Background()

	lease, ok, err := fx.locker.Acquire(ctx, "checkout:finalize:cs_123", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, res.Outcome)
	assert.Equal(t, 1500*time.Millisecond, res.RetryAfter)
	assert.Zero(t, fx.orders.count())

	require.NoError(t, lease.Release(ctx))

	res, err = fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
}

func TestFinalize_StaleLockExpires(t *testing.T) {
	fx := newFixture(t)
	fx.expectHappyPath(paidSession())
	ctx := context.Background()

	_, ok, err := fx.locker.Acquire(ctx, "checkout:finalize:cs_123", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	fx.clock.Advance(31 * time.Second)
	fx.listings.ExpectedCalls = nil
	fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(snapshots(), nil)
	fx.listings.On("MarkSold", mock.Anything, mock.Anything, "u1", fx.clock.T).Return([]listing.SoldListing{}, nil)

	res, err := fx.f.Finalize(ctx, Request{SessionID: "cs_123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
}

func TestFinalize_LostCreateRace(t *testing.T) {
	fx := newFixture(t)
	fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
	fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(snapshots(), nil)

	fx.orders.beforeCreate = func() {
		fx.orders.mu.Lock()
		defer fx.orders.mu.Unlock()
		winner := &order.Order{
			ID: "ord-winner", Ref: "MS-CS_123", CheckoutSessionID: "cs_123", Total: 6147, Currency: "GBP",
			Items: []order.OrderItem{{ListingID: "lst-1", Price: 3499, Quantity: 1}},
		}
		fx.orders.bySession["cs_123"] = winner
		fx.orders.byID[winner.ID] = winner
	}

	res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.True(t, res.Reused)
	assert.Equal(t, "ord-winner", res.Summary.OrderID)
	fx.listings.AssertNotCalled(t, "MarkSold", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, fx.emitter.sent)
}

func TestFinalize_Errors(t *testing.T) {
	t.Run("MissingSessionID", func(t *testing.T) {
		fx := newFixture(t)

		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "  "})
		assert.Nil(t, res)
		assert.Equal(t, apperror.KindClient, apperror.KindOf(err))
		fx.gw.AssertNotCalled(t, "GetCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("NotFound", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_missing").Return(nil, payment.ErrSessionNotFound)

		res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_missing"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, res.Outcome)
	})

	t.Run("Upstream", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(nil, errors.New("timeout"))

		_, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
	})

	t.Run("OrderLookupFails", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
		fx.orders.getErr = errors.New("db down")

		_, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
		assert.Zero(t, fx.orders.createCalls)
	})

	t.Run("ListingLookupFails", func(t *testing.T) {
		fx := newFixture(t)
		fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
		fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
		assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
		assert.Zero(t, fx.orders.createCalls)

		// lock released on the error path
		_, ok, _ := fx.locker.Acquire(context.Background(), "checkout:finalize:cs_123", time.Second)
		assert.True(t, ok)
	})
}

func TestFinalize_SideEffectsAreBestEffort(t *testing.T) {
	fx := newFixture(t)
	fx.gw.On("GetCheckoutSession", mock.Anything, "cs_123").Return(paidSession(), nil)
	fx.listings.On("GetByIDs", mock.Anything, mock.Anything).Return(snapshots(), nil)
	fx.listings.On("MarkSold", mock.Anything, mock.Anything, "u1", testNow).Return(nil, errors.New("db down"))

	res, err := fx.f.Finalize(context.Background(), Request{SessionID: "cs_123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	fx.offers.AssertNotCalled(t, "CompleteAccepted", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, fx.emitter.sent, 3)
}

func TestComputeTotals(t *testing.T) {
	fx := newFixture(t)
	items := []order.OrderItem{{Price: 3499, Quantity: 1}, {Price: 1999, Quantity: 1}}

	t.Run("FeeFromBasisPoints", func(t *testing.T) {
		s := paidSession()
		s.ServiceFee = -1
		s.AmountTotal = 0

		got := fx.f.computeTotals(context.Background(), s, items)
		// 2.5% of 54.98 = 1.3745
		assert.Equal(t, int64(137), got.ServiceFee)
		assert.Equal(t, int64(5498+137+499), got.Total)
	})

	t.Run("ChargedTotalWins", func(t *testing.T) {
		s := paidSession()
		s.AmountTotal = 6200

		got := fx.f.computeTotals(context.Background(), s, items)
		assert.Equal(t, int64(6200), got.Total)
		assert.Equal(t, int64(5498), got.Subtotal)
	})
}

func TestBuildOrder_MissingListingFallsBack(t *testing.T) {
	fx := newFixture(t)
	s := paidSession()
	s.LineItems = append(s.LineItems, payment.LineItem{Description: "gift wrap", UnitAmount: 100, Quantity: 1})

	o := fx.f.buildOrder(context.Background(), s, map[string]*listing.Listing{})
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Denim jacket", o.Items[0].Title)
	assert.Empty(t, o.Items[0].SellerID)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, order.PayoutPending, o.PayoutStatus)
	assert.Equal(t, testNow, o.CreatedAt)
}

func TestBuildOrder_WarnsOnForeignHold(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	defer logger.Replace(zap.New(core))()

	fx := newFixture(t)
	until := testNow.Add(time.Hour)
	snaps := snapshots()
	snaps["lst-1"].ReservedBy = strPtr("someone-else")
	snaps["lst-1"].ReservedUntil = &until
	snaps["lst-2"].ReservedBy = strPtr("u1")
	snaps["lst-2"].ReservedUntil = &until

	o := fx.f.buildOrder(context.Background(), paidSession(), snaps)
	require.Len(t, o.Items, 2)

	held := logs.FilterMessage("listing held for another buyer").All()
	require.Len(t, held, 1)
	assert.Equal(t, "lst-1", held[0].ContextMap()["listing_id"])
}
