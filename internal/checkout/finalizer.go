package checkout

import (
	"context"
	"errors"
	"strings"

	"marketplace-be/internal/apperror"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/listing"
	"marketplace-be/internal/lock"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/money"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/offer"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const lockKeyPrefix = "checkout:finalize:"

// Finalizer turns a paid checkout session into exactly one order.
type Finalizer struct {
	gateway  payment.Gateway
	orders   order.Repository
	listings listing.Repository
	offers   offer.Repository
	locker   lock.Locker
	emitter  notification.Emitter
	clock    clock.Clock
	cfg      Config

	flights singleflight.Group
	newID   func() string
}

func NewFinalizer(
	gateway payment.Gateway,
	orders order.Repository,
	listings listing.Repository,
	offers offer.Repository,
	locker lock.Locker,
	emitter notification.Emitter,
	clk clock.Clock,
	cfg Config,
) *Finalizer {
	return &Finalizer{
		gateway:  gateway,
		orders:   orders,
		listings: listings,
		offers:   offers,
		locker:   locker,
		emitter:  emitter,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		newID:    uuid.NewString,
	}
}

type flightResult struct {
	order      *order.Order
	created    bool
	processing bool
}

func (f *Finalizer) Finalize(ctx context.Context, req Request) (*Result, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, apperror.New(apperror.KindClient, "missing_session_id", "session_id is required")
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Finalize"),
		zap.String("session_id", sessionID),
	)

	session, err := f.gateway.GetCheckoutSession(ctx, sessionID)
	if errors.Is(err, payment.ErrSessionNotFound) {
		log.Info("checkout session not found")
		return &Result{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		log.Error("failed to fetch checkout session", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindUpstream, "payments_unavailable", err)
	}

	if req.ExpectedUserID != nil && (session.BuyerID == "" || *req.ExpectedUserID != session.BuyerID) {
		log.Warn("checkout session requested by non-owner")
		return &Result{Outcome: OutcomeForbidden}, nil
	}

	if !session.IsPaid() {
		log.Info("checkout session not paid", zap.String("payment_status", string(session.PaymentStatus)))
		return &Result{Outcome: OutcomeNotPaid}, nil
	}

	existing, err := f.orders.GetBySessionID(ctx, sessionID)
	switch {
	case err == nil:
		metrics.Inc(metrics.OrdersReused)
		return f.ok(existing, true, req.IncludeAddress), nil
	case !errors.Is(err, order.ErrOrderNotFound):
		log.Error("failed to look up order", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindInternal, "order_lookup_failed", err)
	}

	// Concurrent callers in this process share one creation attempt. Creation must not be
	// abandoned halfway because the first caller went away.
	ran := false
	v, err, _ := f.flights.Do(sessionID, func() (any, error) {
		ran = true
		return f.create(context.WithoutCancel(ctx), session)
	})
	if err != nil {
		return nil, err
	}

	fr := v.(*flightResult)
	if fr.processing {
		metrics.Inc(metrics.FinalizeProcessing)
		return &Result{Outcome: OutcomeProcessing, RetryAfter: f.cfg.RetryAfter}, nil
	}

	reused := !(ran && fr.created)
	if reused {
		metrics.Inc(metrics.OrdersReused)
	}
	return f.ok(fr.order, reused, req.IncludeAddress), nil
}

func (f *Finalizer) ok(o *order.Order, reused, includeAddress bool) *Result {
	return &Result{
		Outcome: OutcomeOK,
		Summary: summarize(o, includeAddress),
		Reused:  reused,
	}
}

func (f *Finalizer) create(ctx context.Context, session *payment.CheckoutSession) (*flightResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "create"),
		zap.String("session_id", session.ID),
	)

	lease, acquired, err := f.locker.Acquire(ctx, lockKeyPrefix+session.ID, f.cfg.LockTTL)
	if err != nil {
		log.Error("failed to acquire finalize lock", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindInternal, "lock_unavailable", err)
	}
	if !acquired {
		log.Info("finalize already in progress")
		return &flightResult{processing: true}, nil
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			log.Warn("failed to release finalize lock", zap.Error(err))
		}
	}()

	// Another instance may have finished between our lookup and the lock.
	existing, err := f.orders.GetBySessionID(ctx, session.ID)
	switch {
	case err == nil:
		return &flightResult{order: existing}, nil
	case !errors.Is(err, order.ErrOrderNotFound):
		log.Error("failed to re-check order", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindInternal, "order_lookup_failed", err)
	}

	snapshots, err := f.listings.GetByIDs(ctx, session.ListingIDs())
	if err != nil {
		log.Error("failed to load listings", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindInternal, "listing_lookup_failed", err)
	}

	o := f.buildOrder(ctx, session, snapshots)
	if len(o.Items) == 0 {
		log.Error("paid checkout session has no listing line items")
		return nil, apperror.New(apperror.KindConflict, "no_order_items", "checkout session has no purchasable items")
	}

	created, err := f.orders.Create(ctx, o)
	if errors.Is(err, order.ErrCommitFailed) {
		// The commit may still have landed. Remove it so a retry starts clean.
		log.Error("order commit failed, deleting order",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		metrics.Inc(metrics.OrderCompensations)
		if derr := f.orders.Delete(ctx, o.ID); derr != nil {
			log.Error("compensating order delete failed",
				zap.String("order_id", o.ID),
				zap.Error(derr),
			)
		}
		return nil, apperror.Wrap(apperror.KindInternal, "order_create_failed", err)
	}
	if errors.Is(err, order.ErrItemsFailed) {
		log.Error("failed to insert order items, order rolled back", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindInternal, "order_items_failed", err)
	}
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindInternal, "order_create_failed", err)
	}
	if !created {
		// Lost the unique-constraint race to a finalizer that did not hold our lock.
		winner, err := f.orders.GetBySessionID(ctx, session.ID)
		if err != nil {
			log.Error("failed to load order after losing create race", zap.Error(err))
			return nil, apperror.Wrap(apperror.KindInternal, "order_lookup_failed", err)
		}
		return &flightResult{order: winner}, nil
	}

	metrics.Inc(metrics.OrdersCreated)
	log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_ref", o.Ref),
		zap.Int64("total", o.Total),
	)

	f.settle(ctx, o)

	return &flightResult{order: o, created: true}, nil
}

func (f *Finalizer) buildOrder(
	ctx context.Context,
	session *payment.CheckoutSession,
	snapshots map[string]*listing.Listing,
) *order.Order {
	log := logger.FromCtx(ctx).With(zap.String("session_id", session.ID))
	now := f.clock.Now()

	var items []order.OrderItem
	for _, li := range session.LineItems {
		if li.ListingID == "" {
			log.Warn("line item without listing id skipped", zap.String("description", li.Description))
			continue
		}

		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}

		it := order.OrderItem{
			ListingID: li.ListingID,
			Title:     li.Description,
			Price:     li.UnitAmount,
			Quantity:  qty,
		}
		if l, ok := snapshots[li.ListingID]; ok {
			it.SellerID = l.SellerID
			it.SellerName = l.SellerName
			it.Title = l.Title
			it.ImageURL = l.ImageURL
			if l.HasLiveHold(now) && l.ReservedBy != nil && *l.ReservedBy != session.BuyerID {
				log.Warn("listing held for another buyer", zap.String("listing_id", l.ID))
			}
		} else {
			log.Warn("listing missing for line item", zap.String("listing_id", li.ListingID))
		}
		items = append(items, it)
	}

	totals := f.computeTotals(ctx, session, items)

	return &order.Order{
		ID:                f.newID(),
		Ref:               order.RefForSession(session.ID),
		CheckoutSessionID: session.ID,
		BuyerID:           session.BuyerID,
		Subtotal:          totals.Subtotal,
		ServiceFee:        totals.ServiceFee,
		ShippingCost:      totals.Shipping,
		Total:             totals.Total,
		Currency:          totals.Currency,
		ShippingMethod:    session.ShippingMethod,
		ShippingAddress:   session.ShippingAddress,
		Status:            order.StatusConfirmed,
		PayoutStatus:      order.PayoutPending,
		CreatedAt:         now,
		Items:             items,
	}
}

// computeTotals rebuilds the breakdown from line items. The provider's charged total wins
// when it disagrees.
func (f *Finalizer) computeTotals(ctx context.Context, session *payment.CheckoutSession, items []order.OrderItem) Totals {
	var t Totals
	t.Currency = session.Currency

	for _, it := range items {
		t.Subtotal += it.LineTotal()
	}

	if session.ServiceFee >= 0 {
		t.ServiceFee = session.ServiceFee
	} else {
		t.ServiceFee = money.BasisPoints(t.Subtotal, f.cfg.ServiceFeeBps)
	}
	t.Shipping = session.ShippingCost
	t.Total = t.Subtotal + t.ServiceFee + t.Shipping

	if session.AmountTotal > 0 && session.AmountTotal != t.Total {
		logger.FromCtx(ctx).Warn("order total differs from amount charged",
			zap.String("session_id", session.ID),
			zap.Int64("computed", t.Total),
			zap.Int64("charged", session.AmountTotal),
		)
		t.Total = session.AmountTotal
	}

	return t
}

// settle applies the side effects of a new order. None of them can fail the order.
func (f *Finalizer) settle(ctx context.Context, o *order.Order) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("order_id", o.ID),
	)
	now := f.clock.Now()

	listingIDs := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		listingIDs = append(listingIDs, it.ListingID)
	}

	sold, err := f.listings.MarkSold(ctx, listingIDs, o.BuyerID, now)
	if err != nil {
		log.Warn("failed to mark listings sold", zap.Error(err))
	}
	if len(sold) < len(listingIDs) && err == nil {
		log.Warn("some listings were not marked sold",
			zap.Int("expected", len(listingIDs)),
			zap.Int("sold", len(sold)),
		)
	}

	var offerIDs []string
	for _, s := range sold {
		if s.OfferID != "" {
			offerIDs = append(offerIDs, s.OfferID)
		}
	}
	if len(offerIDs) > 0 {
		if _, err := f.offers.CompleteAccepted(ctx, offerIDs, now); err != nil {
			log.Warn("failed to complete accepted offers", zap.Error(err))
		}
	}

	f.emitter.Emit(ctx, notification.OrderConfirmed(f.cfg.AppBaseURL, o.BuyerID, o.ID, o.Ref))
	for _, it := range o.Items {
		if it.SellerID == "" {
			continue
		}
		f.emitter.Emit(ctx, notification.ItemSold(f.cfg.AppBaseURL, it.SellerID, o.ID, it.Title))
	}
}

func summarize(o *order.Order, includeAddress bool) *Summary {
	s := &Summary{
		OrderID:  o.ID,
		OrderRef: o.Ref,
		Items:    make([]Item, 0, len(o.Items)),
		Totals: Totals{
			Subtotal:   o.Subtotal,
			ServiceFee: o.ServiceFee,
			Shipping:   o.ShippingCost,
			Total:      o.Total,
			Currency:   o.Currency,
		},
		ShippingMethod: o.ShippingMethod,
	}
	for _, it := range o.Items {
		s.Items = append(s.Items, Item{
			ListingID:  it.ListingID,
			Title:      it.Title,
			ImageURL:   it.ImageURL,
			SellerID:   it.SellerID,
			SellerName: it.SellerName,
			Price:      it.Price,
			Quantity:   it.Quantity,
		})
	}
	if includeAddress && o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		s.ShippingAddress = &addr
	}
	return s
}
