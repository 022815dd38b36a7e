package reservation

import (
	"context"

	"marketplace-be/internal/apperror"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/listing"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/offer"

	"go.uber.org/zap"
)

type SweepResult struct {
	Released      int   `json:"released"`
	ExpiredOffers int64 `json:"expiredOffers"`
}

// Sweeper releases lapsed listing holds and expires the offers that created them.
type Sweeper struct {
	listings listing.Repository
	offers   offer.Repository
	emitter  notification.Emitter
	clock    clock.Clock
	baseURL  string
}

func NewSweeper(
	listings listing.Repository,
	offers offer.Repository,
	emitter notification.Emitter,
	clk clock.Clock,
	appBaseURL string,
) *Sweeper {
	return &Sweeper{
		listings: listings,
		offers:   offers,
		emitter:  emitter,
		clock:    clk,
		baseURL:  appBaseURL,
	}
}

// Sweep is safe to run repeatedly and concurrently; every write is conditional on the
// previous state, so a second pass finds nothing to do.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	timer := metrics.StartTimer()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Sweep"),
		zap.Time("now", now),
	)

	released, err := s.listings.ReleaseExpiredReservations(ctx, now)
	if err != nil {
		log.Error("failed to release expired reservations", zap.Error(err))
		return SweepResult{}, apperror.Wrap(apperror.KindInternal, "sweep_failed", err)
	}

	result := SweepResult{Released: len(released)}
	if len(released) == 0 {
		log.Debug("no expired reservations")
		return result, nil
	}

	offerIDs := distinctOfferIDs(released)
	if len(offerIDs) > 0 {
		n, err := s.offers.ExpireAccepted(ctx, offerIDs, now)
		if err != nil {
			log.Warn("failed to expire offers", zap.Strings("offer_ids", offerIDs), zap.Error(err))
		} else {
			result.ExpiredOffers = n
		}
	}

	for _, h := range released {
		if h.BuyerID != "" {
			s.emitter.Emit(ctx, notification.OfferExpired(s.baseURL, h.BuyerID, h.ListingID, h.Title))
		}
		s.emitter.Emit(ctx, notification.ReservationExpired(s.baseURL, h.SellerID, h.ListingID, h.Title))
	}

	metrics.Add(metrics.HoldsReleased, uint64(result.Released))
	if result.ExpiredOffers > 0 {
		metrics.Add(metrics.OffersExpired, uint64(result.ExpiredOffers))
	}

	log.Info("reservation sweep completed",
		zap.Int("released", result.Released),
		zap.Int64("expired_offers", result.ExpiredOffers),
		zap.Duration("duration", timer.Duration()),
	)

	return result, nil
}

func distinctOfferIDs(holds []listing.ReleasedHold) []string {
	seen := make(map[string]bool, len(holds))
	ids := make([]string, 0, len(holds))
	for _, h := range holds {
		if h.OfferID == "" || seen[h.OfferID] {
			continue
		}
		seen[h.OfferID] = true
		ids = append(ids, h.OfferID)
	}
	return ids
}
