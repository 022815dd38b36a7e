package listing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/offer"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// ReleaseExpiredReservations clears every hold whose reserved_until is at or before now
	// on an active listing, in a single statement.
	ReleaseExpiredReservations(ctx context.Context, now time.Time) ([]ReleasedHold, error)

	GetByIDs(ctx context.Context, ids []string) (map[string]*Listing, error)

	// MarkSold moves active listings to sold for the buyer holding them (or unreserved ones).
	MarkSold(ctx context.Context, ids []string, buyerID string, now time.Time) ([]SoldListing, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ReleaseExpiredReservations(
	ctx context.Context,
	now time.Time,
) ([]ReleasedHold, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ReleaseExpiredReservations"),
		zap.Time("now", now),
	)

	// Rows locked by a concurrent writer are skipped and picked up by the next sweep.
	query := `
		WITH expired AS (
			SELECT id, reserved_by, reserved_offer_id
			FROM listings
			WHERE status = $2
			  AND reserved_until IS NOT NULL
			  AND reserved_until <= $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE listings l
		SET
			reserved_by = NULL,
			reserved_offer_id = NULL,
			reserved_until = NULL,
			reserved_at = NULL,
			updated_at = $1
		FROM expired e
		WHERE l.id = e.id
		RETURNING l.id, l.seller_id, l.title, e.reserved_by, e.reserved_offer_id
	`

	rows, err := r.db.QueryContext(ctx, query, now, StatusActive)
	if err != nil {
		log.Error("failed to release expired reservations", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var released []ReleasedHold
	for rows.Next() {
		var (
			h       ReleasedHold
			buyerID sql.NullString
			offerID sql.NullString
		)
		if err := rows.Scan(&h.ListingID, &h.SellerID, &h.Title, &buyerID, &offerID); err != nil {
			log.Error("failed to scan released hold", zap.Error(err))
			return nil, err
		}
		h.BuyerID = buyerID.String
		h.OfferID = offerID.String
		released = append(released, h)
	}

	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	log.Debug("expired reservations released", zap.Int("count", len(released)))

	return released, nil
}

func (r *repository) GetByIDs(
	ctx context.Context,
	ids []string,
) (map[string]*Listing, error) {

	out := make(map[string]*Listing, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			l.id, l.seller_id, COALESCE(p.display_name, ''),
			l.title, COALESCE(l.image_url, ''), l.price, l.status,
			l.reserved_by, l.reserved_offer_id, l.reserved_until, l.reserved_at
		FROM listings l
		LEFT JOIN profiles p ON p.id = l.seller_id
		WHERE l.id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l             Listing
			status        string
			reservedBy    sql.NullString
			reservedOffer sql.NullString
			reservedUntil sql.NullTime
			reservedAt    sql.NullTime
		)
		if err := rows.Scan(
			&l.ID, &l.SellerID, &l.SellerName,
			&l.Title, &l.ImageURL, &l.Price, &status,
			&reservedBy, &reservedOffer, &reservedUntil, &reservedAt,
		); err != nil {
			return nil, err
		}

		l.Status, err = ParseStatus(status)
		if err != nil {
			return nil, err
		}
		if reservedBy.Valid {
			l.ReservedBy = &reservedBy.String
		}
		if reservedOffer.Valid {
			l.ReservedOfferID = &reservedOffer.String
		}
		if reservedUntil.Valid {
			l.ReservedUntil = &reservedUntil.Time
		}
		if reservedAt.Valid {
			l.ReservedAt = &reservedAt.Time
		}
		out[l.ID] = &l
	}

	return out, rows.Err()
}

func (r *repository) MarkSold(
	ctx context.Context,
	ids []string,
	buyerID string,
	now time.Time,
) ([]SoldListing, error) {

	from, to := StatusActive, StatusSold
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE listings
		SET
			status = $5,
			reserved_by = NULL,
			reserved_offer_id = NULL,
			reserved_until = NULL,
			reserved_at = NULL,
			updated_at = $3
		WHERE id = ANY($1)
		  AND status = $4
		  AND (reserved_by IS NULL OR reserved_by = $2)
		RETURNING id, (SELECT o.id FROM offers o WHERE o.listing_id = listings.id AND o.buyer_id = $2 AND o.status = $6 LIMIT 1)
	`, pq.Array(ids), buyerID, now, from, to, offer.StatusAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sold []SoldListing
	for rows.Next() {
		var (
			s       SoldListing
			offerID sql.NullString
		)
		if err := rows.Scan(&s.ID, &offerID); err != nil {
			return nil, err
		}
		s.OfferID = offerID.String
		sold = append(sold, s)
	}

	return sold, rows.Err()
}
