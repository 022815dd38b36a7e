package listing

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusSold   Status = "sold"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusActive, StatusSold:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// CanTransition reports whether a listing may move from one status to another.
// Sold is terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusActive
	case StatusActive:
		return to == StatusSold || to == StatusDraft
	case StatusSold:
		return false
	}
	return false
}

type Listing struct {
	ID         string
	SellerID   string
	SellerName string
	Title      string
	ImageURL   string
	Price      int64
	Status     Status

	// Reservation hold, set when an offer is accepted.
	ReservedBy      *string
	ReservedOfferID *string
	ReservedUntil   *time.Time
	ReservedAt      *time.Time
}

// HasLiveHold is true while an accepted offer still blocks the listing.
func (l *Listing) HasLiveHold(now time.Time) bool {
	return l.Status == StatusActive &&
		l.ReservedUntil != nil &&
		l.ReservedUntil.After(now)
}

// ReleasedHold is a reservation cleared by the sweep, with the values it held before clearing.
type ReleasedHold struct {
	ListingID string
	SellerID  string
	Title     string
	BuyerID   string
	OfferID   string
}

// SoldListing is a listing flipped to sold by a completed order.
type SoldListing struct {
	ID      string
	OfferID string
}
