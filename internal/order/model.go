package order

import (
	"fmt"
	"strings"
	"time"

	"marketplace-be/internal/payment"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type PayoutStatus string

const (
	PayoutPending          PayoutStatus = "pending"
	PayoutReleaseRequested PayoutStatus = "release_requested"
	PayoutReleased         PayoutStatus = "released"
)

func ParsePayoutStatus(s string) (PayoutStatus, error) {
	switch PayoutStatus(s) {
	case PayoutPending, PayoutReleaseRequested, PayoutReleased:
		return PayoutStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Order amounts are minor units in Currency.
type Order struct {
	ID                string
	Ref               string
	CheckoutSessionID string
	BuyerID           string

	Subtotal     int64
	ServiceFee   int64
	ShippingCost int64
	Total        int64
	Currency     string

	ShippingMethod  string
	ShippingAddress *payment.Address

	Status       Status
	PayoutStatus PayoutStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items []OrderItem
}

// OrderItem is a snapshot of the listing at purchase time.
type OrderItem struct {
	ID         int64
	OrderID    string
	ListingID  string
	SellerID   string
	SellerName string
	Title      string
	ImageURL   string
	Price      int64
	Quantity   int64
}

func (i OrderItem) LineTotal() int64 {
	return i.Price * i.Quantity
}

const refPrefix = "MS-"

// RefForSession derives the human-facing order reference from the checkout session id.
// Sessions sharing a prefix share a ref, so it is a display label and not a key.
func RefForSession(sessionID string) string {
	r := []rune(sessionID)
	if len(r) > 12 {
		r = r[:12]
	}
	return refPrefix + strings.ToUpper(string(r))
}
