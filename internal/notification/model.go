package notification

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindOfferExpired       Kind = "offer_expired"
	KindReservationExpired Kind = "reservation_expired"
	KindOrderConfirmed     Kind = "order_confirmed"
	KindItemSold           Kind = "item_sold"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindOfferExpired, KindReservationExpired, KindOrderConfirmed, KindItemSold:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

type Notification struct {
	ID        string
	UserID    string
	Kind      Kind
	Title     string
	Body      string
	Link      string
	CreatedAt time.Time
	ReadAt    *time.Time
}

func ListingLink(baseURL, listingID string) string {
	return strings.TrimRight(baseURL, "/") + "/listings/" + listingID
}

func OrderLink(baseURL, orderID string) string {
	return strings.TrimRight(baseURL, "/") + "/orders/" + orderID
}

// OfferExpired tells the buyer their hold lapsed without payment.
func OfferExpired(baseURL, buyerID, listingID, title string) Notification {
	return Notification{
		UserID: buyerID,
		Kind:   KindOfferExpired,
		Title:  "Your offer has expired",
		Body:   fmt.Sprintf("The reservation on %q ended before checkout was completed.", title),
		Link:   ListingLink(baseURL, listingID),
	}
}

// ReservationExpired tells the seller the listing is available again.
func ReservationExpired(baseURL, sellerID, listingID, title string) Notification {
	return Notification{
		UserID: sellerID,
		Kind:   KindReservationExpired,
		Title:  "Reservation expired",
		Body:   fmt.Sprintf("%q is available to other buyers again.", title),
		Link:   ListingLink(baseURL, listingID),
	}
}

func OrderConfirmed(baseURL, buyerID, orderID, orderRef string) Notification {
	return Notification{
		UserID: buyerID,
		Kind:   KindOrderConfirmed,
		Title:  "Order confirmed",
		Body:   fmt.Sprintf("Thanks for your purchase. Your order reference is %s.", orderRef),
		Link:   OrderLink(baseURL, orderID),
	}
}

func ItemSold(baseURL, sellerID, orderID, title string) Notification {
	return Notification{
		UserID: sellerID,
		Kind:   KindItemSold,
		Title:  "You made a sale",
		Body:   fmt.Sprintf("%q has been sold.", title),
		Link:   OrderLink(baseURL, orderID),
	}
}
