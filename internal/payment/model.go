package payment

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// CheckoutSession is the provider's record of one payment attempt. Amounts are minor units.
type CheckoutSession struct {
	ID            string
	Status        string
	PaymentStatus PaymentStatus
	BuyerID       string
	Currency      string

	AmountSubtotal int64
	AmountTotal    int64
	// ServiceFee is -1 when the session does not carry one.
	ServiceFee   int64
	ShippingCost int64

	ShippingMethod  string
	ShippingAddress *Address

	LineItems []LineItem
}

// IsPaid is true once funds are captured (or nothing was owed).
func (s *CheckoutSession) IsPaid() bool {
	switch s.PaymentStatus {
	case PaymentStatusPaid, PaymentStatusNoPaymentRequired:
		return true
	case PaymentStatusUnpaid:
		return false
	}
	return false
}

func (s *CheckoutSession) ListingIDs() []string {
	ids := make([]string, 0, len(s.LineItems))
	seen := make(map[string]bool, len(s.LineItems))
	for _, li := range s.LineItems {
		if li.ListingID == "" || seen[li.ListingID] {
			continue
		}
		seen[li.ListingID] = true
		ids = append(ids, li.ListingID)
	}
	return ids
}

type LineItem struct {
	ListingID   string
	Description string
	UnitAmount  int64
	Quantity    int64
}

type Address struct {
	Name       string  `json:"name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
}

// Event is a verified webhook delivery.
type Event struct {
	ID        string
	Type      string
	Created   time.Time
	SessionID string
	Payload   json.RawMessage
}

const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Completes reports whether the event should trigger order finalization.
func (e *Event) Completes() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventCheckoutAsyncPaymentSucceeded
}
