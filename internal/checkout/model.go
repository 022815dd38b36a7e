package checkout

import (
	"time"

	"marketplace-be/internal/payment"
)

type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeForbidden  Outcome = "forbidden"
	OutcomeNotPaid    Outcome = "not_paid"
	OutcomeProcessing Outcome = "processing"
)

type Request struct {
	SessionID string
	// ExpectedUserID is set by authenticated callers; the session's buyer must match.
	ExpectedUserID *string
	// IncludeAddress must be false for callers that have not proven buyer identity.
	IncludeAddress bool
}

// Result is returned for every terminal or retryable outcome. Unexpected failures are
// reported as an error instead.
type Result struct {
	Outcome    Outcome
	Summary    *Summary
	Reused     bool
	RetryAfter time.Duration
}

type Item struct {
	ListingID  string
	Title      string
	ImageURL   string
	SellerID   string
	SellerName string
	Price      int64
	Quantity   int64
}

// Totals are minor units.
type Totals struct {
	Subtotal   int64
	ServiceFee int64
	Shipping   int64
	Total      int64
	Currency   string
}

type Summary struct {
	OrderID         string
	OrderRef        string
	Items           []Item
	Totals          Totals
	ShippingMethod  string
	ShippingAddress *payment.Address
}

type Config struct {
	LockTTL       time.Duration
	RetryAfter    time.Duration
	ServiceFeeBps int64
	AppBaseURL    string
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = 1500 * time.Millisecond
	}
	return c
}
