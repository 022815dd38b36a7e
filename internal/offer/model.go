package offer

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusExpired   Status = "EXPIRED"
	StatusDeclined  Status = "DECLINED"
	StatusCompleted Status = "COMPLETED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusExpired, StatusDeclined, StatusCompleted:
		return true
	case StatusPending, StatusAccepted:
		return false
	}
	return true
}

// CanTransition encodes the offer lifecycle. An accepted offer ends in exactly one of
// EXPIRED (hold lapsed) or COMPLETED (paid for).
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusAccepted || to == StatusDeclined || to == StatusExpired
	case StatusAccepted:
		return to == StatusExpired || to == StatusCompleted
	}
	return false
}

type Offer struct {
	ID        string
	ListingID string
	BuyerID   string
	SellerID  string
	Amount    int64
	Status    Status
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
