package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"marketplace-be/internal/apperror"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/money"
	"marketplace-be/internal/payment"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// amount renders minor units as a JSON number with two decimals, e.g. 61.47.
func amount(minor int64) json.Number {
	return json.Number(money.Format(minor))
}

type itemResponse struct {
	ListingID  string      `json:"listingId"`
	Title      string      `json:"title"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	SellerID   string      `json:"sellerId"`
	SellerName string      `json:"sellerName"`
	Price      json.Number `json:"price"`
	Quantity   int64       `json:"quantity"`
}

type totalsResponse struct {
	Subtotal   json.Number `json:"subtotal"`
	ServiceFee json.Number `json:"serviceFee"`
	Shipping   json.Number `json:"shipping"`
	Total      json.Number `json:"total"`
	Currency   string      `json:"currency"`
}

type summaryResponse struct {
	OrderID         string           `json:"orderId"`
	OrderRef        string           `json:"orderRef"`
	Reused          bool             `json:"reused"`
	Items           []itemResponse   `json:"items"`
	Totals          totalsResponse   `json:"totals"`
	Total           json.Number      `json:"total"`
	ShippingMethod  string           `json:"shippingMethod,omitempty"`
	ShippingAddress *payment.Address `json:"shippingAddress,omitempty"`
}

type processingResponse struct {
	Status       string `json:"status"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

func toSummaryResponse(res *checkout.Result) summaryResponse {
	s := res.Summary
	out := summaryResponse{
		OrderID:  s.OrderID,
		OrderRef: s.OrderRef,
		Reused:   res.Reused,
		Items:    make([]itemResponse, 0, len(s.Items)),
		Totals: totalsResponse{
			Subtotal:   amount(s.Totals.Subtotal),
			ServiceFee: amount(s.Totals.ServiceFee),
			Shipping:   amount(s.Totals.Shipping),
			Total:      amount(s.Totals.Total),
			Currency:   s.Totals.Currency,
		},
		Total:           amount(s.Totals.Total),
		ShippingMethod:  s.ShippingMethod,
		ShippingAddress: s.ShippingAddress,
	}
	for _, it := range s.Items {
		out.Items = append(out.Items, itemResponse{
			ListingID:  it.ListingID,
			Title:      it.Title,
			ImageURL:   it.ImageURL,
			SellerID:   it.SellerID,
			SellerName: it.SellerName,
			Price:      amount(it.Price),
			Quantity:   it.Quantity,
		})
	}
	return out
}

// writeResult maps a finalize outcome onto the HTTP contract.
func writeResult(w http.ResponseWriter, res *checkout.Result) {
	switch res.Outcome {
	case checkout.OutcomeOK:
		writeJSON(w, http.StatusOK, toSummaryResponse(res))
	case checkout.OutcomeProcessing:
		secs := int(math.Ceil(res.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusAccepted, processingResponse{
			Status:       "processing",
			RetryAfterMs: res.RetryAfter.Milliseconds(),
		})
	case checkout.OutcomeNotPaid:
		apperror.WriteJSON(w, apperror.New(apperror.KindConflict, "not_paid", "payment has not completed"))
	case checkout.OutcomeForbidden:
		apperror.WriteJSON(w, apperror.New(apperror.KindOwnership, "forbidden", "checkout session belongs to another user"))
	case checkout.OutcomeNotFound:
		apperror.WriteJSON(w, apperror.New(apperror.KindNotFound, "not_found", "checkout session not found"))
	default:
		apperror.WriteJSON(w, apperror.New(apperror.KindInternal, "internal_error", ""))
	}
}
