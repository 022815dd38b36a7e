package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketplace-be/internal/logger"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type GatewayConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
}

type httpGateway struct {
	apiKey        string
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker[*CheckoutSession]
	now           func() time.Time
	tolerance     time.Duration
}

func NewGateway(cfg GatewayConfig) Gateway {
	return newHTTPGateway(cfg)
}

func newHTTPGateway(cfg GatewayConfig) *httpGateway {
	if cfg.APIKey == "" {
		logger.L().Warn("payments API key is empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &httpGateway{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*CheckoutSession](gobreaker.Settings{
			Name:        "payments",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			// An unknown session is an answer, and a caller hanging up says nothing about
			// the provider.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrSessionNotFound) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.L().Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		now:       time.Now,
		tolerance: 5 * time.Minute,
	}
}

// ----------------- GetCheckoutSession -----------------

func (g *httpGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}

	return g.breaker.Execute(func() (*CheckoutSession, error) {
		return g.fetchSession(ctx, sessionID)
	})
}

func (g *httpGateway) fetchSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("session_id", sessionID),
	)

	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s?expand[]=line_items",
		g.baseURL, url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Error("failed building request", zap.Error(err))
		return nil, err
	}
	req.SetBasicAuth(g.apiKey, "")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("payments provider request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payments response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Info("checkout session not found upstream")
		return nil, ErrSessionNotFound
	case resp.StatusCode != http.StatusOK:
		log.Error("payments provider returned error",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", body),
		)
		return nil, fmt.Errorf("payments provider error: status %d", resp.StatusCode)
	}

	var raw sessionResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		log.Error("failed decoding checkout session", zap.Error(err))
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	return raw.toSession()
}

// ----------------- Webhooks -----------------

func (g *httpGateway) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if err := VerifySignature(payload, signatureHeader, g.webhookSecret, g.now(), g.tolerance); err != nil {
		return nil, err
	}

	var raw struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}

	return &Event{
		ID:        raw.ID,
		Type:      raw.Type,
		Created:   time.Unix(raw.Created, 0).UTC(),
		SessionID: raw.Data.Object.ID,
		Payload:   json.RawMessage(payload),
	}, nil
}

// ----------------- Wire format -----------------

type sessionResponse struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Currency          string            `json:"currency"`
	AmountSubtotal    int64             `json:"amount_subtotal"`
	AmountTotal       int64             `json:"amount_total"`
	Metadata          map[string]string `json:"metadata"`
	ShippingCost      *struct {
		AmountTotal int64 `json:"amount_total"`
	} `json:"shipping_cost"`
	ShippingDetails *struct {
		Name    string `json:"name"`
		Address struct {
			Line1      string `json:"line1"`
			Line2      string `json:"line2"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postal_code"`
			Country    string `json:"country"`
		} `json:"address"`
	} `json:"shipping_details"`
	LineItems struct {
		Data []struct {
			Description string `json:"description"`
			Quantity    int64  `json:"quantity"`
			Price       struct {
				UnitAmount int64             `json:"unit_amount"`
				Metadata   map[string]string `json:"metadata"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

func (r *sessionResponse) toSession() (*CheckoutSession, error) {
	s := &CheckoutSession{
		ID:             r.ID,
		Status:         r.Status,
		PaymentStatus:  PaymentStatus(r.PaymentStatus),
		BuyerID:        r.Metadata["buyer_id"],
		Currency:       strings.ToUpper(r.Currency),
		AmountSubtotal: r.AmountSubtotal,
		AmountTotal:    r.AmountTotal,
		ServiceFee:     -1,
		ShippingMethod: r.Metadata["shipping_method"],
	}

	if s.BuyerID == "" {
		s.BuyerID = r.ClientReferenceID
	}

	if fee, ok := r.Metadata["service_fee"]; ok && fee != "" {
		n, err := strconv.ParseInt(fee, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid service_fee metadata %q: %w", fee, err)
		}
		s.ServiceFee = n
	}

	if r.ShippingCost != nil {
		s.ShippingCost = r.ShippingCost.AmountTotal
	}

	if d := r.ShippingDetails; d != nil && d.Address.Line1 != "" {
		addr := &Address{
			Name:       d.Name,
			Line1:      d.Address.Line1,
			City:       d.Address.City,
			State:      d.Address.State,
			PostalCode: d.Address.PostalCode,
			Country:    d.Address.Country,
		}
		if d.Address.Line2 != "" {
			line2 := d.Address.Line2
			addr.Line2 = &line2
		}
		s.ShippingAddress = addr
	}

	for _, li := range r.LineItems.Data {
		s.LineItems = append(s.LineItems, LineItem{
			ListingID:   li.Price.Metadata["listing_id"],
			Description: li.Description,
			UnitAmount:  li.Price.UnitAmount,
			Quantity:    li.Quantity,
		})
	}

	return s, nil
}
