package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"marketplace-be/internal/apperror"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/middleware"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/reservation"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type Finalizer interface {
	Finalize(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (reservation.SweepResult, error)
}

type Handler struct {
	finalizer     Finalizer
	sweeper       Sweeper
	gateway       payment.Gateway
	webhooks      payment.Repository
	notifications notification.Service
	ping          func(ctx context.Context) error
}

func NewHandler(
	finalizer Finalizer,
	sweeper Sweeper,
	gateway payment.Gateway,
	webhooks payment.Repository,
	notifications notification.Service,
	ping func(ctx context.Context) error,
) *Handler {
	return &Handler{
		finalizer:     finalizer,
		sweeper:       sweeper,
		gateway:       gateway,
		webhooks:      webhooks,
		notifications: notifications,
		ping:          ping,
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			logger.FromCtx(r.Context()).Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type completeRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) completeCheckout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apperror.WriteJSON(w, apperror.New(apperror.KindClient, "invalid_json", "request body must be JSON"))
		return
	}

	h.finalize(w, r, checkout.Request{
		SessionID:      req.SessionID,
		ExpectedUserID: &userID,
		IncludeAddress: true,
	})
}

func (h *Handler) lookupCheckout(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, checkout.Request{
		SessionID:      r.URL.Query().Get("session_id"),
		IncludeAddress: false,
	})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request, req checkout.Request) {
	res, err := h.finalizer.Finalize(r.Context(), req)
	if err != nil {
		log := logger.FromCtx(r.Context()).With(zap.String("session_id", req.SessionID))
		if apperror.KindOf(err).HTTPStatus() >= http.StatusInternalServerError {
			log.Error("finalize failed", zap.Error(err))
		}
		apperror.WriteJSON(w, err)
		return
	}
	writeResult(w, res)
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// checkoutWebhook acknowledges every verified delivery with 200 unless finalization hit an
// unexpected error, in which case 500 makes the provider redeliver.
func (h *Handler) checkoutWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("handler", "checkoutWebhook"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		apperror.WriteJSON(w, apperror.New(apperror.KindClient, "invalid_body", "could not read body"))
		return
	}

	ev, err := h.gateway.ParseWebhook(body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		log.Warn("rejected webhook", zap.Error(err))
		code := "invalid_payload"
		if errors.Is(err, payment.ErrInvalidSignature) {
			code = "invalid_signature"
		}
		apperror.WriteJSON(w, apperror.New(apperror.KindClient, code, "webhook could not be verified"))
		return
	}

	metrics.Inc(metrics.WebhooksReceived)
	log = log.With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
		zap.String("session_id", ev.SessionID),
	)

	webhookID, duplicate, err := h.webhooks.SaveWebhook(ctx, payment.ProviderName, ev.ID, ev.Type, ev.SessionID, ev.Payload)
	if err != nil {
		// The finalize path is idempotent on its own; losing the log entry only costs dedupe.
		log.Warn("failed to record webhook, processing anyway", zap.Error(err))
	}
	if duplicate {
		metrics.Inc(metrics.WebhooksDuplicate)
		log.Info("webhook already processed")
		writeJSON(w, http.StatusOK, receivedResponse{Received: true})
		return
	}

	if !ev.Completes() {
		log.Debug("ignoring webhook event type")
		h.markProcessed(ctx, log, webhookID)
		writeJSON(w, http.StatusOK, receivedResponse{Received: true})
		return
	}

	res, err := h.finalizer.Finalize(ctx, checkout.Request{SessionID: ev.SessionID, IncludeAddress: false})
	if err != nil {
		log.Error("webhook finalize failed", zap.Error(err))
		if webhookID != 0 {
			if merr := h.webhooks.MarkWebhookFailed(ctx, webhookID, err.Error()); merr != nil {
				log.Warn("failed to mark webhook failed", zap.Error(merr))
			}
		}
		// Redelivery cannot fix a malformed event, so only server-side failures ask for one.
		if apperror.KindOf(err).HTTPStatus() >= http.StatusInternalServerError {
			apperror.WriteJSON(w, err)
			return
		}
		writeJSON(w, http.StatusOK, receivedResponse{Received: true})
		return
	}

	log.Info("webhook finalized", zap.String("outcome", string(res.Outcome)), zap.Bool("reused", res.Reused))

	switch res.Outcome {
	case checkout.OutcomeOK:
		h.markProcessed(ctx, log, webhookID)
	case checkout.OutcomeProcessing:
		// Another finalizer owns the session; leave the entry open.
	default:
		log.Warn("completion event did not produce an order")
		h.markProcessed(ctx, log, webhookID)
	}

	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}

func (h *Handler) markProcessed(ctx context.Context, log *zap.Logger, webhookID int64) {
	if webhookID == 0 {
		return
	}
	if err := h.webhooks.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Warn("failed to mark webhook processed", zap.Error(err))
	}
}

func (h *Handler) counters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Default.Snapshot())
}

func (h *Handler) releaseReservations(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		apperror.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type unreadCountResponse struct {
	Count int64 `json:"count"`
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())

	n, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		apperror.WriteJSON(w, apperror.Wrap(apperror.KindInternal, "", err))
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{Count: n})
}

type markReadResponse struct {
	Updated int64 `json:"updated"`
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())

	n, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		apperror.WriteJSON(w, apperror.Wrap(apperror.KindInternal, "", err))
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Updated: n})
}
