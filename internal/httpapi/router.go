package httpapi

import (
	"net/http"
	"time"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	PathCheckoutComplete = "/checkout/complete"
	PathCheckoutLookup   = "/checkout/lookup"
	PathCheckoutWebhook  = "/checkout/webhook"
	PathReservations     = "/reservations/release"
	PathUnreadCount      = "/notifications/unread-count"
	PathMarkRead         = "/notifications/read"
	PathCounters         = "/internal/counters"
)

type RouterConfig struct {
	JWTSecret     string
	CronSecret    string
	AllowedOrigin string
	Limiter       *middleware.RateLimiter
	Timeout       time.Duration
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware, logger.LoggingMiddleware, chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Timeout))
	if cfg.AllowedOrigin != "" {
		r.Use(middleware.CORS(cfg.AllowedOrigin))
	}
	limit := func(next http.Handler) http.Handler { return next }
	if cfg.Limiter != nil {
		limit = cfg.Limiter.Middleware
	}

	r.Get("/healthz", h.health)

	// Cron callers authenticate with the shared secret, not a user token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCronSecret(cfg.CronSecret), limit)
		r.Get(PathReservations, h.releaseReservations)
		r.Post(PathReservations, h.releaseReservations)
		r.Get(PathCounters, h.counters)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTSecret), limit)

		r.Get(PathCheckoutLookup, h.lookupCheckout)
		r.Post(PathCheckoutWebhook, h.checkoutWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Post(PathCheckoutComplete, h.completeCheckout)
			r.Get(PathUnreadCount, h.unreadCount)
			r.Post(PathMarkRead, h.markNotificationsRead)
		})
	})

	return r
}
