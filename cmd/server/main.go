package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-be/internal/cache"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/config"
	"marketplace-be/internal/db"
	"marketplace-be/internal/httpapi"
	"marketplace-be/internal/listing"
	"marketplace-be/internal/lock"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/middleware"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/offer"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/reservation"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	notificationBuffer = 256
	shutdownTimeout    = 20 * time.Second
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup := newServer(ctx, cfg, database)
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// newServer wires every dependency and returns the router plus a cleanup that releases
// them in reverse order. ctx bounds background workers.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (http.Handler, func()) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	clk := clock.System{}

	var (
		c      cache.Cache
		locker lock.Locker
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() { _ = rdb.Close() })
		c = cache.NewRedisCache(rdb, "marketplace:")
		locker = lock.NewRedisLocker(rdb)
	} else {
		logger.L().Warn("REDIS_ADDR not set, using in-process cache and locks")
		c = cache.NewMemoryCache(clk)
		locker = lock.NewMemoryLocker(clk)
	}

	var pub notification.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		w := notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.NotificationsTopic)
		kp := notification.NewKafkaPublisher(w)
		closers = append(closers, func() {
			if err := kp.Close(); err != nil {
				logger.L().Warn("failed to close kafka writer", zap.Error(err))
			}
		})
		pub = kp
	}

	notifications := notification.NewRepository(database)
	dispatcher := notification.NewDispatcher(notifications, pub, c, clk, notificationBuffer)
	dispatcher.Start(ctx)
	closers = append(closers, dispatcher.Close)

	listings := listing.NewRepository(database)
	offers := offer.NewRepository(database)
	orders := order.NewRepository(database)
	webhooks := payment.NewRepository(database)

	gateway := payment.NewGateway(payment.GatewayConfig{
		APIKey:        cfg.PaymentsAPIKey,
		BaseURL:       cfg.PaymentsBaseURL,
		WebhookSecret: cfg.PaymentsWebhookSecret,
	})

	finalizer := checkout.NewFinalizer(gateway, orders, listings, offers, locker, dispatcher, clk, checkout.Config{
		LockTTL:       cfg.FinalizeLockTTL,
		ServiceFeeBps: cfg.ServiceFeeBps,
		AppBaseURL:    cfg.AppBaseURL,
	})
	sweeper := reservation.NewSweeper(listings, offers, dispatcher, clk, cfg.AppBaseURL)
	notificationSvc := notification.NewService(notifications, c, cfg.UnreadCacheTTL, clk)

	limiter := middleware.NewRateLimiter(cfg.InternalServiceKey, httpapi.PathCheckoutWebhook, httpapi.PathReservations)
	go limiter.Cleanup(ctx, time.Minute, 10*time.Minute)

	h := httpapi.NewHandler(finalizer, sweeper, gateway, webhooks, notificationSvc, database.PingContext)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		JWTSecret:     cfg.JWTSecret,
		CronSecret:    cfg.CronSecret,
		AllowedOrigin: cfg.AllowedOrigin,
		Limiter:       limiter,
		Timeout:       cfg.RequestTimeout,
	})

	return router, cleanup
}
