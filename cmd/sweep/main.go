package main

import (
	"context"
	"database/sql"
	"time"

	"marketplace-be/internal/cache"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/config"
	"marketplace-be/internal/db"
	"marketplace-be/internal/listing"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/notification"
	"marketplace-be/internal/offer"
	"marketplace-be/internal/reservation"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepTimeout = 2 * time.Minute

var initDBFunc = db.InitDB

// sweep runs the reservation sweep once, for schedulers that prefer a job over the HTTP route.
func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	res, err := run(ctx, cfg, database)
	if err != nil {
		logger.L().Fatal("reservation sweep failed", zap.Error(err))
	}
	logger.L().Info("reservation sweep finished",
		zap.Int("released", res.Released),
		zap.Int64("expired_offers", res.ExpiredOffers),
	)
}

func run(ctx context.Context, cfg *config.Config, database *sql.DB) (reservation.SweepResult, error) {
	clk := clock.System{}

	var c cache.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		c = cache.NewRedisCache(rdb, "marketplace:")
	}

	var pub notification.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := notification.NewKafkaPublisher(notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.NotificationsTopic))
		defer func() {
			if err := kp.Close(); err != nil {
				logger.L().Warn("failed to close kafka writer", zap.Error(err))
			}
		}()
		pub = kp
	}

	emitter := notification.NewSyncEmitter(notification.NewRepository(database), pub, c, clk)
	sweeper := reservation.NewSweeper(listing.NewRepository(database), offer.NewRepository(database), emitter, clk, cfg.AppBaseURL)

	return sweeper.Sweep(ctx)
}
