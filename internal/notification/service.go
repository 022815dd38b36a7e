package notification

import (
	"context"
	"errors"
	"strconv"
	"time"

	"marketplace-be/internal/cache"
	"marketplace-be/internal/clock"
	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

func UnreadCountKey(userID string) string {
	return "notifications:unread:" + userID
}

type Service interface {
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type service struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
	clock clock.Clock
}

func NewService(repo Repository, c cache.Cache, ttl time.Duration, clk clock.Clock) Service {
	return &service{repo: repo, cache: c, ttl: ttl, clock: clk}
}

// UnreadCount reads through the cache. Cache errors fall back to the database.
func (s *service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UnreadCount"),
	)
	key := UnreadCountKey(userID)

	b, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		if n, perr := strconv.ParseInt(string(b), 10, 64); perr == nil {
			return n, nil
		}
		log.Warn("corrupt unread count in cache", zap.ByteString("value", b))
	case !errors.Is(err, cache.ErrCacheMiss):
		log.Warn("unread count cache read failed", zap.Error(err))
	}

	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		log.Error("failed to count unread notifications", zap.Error(err))
		return 0, err
	}

	if err := s.cache.Set(ctx, key, []byte(strconv.FormatInt(n, 10)), s.ttl); err != nil {
		log.Warn("unread count cache write failed", zap.Error(err))
	}

	return n, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, err
	}

	if err := s.cache.Delete(ctx, UnreadCountKey(userID)); err != nil {
		logger.FromCtx(ctx).Warn("failed to invalidate unread count", zap.Error(err))
	}

	return n, nil
}
