package notification

import (
	"context"
	"database/sql"
	"time"

	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, n *Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Kind, n.Title, n.Body, n.Link, n.CreatedAt)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to insert notification",
			zap.String("layer", "repository"),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
	}
	return err
}

func (r *repository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND read_at IS NULL
	`, userID).Scan(&n)
	return n, err
}

func (r *repository) MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET read_at = $2
		WHERE user_id = $1 AND read_at IS NULL
	`, userID, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
