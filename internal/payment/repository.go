package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

const ProviderName = "stripe"

// Repository is the webhook log. Every verified delivery is recorded once per
// (provider, event_id). A redelivery counts as a duplicate only after the first delivery was
// processed, so events whose handling failed are retried.
type Repository interface {
	SaveWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		sessionID string,
		payload json.RawMessage,
	) (webhookID int64, isDuplicate bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	sessionID string,
	payload json.RawMessage,
) (int64, bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "SaveWebhook"),
		zap.String("event_id", eventID),
	)

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		session_id,
		payload
	)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET attempts = payment_webhooks.attempts + 1
	WHERE payment_webhooks.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventID,
		eventType,
		sessionID,
		[]byte(payload),
	).Scan(&id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Info("duplicate webhook delivery")
			return 0, true, nil
		}
		log.Error("failed to save webhook", zap.Error(err))
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
