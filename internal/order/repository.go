package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/payment"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type Repository interface {
	// GetBySessionID loads the order created for a checkout session together with its items.
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)

	// Create inserts the order row and its items in one transaction, so no reader ever
	// sees an order without items. created is false when another finalizer already
	// claimed the session, in which case o is left untouched.
	Create(ctx context.Context, o *Order) (created bool, err error)

	// Delete removes an order whose commit outcome is unknown.
	Delete(ctx context.Context, orderID string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBySessionID(ctx context.Context, sessionID string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetBySessionID"),
		zap.String("session_id", sessionID),
	)

	query := `
		SELECT
			id, ref, checkout_session_id, buyer_id,
			subtotal, service_fee, shipping_cost, total, currency,
			shipping_method, shipping_address,
			status, payout_status, created_at, updated_at
		FROM orders
		WHERE checkout_session_id = $1
	`

	var (
		o       Order
		address []byte
		status  string
		payout  string
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&o.ID, &o.Ref, &o.CheckoutSessionID, &o.BuyerID,
		&o.Subtotal, &o.ServiceFee, &o.ShippingCost, &o.Total, &o.Currency,
		&o.ShippingMethod, &address,
		&status, &payout, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		return nil, err
	}

	if o.Status, err = ParseStatus(status); err != nil {
		log.Error("unknown order status", zap.Error(err))
		return nil, err
	}
	if o.PayoutStatus, err = ParsePayoutStatus(payout); err != nil {
		log.Error("unknown payout status", zap.Error(err))
		return nil, err
	}

	if len(address) > 0 {
		var a payment.Address
		if err := json.Unmarshal(address, &a); err != nil {
			log.Error("failed to decode shipping address", zap.Error(err))
			return nil, err
		}
		o.ShippingAddress = &a
	}

	items, err := r.getItems(ctx, o.ID)
	if err != nil {
		log.Error("failed to load order items", zap.Error(err))
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *repository) getItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, order_id, listing_id, seller_id, seller_name,
			title, image_url, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ListingID, &it.SellerID, &it.SellerName,
			&it.Title, &it.ImageURL, &it.Price, &it.Quantity,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func (r *repository) Create(ctx context.Context, o *Order) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
		zap.String("session_id", o.CheckoutSessionID),
	)

	var address []byte
	if o.ShippingAddress != nil {
		b, err := json.Marshal(o.ShippingAddress)
		if err != nil {
			return false, err
		}
		address = b
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin tx", zap.Error(err))
		return false, err
	}
	defer tx.Rollback()

	// The unique index on checkout_session_id is the creation marker: a concurrent insert
	// for the same session waits for this transaction and then gets no row back.
	query := `
		INSERT INTO orders (
			id, ref, checkout_session_id, buyer_id,
			subtotal, service_fee, shipping_cost, total, currency,
			shipping_method, shipping_address,
			status, payout_status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		ON CONFLICT (checkout_session_id) DO NOTHING
		RETURNING id
	`

	var id string
	err = tx.QueryRowContext(ctx, query,
		o.ID, o.Ref, o.CheckoutSessionID, o.BuyerID,
		o.Subtotal, o.ServiceFee, o.ShippingCost, o.Total, o.Currency,
		o.ShippingMethod, address,
		o.Status, o.PayoutStatus, o.CreatedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		log.Info("order already created for session")
		return false, nil
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			log.Warn("unique violation creating order", zap.String("constraint", pqErr.Constraint))
			return false, fmt.Errorf("%w: %s", ErrDuplicateOrder, pqErr.Constraint)
		}
		log.Error("failed to create order", zap.Error(err))
		return false, err
	}

	if err := insertItems(ctx, tx, o.ID, o.Items); err != nil {
		log.Error("failed to insert order items", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrItemsFailed, err)
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	o.UpdatedAt = o.CreatedAt
	return true, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []OrderItem) error {
	for i := range items {
		it := &items[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_items (
				order_id, listing_id, seller_id, seller_name,
				title, image_url, price, quantity
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`,
			orderID, it.ListingID, it.SellerID, it.SellerName,
			it.Title, it.ImageURL, it.Price, it.Quantity,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("listing %s: %w", it.ListingID, err)
		}
		it.OrderID = orderID
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, orderID string) error {
	// order_items cascade.
	_, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	return err
}
