package offer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type Repository interface {
	// ExpireAccepted moves ACCEPTED offers to EXPIRED. Offers in any other state are left
	// alone, so a repeated call affects zero rows.
	ExpireAccepted(ctx context.Context, ids []string, now time.Time) (int64, error)

	// CompleteAccepted moves ACCEPTED offers to COMPLETED once their order exists.
	CompleteAccepted(ctx context.Context, ids []string, now time.Time) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ExpireAccepted(
	ctx context.Context,
	ids []string,
	now time.Time,
) (int64, error) {
	return r.transition(ctx, ids, StatusAccepted, StatusExpired, now)
}

func (r *repository) CompleteAccepted(
	ctx context.Context,
	ids []string,
	now time.Time,
) (int64, error) {
	return r.transition(ctx, ids, StatusAccepted, StatusCompleted, now)
}

// transition moves the offers still in from to to. Expiry also stamps expires_at.
func (r *repository) transition(
	ctx context.Context,
	ids []string,
	from, to Status,
	now time.Time,
) (int64, error) {

	if !CanTransition(from, to) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE offers
		SET
			status = $3,
			expires_at = CASE WHEN $5 THEN $4 ELSE expires_at END,
			updated_at = $4
		WHERE id = ANY($1)
		  AND status = $2
	`, pq.Array(ids), from, to, now, to == StatusExpired)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
