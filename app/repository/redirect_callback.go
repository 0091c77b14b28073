package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

type RedirectCallbackRepository struct {
	db DBTX
}

func NewRedirectCallbackRepository(db DBTX) *RedirectCallbackRepository {
	return &RedirectCallbackRepository{db: db}
}

func (r *RedirectCallbackRepository) Create(ctx context.Context, callback *entity.RedirectCallback) error {
	query := `
		INSERT INTO payhost_redirect_callbacks (
			order_id, pay_request_id, transaction_status, checksum, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(callback.OrderID),
		callback.PayRequestID,
		callback.TransactionStatus,
		callback.Checksum,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	callback.ID = uint64(id)

	return nil
}
