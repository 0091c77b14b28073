package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListActiveByOrder returns the active subscriptions created from the given parent order.
func (r *SubscriptionRepository) ListActiveByOrder(ctx context.Context, orderID uint64) ([]*entity.Subscription, error) {
	query := `
		SELECT id, parent_order_id, order_key, status, total, next_payment_at
		FROM subscriptions
		WHERE parent_order_id = ? AND status = 'active'
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Subscription, 0)
	for rows.Next() {
		var item entity.Subscription
		var total string
		var nextPayment sql.NullTime
		if err := rows.Scan(&item.ID, &item.OrderID, &item.OrderKey, &item.Status, &total, &nextPayment); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("subscription %d has invalid total %q: %w", item.ID, total, err)
		}
		item.Total = amount
		item.NextPaymentAt = timePtrFromNull(nextPayment)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
