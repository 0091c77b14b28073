package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

const orderColumns = `
	o.id, o.order_key, o.customer_id, o.payment_method,
	o.billing_first_name, o.billing_last_name, o.billing_email,
	o.total, o.currency, o.status,
	EXISTS (SELECT 1 FROM subscriptions s WHERE s.parent_order_id = o.id) AS has_subscription,
	o.created_at, o.updated_at
`

// OrderRepository adapts the shop's order tables. Orders are never created or removed here.
type OrderRepository struct {
	db          DBTX
	shopBaseURL string
}

func NewOrderRepository(db DBTX, shopBaseURL string) *OrderRepository {
	return &OrderRepository{db: db, shopBaseURL: strings.TrimRight(strings.TrimSpace(shopBaseURL), "/")}
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = ?`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, id), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) FindByMeta(ctx context.Context, key, value string) (*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		INNER JOIN order_meta m ON m.order_id = o.id
		WHERE m.meta_key = ? AND m.meta_value = ?
		ORDER BY o.id DESC
		LIMIT 1
	`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, key, value), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) GetMeta(ctx context.Context, orderID uint64, key string) (string, error) {
	query := `SELECT meta_value FROM order_meta WHERE order_id = ? AND meta_key = ? LIMIT 1`

	var value string
	if err := r.db.QueryRowContext(ctx, query, orderID, key).Scan(&value); err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func (r *OrderRepository) SetMeta(ctx context.Context, orderID uint64, key, value string) error {
	query := `
		INSERT INTO order_meta (order_id, meta_key, meta_value)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)
	`

	_, err := r.db.ExecContext(ctx, query, orderID, key, value)
	return err
}

// UpdateStatus moves an order to status and reports whether the row changed. The update only
// applies while the current status differs from status and, when from is given, is one of from.
// Concurrent deliveries of the same transition therefore see true exactly once.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID uint64, status entity.OrderStatus, from ...entity.OrderStatus) (bool, error) {
	query := `UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status <> ?`
	args := []interface{}{string(status), orderID, string(status)}
	if len(from) > 0 {
		placeholders := make([]string, 0, len(from))
		for _, f := range from {
			placeholders = append(placeholders, "?")
			args = append(args, string(f))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ListByPaymentMethod returns one page of orders paid with method and the total count.
func (r *OrderRepository) ListByPaymentMethod(ctx context.Context, method string, offset, limit int) ([]*entity.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE payment_method = ?`, method).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.payment_method = ?
		ORDER BY o.id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, method, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, 0, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *OrderRepository) CancelURL(order *entity.Order) string {
	values := url.Values{}
	values.Set("cancel_order", "true")
	values.Set("order", order.OrderKey)
	values.Set("order_id", fmt.Sprintf("%d", order.ID))
	return r.shopBaseURL + "/cart/?" + values.Encode()
}

func (r *OrderRepository) ReturnURL(order *entity.Order) string {
	values := url.Values{}
	values.Set("key", order.OrderKey)
	return fmt.Sprintf("%s/checkout/order-received/%d/?%s", r.shopBaseURL, order.ID, values.Encode())
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var total string
	var status string

	err := scan.Scan(
		&order.ID,
		&order.OrderKey,
		&order.CustomerID,
		&order.PaymentMethod,
		&order.BillingFirstName,
		&order.BillingLastName,
		&order.BillingEmail,
		&total,
		&order.Currency,
		&status,
		&order.HasSubscription,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	amount, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("order %d has invalid total %q: %w", order.ID, total, err)
	}
	order.Total = amount
	order.Status = entity.OrderStatus(status)

	return nil
}
