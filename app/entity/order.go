package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order metadata keys used to correlate a PayHost redirect with the order it belongs to.
const (
	MetaPayRequestID = "PAYHOST_PAY_REQUEST_ID"
	MetaReference    = "PAYHOST_REFERENCE"
)

type Order struct {
	ID       uint64
	OrderKey string

	CustomerID    uint64
	PaymentMethod string

	BillingFirstName string
	BillingLastName  string
	BillingEmail     string

	Total    decimal.Decimal
	Currency string

	Status OrderStatus

	HasSubscription bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
