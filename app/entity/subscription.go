package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const SubscriptionStatusCancelled = "cancelled"

type Subscription struct {
	ID       uint64
	OrderID  uint64
	OrderKey string

	Status string
	Total  decimal.Decimal

	NextPaymentAt *time.Time
}
