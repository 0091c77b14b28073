package entity

import "time"

type OrderNote struct {
	ID uint64

	OrderID uint64
	Note    string

	CreatedAt time.Time
}
