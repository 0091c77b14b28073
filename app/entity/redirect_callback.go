package entity

import "time"

const (
	RedirectCallbackProcessed int32 = 10
	RedirectCallbackRejected  int32 = 20
)

type RedirectCallback struct {
	ID uint64

	OrderID *uint64

	PayRequestID      string
	TransactionStatus string
	Checksum          string
	Status            int32
	Error             *string

	CreatedAt time.Time
}
