package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

type orderRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Order, error)
	FindByMeta(ctx context.Context, key, value string) (*entity.Order, error)
	GetMeta(ctx context.Context, orderID uint64, key string) (string, error)
	SetMeta(ctx context.Context, orderID uint64, key, value string) error
	UpdateStatus(ctx context.Context, orderID uint64, status entity.OrderStatus, from ...entity.OrderStatus) (bool, error)
	ListByPaymentMethod(ctx context.Context, method string, offset, limit int) ([]*entity.Order, int, error)
	CancelURL(order *entity.Order) string
	ReturnURL(order *entity.Order) string
}

type orderNoteRepository interface {
	Create(ctx context.Context, note *entity.OrderNote) error
}

// addNote appends an audit note. Notes are best effort and never fail the flow that writes them.
func addNote(ctx context.Context, repo orderNoteRepository, logger logrus.FieldLogger, orderID uint64, text string) {
	err := repo.Create(ctx, &entity.OrderNote{
		OrderID:   orderID,
		Note:      text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.WithError(err).WithField("order_id", orderID).Warn("Failed to add order note")
	}
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
