package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

type OrderNoteRepository struct {
	db DBTX
}

func NewOrderNoteRepository(db DBTX) *OrderNoteRepository {
	return &OrderNoteRepository{db: db}
}

func (r *OrderNoteRepository) Create(ctx context.Context, note *entity.OrderNote) error {
	query := `
		INSERT INTO order_notes (order_id, note, created_at)
		VALUES (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, note.OrderID, note.Note, note.CreatedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	note.ID = uint64(id)

	return nil
}
