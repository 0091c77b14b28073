package repository

import "context"

type CartRepository struct {
	db DBTX
}

func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) EmptyForCustomer(ctx context.Context, customerID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = ?`, customerID)
	return err
}
