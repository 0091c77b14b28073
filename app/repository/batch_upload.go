package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

var ErrBatchUploadExists = errors.New("batch upload already exists")

type BatchUploadRepository struct {
	db DBTX
}

func NewBatchUploadRepository(db DBTX) *BatchUploadRepository {
	return &BatchUploadRepository{db: db}
}

func (r *BatchUploadRepository) Create(ctx context.Context, upload *entity.BatchUpload) error {
	query := `
		INSERT INTO paybatch_uploads (upload_id, lines_json, created_at)
		VALUES (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, upload.UploadID, upload.LinesJSON, upload.CreatedAt)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrBatchUploadExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	upload.ID = uint64(id)

	return nil
}

func (r *BatchUploadRepository) List(ctx context.Context) ([]*entity.BatchUpload, error) {
	query := `
		SELECT id, upload_id, lines_json, applied_json, created_at
		FROM paybatch_uploads
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.BatchUpload, 0)
	for rows.Next() {
		var item entity.BatchUpload
		var applied sql.NullString
		if err := rows.Scan(&item.ID, &item.UploadID, &item.LinesJSON, &applied, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.AppliedJSON = applied.String
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// SetApplied records the transaction ids of an upload that were already applied to orders.
func (r *BatchUploadRepository) SetApplied(ctx context.Context, id uint64, appliedJSON string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE paybatch_uploads SET applied_json = ? WHERE id = ?`, appliedJSON, id)
	return err
}

func (r *BatchUploadRepository) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM paybatch_uploads WHERE id = ?`, id)
	return err
}
