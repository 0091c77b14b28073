package repository

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

var ErrVaultTokenNotFound = errors.New("vault token not found")

type VaultTokenRepository struct {
	db DBTX
}

func NewVaultTokenRepository(db DBTX) *VaultTokenRepository {
	return &VaultTokenRepository{db: db}
}

func (r *VaultTokenRepository) List(ctx context.Context, customerID uint64, gatewayID string) ([]*entity.VaultToken, error) {
	query := `
		SELECT token_id, gateway_id, user_id, token, type, is_default, created_at, updated_at
		FROM payment_tokens
		WHERE user_id = ? AND gateway_id = ?
		ORDER BY token_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, customerID, gatewayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.VaultToken, 0)
	for rows.Next() {
		var item entity.VaultToken
		if err := rows.Scan(
			&item.ID,
			&item.GatewayID,
			&item.CustomerID,
			&item.Token,
			&item.Type,
			&item.IsDefault,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *VaultTokenRepository) Create(ctx context.Context, token *entity.VaultToken) error {
	query := `
		INSERT INTO payment_tokens (gateway_id, token, user_id, type, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		token.GatewayID,
		token.Token,
		token.CustomerID,
		token.Type,
		boolToInt(token.IsDefault),
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)

	return nil
}

func (r *VaultTokenRepository) Update(ctx context.Context, token *entity.VaultToken) error {
	query := `UPDATE payment_tokens SET token = ?, updated_at = ? WHERE token_id = ?`

	result, err := r.db.ExecContext(ctx, query, token.Token, token.UpdatedAt, token.ID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVaultTokenNotFound
	}

	return nil
}

func (r *VaultTokenRepository) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payment_tokens WHERE token_id = ?`, id)
	return err
}
