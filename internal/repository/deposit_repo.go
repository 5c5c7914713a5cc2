package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type DepositRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRepo(pool *pgxpool.Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

// InsertUnique records the deposit unless its provider_ref was already seen.
// Returns false on conflict; the gateway delivers at least once.
func (r *DepositRepo) InsertUnique(ctx context.Context, tx pgx.Tx, d *models.Deposit) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO deposits (id, user_id, amount_cents, currency, provider_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_ref) DO NOTHING
		RETURNING created_at
	`, d.ID, d.UserID, d.AmountCents, d.Currency, d.ProviderRef).Scan(&d.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
