package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

const balanceCols = `user_id, available_cents, pending_cents, total_earned_cents, total_spent_cents, currency, created_at, updated_at`

func scanBalance(row pgx.Row) (*models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.UserID, &b.AvailableCents, &b.PendingCents, &b.TotalEarnedCents, &b.TotalSpentCents, &b.Currency, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Get reads a balance without locking. Returns a zero balance when the user
// has no row yet.
func (r *BalanceRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	b, err := scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceCols+` FROM balances WHERE user_id = $1`, userID))
	if err == pgx.ErrNoRows {
		return &models.Balance{UserID: userID, Currency: models.DefaultCurrency}, nil
	}
	return b, err
}

// GetForUpdate locks the user's balance row, creating a zero row first if
// absent. Call within a transaction.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Balance, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, err
	}
	return scanBalance(tx.QueryRow(ctx, `SELECT `+balanceCols+` FROM balances WHERE user_id = $1 FOR UPDATE`, userID))
}

// Apply adjusts the four counters by the given deltas and returns the new
// available balance. Call after GetForUpdate in the same transaction; the
// check constraints back up the service-level guards.
func (r *BalanceRepo) Apply(ctx context.Context, tx pgx.Tx, userID uuid.UUID, availDelta, pendingDelta, earnedDelta, spentDelta int64) (int64, error) {
	var newAvailable int64
	err := tx.QueryRow(ctx, `
		UPDATE balances
		SET available_cents = available_cents + $2,
			pending_cents = pending_cents + $3,
			total_earned_cents = total_earned_cents + $4,
			total_spent_cents = total_spent_cents + $5,
			updated_at = now()
		WHERE user_id = $1
		RETURNING available_cents
	`, userID, availDelta, pendingDelta, earnedDelta, spentDelta).Scan(&newAvailable)
	return newAvailable, err
}
