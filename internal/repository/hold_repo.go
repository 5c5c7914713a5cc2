package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type HoldRepo struct {
	pool *pgxpool.Pool
}

func NewHoldRepo(pool *pgxpool.Pool) *HoldRepo {
	return &HoldRepo{pool: pool}
}

const holdCols = `id, user_id, amount_cents, status, source_type, source_id, created_at, resolved_at`

func scanHold(row pgx.Row) (*models.PendingBalanceHold, error) {
	var h models.PendingBalanceHold
	err := row.Scan(&h.ID, &h.UserID, &h.AmountCents, &h.Status, &h.SourceType, &h.SourceID, &h.CreatedAt, &h.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HoldRepo) Create(ctx context.Context, tx pgx.Tx, h *models.PendingBalanceHold) error {
	return tx.QueryRow(ctx, `
		INSERT INTO pending_balance_holds (id, user_id, amount_cents, status, source_type, source_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, h.ID, h.UserID, h.AmountCents, h.Status, h.SourceType, h.SourceID).Scan(&h.CreatedAt)
}

func (r *HoldRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PendingBalanceHold, error) {
	return scanHold(tx.QueryRow(ctx, `SELECT `+holdCols+` FROM pending_balance_holds WHERE id = $1 FOR UPDATE`, id))
}

// GetBySourceForUpdate locks the hold created for one aggregate (a service
// request has at most one).
func (r *HoldRepo) GetBySourceForUpdate(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) (*models.PendingBalanceHold, error) {
	return scanHold(tx.QueryRow(ctx, `
		SELECT `+holdCols+` FROM pending_balance_holds
		WHERE source_type = $1 AND source_id = $2 FOR UPDATE
	`, sourceType, sourceID))
}

// Transition moves a LOCKED hold to a terminal status. Returns false when the
// hold already left LOCKED — the single-shot guard against double resolution.
func (r *HoldRepo) Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE pending_balance_holds
		SET status = $2, resolved_at = now()
		WHERE id = $1 AND status = $3
	`, id, to, models.HoldLocked)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
