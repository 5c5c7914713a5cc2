package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type ChargeRepo struct {
	pool *pgxpool.Pool
}

func NewChargeRepo(pool *pgxpool.Pool) *ChargeRepo {
	return &ChargeRepo{pool: pool}
}

const chargeCols = `id, message_id, sender_id, recipient_id, content_type, base_price_cents, units, total_amount_cents, is_paid, created_at`

func scanCharge(row pgx.Row) (*models.ContentCharge, error) {
	var c models.ContentCharge
	err := row.Scan(&c.ID, &c.MessageID, &c.SenderID, &c.RecipientID, &c.ContentType, &c.BasePriceCents, &c.Units, &c.TotalAmountCents, &c.IsPaid, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertUnique inserts the charge unless one already exists for its
// messageId. Returns false on conflict — the idempotency guard a retried
// billing call relies on.
func (r *ChargeRepo) InsertUnique(ctx context.Context, tx pgx.Tx, c *models.ContentCharge) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO content_charges (id, message_id, sender_id, recipient_id, content_type, base_price_cents, units, total_amount_cents, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING created_at
	`, c.ID, c.MessageID, c.SenderID, c.RecipientID, c.ContentType, c.BasePriceCents, c.Units, c.TotalAmountCents, c.IsPaid).Scan(&c.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ChargeRepo) GetByMessageID(ctx context.Context, tx pgx.Tx, messageID uuid.UUID) (*models.ContentCharge, error) {
	return scanCharge(tx.QueryRow(ctx, `SELECT `+chargeCols+` FROM content_charges WHERE message_id = $1`, messageID))
}
