package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionCols = `id, buyer_id, seller_id, duration_minutes, price_cents, used_seconds,
	is_paused, is_active, is_cancelled, start_time, end_time, paused_at, resumed_at, last_active_at,
	created_at, updated_at`

func scanSession(row pgx.Row) (*models.ChatSession, error) {
	var s models.ChatSession
	err := row.Scan(&s.ID, &s.BuyerID, &s.SellerID, &s.DurationMinutes, &s.PriceCents, &s.UsedSeconds,
		&s.IsPaused, &s.IsActive, &s.IsCancelled, &s.StartTime, &s.EndTime, &s.PausedAt, &s.ResumedAt, &s.LastActiveAt,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Create(ctx context.Context, tx pgx.Tx, s *models.ChatSession) error {
	return tx.QueryRow(ctx, `
		INSERT INTO chat_sessions (id, buyer_id, seller_id, duration_minutes, price_cents, used_seconds,
			is_paused, is_active, is_cancelled, start_time, end_time, paused_at, resumed_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, s.ID, s.BuyerID, s.SellerID, s.DurationMinutes, s.PriceCents, s.UsedSeconds,
		s.IsPaused, s.IsActive, s.IsCancelled, s.StartTime, s.EndTime, s.PausedAt, s.ResumedAt, s.LastActiveAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM chat_sessions WHERE id = $1`, id))
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ChatSession, error) {
	return scanSession(tx.QueryRow(ctx, `SELECT `+sessionCols+` FROM chat_sessions WHERE id = $1 FOR UPDATE`, id))
}

// FindLiveForPair returns the buyer's non-cancelled, non-exhausted session
// with the seller, or nil. At most one such session may exist per ordered
// pair.
func (r *SessionRepo) FindLiveForPair(ctx context.Context, tx pgx.Tx, buyerID, sellerID uuid.UUID) (*models.ChatSession, error) {
	s, err := scanSession(tx.QueryRow(ctx, `
		SELECT `+sessionCols+` FROM chat_sessions
		WHERE buyer_id = $1 AND seller_id = $2 AND NOT is_cancelled AND used_seconds < duration_minutes * 60
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE
	`, buyerID, sellerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ActiveForPair is the pool-side variant used by content billing as a
// read-only precondition check.
func (r *SessionRepo) ActiveForPair(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.ChatSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionCols+` FROM chat_sessions
		WHERE buyer_id = $1 AND seller_id = $2 AND is_active AND NOT is_cancelled AND used_seconds < duration_minutes * 60
		ORDER BY created_at DESC LIMIT 1
	`, buyerID, sellerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Update writes the mutable clock/state fields.
func (r *SessionRepo) Update(ctx context.Context, tx pgx.Tx, s *models.ChatSession) error {
	_, err := tx.Exec(ctx, `
		UPDATE chat_sessions
		SET used_seconds = $2, is_paused = $3, is_active = $4, is_cancelled = $5,
			end_time = $6, paused_at = $7, resumed_at = $8, last_active_at = $9, updated_at = now()
		WHERE id = $1
	`, s.ID, s.UsedSeconds, s.IsPaused, s.IsActive, s.IsCancelled,
		s.EndTime, s.PausedAt, s.ResumedAt, s.LastActiveAt)
	return err
}

// ListRunningIDs returns sessions whose clock is ticking, for the sweeper.
func (r *SessionRepo) ListRunningIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM chat_sessions WHERE is_active AND NOT is_paused AND NOT is_cancelled
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionCols+` FROM chat_sessions
		WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
