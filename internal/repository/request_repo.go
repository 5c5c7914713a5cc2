package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestCols = `id, requester_id, provider_id, service_type, duration_minutes, price_cents,
	status, message, response_reason, created_at, responded_at`

func scanRequest(row pgx.Row) (*models.ServiceRequest, error) {
	var q models.ServiceRequest
	err := row.Scan(&q.ID, &q.RequesterID, &q.ProviderID, &q.ServiceType, &q.DurationMinutes, &q.PriceCents,
		&q.Status, &q.Message, &q.ResponseReason, &q.CreatedAt, &q.RespondedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *RequestRepo) Create(ctx context.Context, tx pgx.Tx, q *models.ServiceRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO service_requests (id, requester_id, provider_id, service_type, duration_minutes, price_cents, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, q.ID, q.RequesterID, q.ProviderID, q.ServiceType, q.DurationMinutes, q.PriceCents, q.Status, q.Message, q.CreatedAt).Scan(&q.CreatedAt)
}

func (r *RequestRepo) Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestCols+` FROM service_requests WHERE id = $1`, id))
}

func (r *RequestRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error) {
	return scanRequest(tx.QueryRow(ctx, `SELECT `+requestCols+` FROM service_requests WHERE id = $1 FOR UPDATE`, id))
}

// Update writes status, response reason and responded_at.
func (r *RequestRepo) Update(ctx context.Context, tx pgx.Tx, q *models.ServiceRequest) error {
	_, err := tx.Exec(ctx, `
		UPDATE service_requests SET status = $2, response_reason = $3, responded_at = $4 WHERE id = $1
	`, q.ID, q.Status, q.ResponseReason, q.RespondedAt)
	return err
}

// ListStalePendingIDs returns PENDING requests created before cutoff.
func (r *RequestRepo) ListStalePendingIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM service_requests WHERE status = $1 AND created_at < $2
	`, models.RequestPending, cutoff)
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

func (r *RequestRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestCols+` FROM service_requests
		WHERE requester_id = $1 OR provider_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ServiceRequest
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// ServiceSessionRepo persists the immutable sessions spawned by accepted
// requests.
type ServiceSessionRepo struct {
	pool *pgxpool.Pool
}

func NewServiceSessionRepo(pool *pgxpool.Pool) *ServiceSessionRepo {
	return &ServiceSessionRepo{pool: pool}
}

func (r *ServiceSessionRepo) Create(ctx context.Context, tx pgx.Tx, s *models.ServiceSession) error {
	return tx.QueryRow(ctx, `
		INSERT INTO service_sessions (id, request_id, start_time, end_time, is_paid)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.ID, s.RequestID, s.StartTime, s.EndTime, s.IsPaid).Scan(&s.CreatedAt)
}

func (r *ServiceSessionRepo) GetByRequest(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.ServiceSession, error) {
	var s models.ServiceSession
	err := tx.QueryRow(ctx, `
		SELECT id, request_id, start_time, end_time, is_paid, created_at
		FROM service_sessions WHERE request_id = $1
	`, requestID).Scan(&s.ID, &s.RequestID, &s.StartTime, &s.EndTime, &s.IsPaid, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
