// Package escrow implements the service-request engine: funds lock at
// request time and sit in a hold until the provider responds, the requester
// cancels, or the request goes stale. Structurally distinct from chat-time
// sessions, where the price transfers at purchase.
package escrow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/clock"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/notify"
	"github.com/chatpesa/backend/internal/store"
)

var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrRequestNotPending = errors.New("request is not pending")
	ErrRequestExpired    = errors.New("request has expired")
	ErrNotParticipant    = errors.New("caller is not a request participant")
	// ErrSessionStillRunning is returned when completing a request whose
	// service session has not ended yet.
	ErrSessionStillRunning = errors.New("service session still running")
)

// StaleAfter is how long a request may stay PENDING before it is treated as
// stale, both by the sweep and by a late provider response.
const StaleAfter = 7 * 24 * time.Hour

// HoldSourceType tags holds created for service requests.
const HoldSourceType = "service_request"

type RequestRepo interface {
	Create(ctx context.Context, tx pgx.Tx, q *models.ServiceRequest) error
	Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error)
	Update(ctx context.Context, tx pgx.Tx, q *models.ServiceRequest) error
	ListStalePendingIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error)
}

type ServiceSessionRepo interface {
	Create(ctx context.Context, tx pgx.Tx, s *models.ServiceSession) error
	GetByRequest(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.ServiceSession, error)
}

// Ledger is the hold-based slice of the balance ledger the request engine
// uses.
type Ledger interface {
	Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, sourceType string, sourceID uuid.UUID, reason string) (*models.PendingBalanceHold, error)
	Release(ctx context.Context, tx pgx.Tx, holdID, toUserID uuid.UUID, reason string) error
	Refund(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, expired bool, reason string) error
	HoldBySource(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) (*models.PendingBalanceHold, error)
}

type Pricing interface {
	ServicePrice(ctx context.Context, userID uuid.UUID, serviceType string, durationMinutes int) (int64, error)
}

type Service struct {
	db          store.Runner
	requests    RequestRepo
	svcSessions ServiceSessionRepo
	ledger      Ledger
	pricing     Pricing
	notifier    notify.Publisher
	clock       clock.Clock
	logger      *slog.Logger
}

func NewService(db store.Runner, requests RequestRepo, svcSessions ServiceSessionRepo, ledger Ledger, pricing Pricing, notifier notify.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{db: db, requests: requests, svcSessions: svcSessions, ledger: ledger, pricing: pricing, notifier: notifier, clock: clk, logger: logger}
}

func (s *Service) getForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error) {
	q, err := s.requests.GetForUpdate(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	return q, err
}

// CreateRequest locks the price from the requester's balance and files a
// PENDING request. Nothing is paid to the provider until they accept.
func (s *Service) CreateRequest(ctx context.Context, requesterID, providerID uuid.UUID, serviceType string, durationMinutes int, message string) (*models.ServiceRequest, error) {
	price, err := s.pricing.ServicePrice(ctx, providerID, serviceType, durationMinutes)
	if err != nil {
		return nil, err
	}
	req := &models.ServiceRequest{
		ID:              uuid.New(),
		RequesterID:     requesterID,
		ProviderID:      providerID,
		ServiceType:     serviceType,
		DurationMinutes: durationMinutes,
		PriceCents:      price,
		Status:          models.RequestPending,
		Message:         message,
		CreatedAt:       s.clock.Now(),
	}
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.ledger.Lock(ctx, tx, requesterID, price, HoldSourceType, req.ID, "service_request_lock"); err != nil {
			return err
		}
		return s.requests.Create(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.RequestCreated{
		RequestID:       req.ID,
		RequesterID:     requesterID,
		ProviderID:      providerID,
		ServiceType:     serviceType,
		DurationMinutes: durationMinutes,
		PriceCents:      price,
		Message:         message,
	})
	return req, nil
}

// Respond resolves a PENDING request. Accepting releases the hold to the
// provider and spawns the paid service session; rejecting refunds the
// requester. A response to a stale request expires it instead and reports
// ErrRequestExpired (the expiry commits).
func (s *Service) Respond(ctx context.Context, providerID, requestID uuid.UUID, accept bool, reason string) (*models.ServiceRequest, error) {
	var out *models.ServiceRequest
	var sessionID uuid.UUID
	var expiredNow bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		expiredNow = false
		req, err := s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.ProviderID != providerID {
			return ErrNotParticipant
		}
		if req.Status != models.RequestPending {
			return ErrRequestNotPending
		}
		now := s.clock.Now()
		if now.Sub(req.CreatedAt) > StaleAfter {
			if err := s.expireLocked(ctx, tx, req, now); err != nil {
				return err
			}
			out = req
			expiredNow = true
			return nil
		}
		hold, err := s.ledger.HoldBySource(ctx, tx, HoldSourceType, req.ID)
		if err != nil {
			return err
		}
		if accept {
			if err := s.ledger.Release(ctx, tx, hold.ID, providerID, "service_request_release"); err != nil {
				return err
			}
			svcSession := &models.ServiceSession{
				ID:        uuid.New(),
				RequestID: req.ID,
				StartTime: now,
				EndTime:   now.Add(time.Duration(req.DurationMinutes) * time.Minute),
				IsPaid:    true,
			}
			if err := s.svcSessions.Create(ctx, tx, svcSession); err != nil {
				return err
			}
			sessionID = svcSession.ID
			req.Status = models.RequestAccepted
		} else {
			if err := s.ledger.Refund(ctx, tx, hold.ID, false, "service_request_refund"); err != nil {
				return err
			}
			req.Status = models.RequestRejected
			if reason != "" {
				req.ResponseReason = &reason
			}
		}
		req.RespondedAt = &now
		out = req
		return s.requests.Update(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	if expiredNow {
		s.publishExpired(ctx, out)
		return out, ErrRequestExpired
	}
	if accept {
		s.publish(ctx, notify.RequestAccepted{
			RequestID:   out.ID,
			RequesterID: out.RequesterID,
			ProviderID:  out.ProviderID,
			SessionID:   sessionID,
			PriceCents:  out.PriceCents,
		})
	} else {
		s.publish(ctx, notify.RequestRejected{
			RequestID:   out.ID,
			RequesterID: out.RequesterID,
			ProviderID:  out.ProviderID,
			Reason:      reason,
		})
	}
	return out, nil
}

// Cancel lets the requester withdraw a still-PENDING request; the hold
// refunds in full.
func (s *Service) Cancel(ctx context.Context, requesterID, requestID uuid.UUID) (*models.ServiceRequest, error) {
	var out *models.ServiceRequest
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		req, err := s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RequesterID != requesterID {
			return ErrNotParticipant
		}
		if req.Status != models.RequestPending {
			return ErrRequestNotPending
		}
		hold, err := s.ledger.HoldBySource(ctx, tx, HoldSourceType, req.ID)
		if err != nil {
			return err
		}
		if err := s.ledger.Refund(ctx, tx, hold.ID, false, "service_request_cancelled"); err != nil {
			return err
		}
		now := s.clock.Now()
		req.Status = models.RequestCancelled
		req.RespondedAt = &now
		out = req
		return s.requests.Update(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.RequestCancelled{
		RequestID:   out.ID,
		RequesterID: out.RequesterID,
		ProviderID:  out.ProviderID,
	})
	return out, nil
}

// Expire moves a PENDING request to EXPIRED and refunds its hold. Idempotent:
// a request that already left PENDING is skipped without error, so the sweep
// can safely revisit rows.
func (s *Service) Expire(ctx context.Context, requestID uuid.UUID) error {
	var out *models.ServiceRequest
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		out = nil
		req, err := s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return nil
		}
		if err := s.expireLocked(ctx, tx, req, s.clock.Now()); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return err
	}
	if out != nil {
		s.publishExpired(ctx, out)
	}
	return nil
}

func (s *Service) expireLocked(ctx context.Context, tx pgx.Tx, req *models.ServiceRequest, now time.Time) error {
	hold, err := s.ledger.HoldBySource(ctx, tx, HoldSourceType, req.ID)
	if err != nil {
		return err
	}
	if err := s.ledger.Refund(ctx, tx, hold.ID, true, "service_request_expired"); err != nil {
		return err
	}
	req.Status = models.RequestExpired
	req.RespondedAt = &now
	return s.requests.Update(ctx, tx, req)
}

// AutoExpireStale sweeps PENDING requests older than threshold. Safe to run
// repeatedly and concurrently with user responses: the status guard in Expire
// skips anything already resolved. Returns the number of requests expired.
func (s *Service) AutoExpireStale(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-threshold)
	ids, err := s.requests.ListStalePendingIDs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		if err := s.Expire(ctx, id); err != nil {
			s.logger.Error("request sweep failed", "request_id", id, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// Complete marks an ACCEPTED request COMPLETED once its service session has
// ended. State only — the money moved at acceptance.
func (s *Service) Complete(ctx context.Context, requestID uuid.UUID) (*models.ServiceRequest, error) {
	var out *models.ServiceRequest
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		req, err := s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestAccepted {
			return ErrRequestNotPending
		}
		svcSession, err := s.svcSessions.GetByRequest(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if s.clock.Now().Before(svcSession.EndTime) {
			return ErrSessionStillRunning
		}
		req.Status = models.RequestCompleted
		out = req
		return s.requests.Update(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	q, err := s.requests.Get(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	return q, err
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error) {
	return s.requests.ListByUser(ctx, userID)
}

func (s *Service) publishExpired(ctx context.Context, req *models.ServiceRequest) {
	s.publish(ctx, notify.RequestExpired{
		RequestID:   req.ID,
		RequesterID: req.RequesterID,
		ProviderID:  req.ProviderID,
	})
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Error("publish notification", "subject", ev.Subject(), "error", err)
	}
}
