// Package session implements the time-metered chat session engine: purchase,
// the pausable clock, lazy expiry and pro-rata refund cancellation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/clock"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/money"
	"github.com/chatpesa/backend/internal/notify"
	"github.com/chatpesa/backend/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	// ErrSessionConflict is returned when the buyer already holds a live
	// session with the seller.
	ErrSessionConflict = errors.New("active session already exists")
	ErrNotParticipant  = errors.New("caller is not a session participant")
)

type Repo interface {
	Create(ctx context.Context, tx pgx.Tx, s *models.ChatSession) error
	Get(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ChatSession, error)
	FindLiveForPair(ctx context.Context, tx pgx.Tx, buyerID, sellerID uuid.UUID) (*models.ChatSession, error)
	Update(ctx context.Context, tx pgx.Tx, s *models.ChatSession) error
	ListRunningIDs(ctx context.Context) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)
}

// Ledger is the slice of the balance ledger the session engine uses. Session
// money moves by direct transfer, never through holds.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
}

type Pricing interface {
	TierPrice(ctx context.Context, userID uuid.UUID, durationMinutes int) (int64, error)
}

type Service struct {
	db       store.Runner
	sessions Repo
	ledger   Ledger
	pricing  Pricing
	notifier notify.Publisher
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(db store.Runner, sessions Repo, ledger Ledger, pricing Pricing, notifier notify.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{db: db, sessions: sessions, ledger: ledger, pricing: pricing, notifier: notifier, clock: clk, logger: logger}
}

func (s *Service) getForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ChatSession, error) {
	sess, err := s.sessions.GetForUpdate(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Purchase buys a chat-time tier from the seller's published menu. The price
// transfers immediately — both sides agreed to it by the published tier — so
// cancellation later refunds pro rata instead of releasing a hold. The new
// session starts paused with a zero clock.
func (s *Service) Purchase(ctx context.Context, buyerID, sellerID uuid.UUID, durationMinutes int) (*models.ChatSession, error) {
	price, err := s.pricing.TierPrice(ctx, sellerID, durationMinutes)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	sess := &models.ChatSession{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		SellerID:        sellerID,
		DurationMinutes: durationMinutes,
		PriceCents:      price,
		IsPaused:        true,
		IsActive:        true,
		StartTime:       now,
		EndTime:         now,
		LastActiveAt:    now,
	}
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		existing, err := s.sessions.FindLiveForPair(ctx, tx, buyerID, sellerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrSessionConflict
		}
		if err := s.ledger.Debit(ctx, tx, buyerID, price, "chat_time_purchase", &sess.ID); err != nil {
			return err
		}
		if err := s.ledger.Credit(ctx, tx, sellerID, price, "chat_time_earning", &sess.ID); err != nil {
			return err
		}
		return s.sessions.Create(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.SessionPurchased{
		SessionID:       sess.ID,
		BuyerID:         buyerID,
		SellerID:        sellerID,
		DurationMinutes: durationMinutes,
		PriceCents:      price,
	})
	return sess, nil
}

// Activate starts (or resumes) the session clock. The deadline is recomputed
// from the unconsumed quota.
func (s *Service) Activate(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, error) {
	var out *models.ChatSession
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		sess, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !sess.IsParticipant(callerID) {
			return ErrNotParticipant
		}
		if err := s.activateLocked(ctx, tx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) activateLocked(ctx context.Context, tx pgx.Tx, sess *models.ChatSession) error {
	if sess.IsCancelled || !sess.IsActive {
		return ErrSessionExpired
	}
	if !sess.IsPaused {
		return nil // already running
	}
	remaining := sess.QuotaSeconds() - sess.UsedSeconds
	if remaining <= 0 {
		return ErrSessionExpired
	}
	now := s.clock.Now()
	sess.IsPaused = false
	sess.ResumedAt = &now
	sess.LastActiveAt = now
	sess.EndTime = now.Add(time.Duration(remaining) * time.Second)
	return s.sessions.Update(ctx, tx, sess)
}

// TouchActivity is called once per message inside a paid session. A paused
// session resumes; a session past its deadline is finalized and the caller
// gets ErrSessionExpired (the finalize still commits); otherwise only the
// activity anchor moves.
func (s *Service) TouchActivity(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	var out *models.ChatSession
	var expired bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		expired = false
		sess, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sess.IsCancelled || !sess.IsActive {
			return ErrSessionExpired
		}
		out = sess
		if sess.IsPaused {
			return s.activateLocked(ctx, tx, sess)
		}
		now := s.clock.Now()
		if now.After(sess.EndTime) {
			s.finalizeOverrun(sess)
			expired = true
			return s.sessions.Update(ctx, tx, sess)
		}
		sess.LastActiveAt = now
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return out, ErrSessionExpired
	}
	return out, nil
}

// finalizeOverrun consumes the time between the last activity and the
// deadline, capped at the unconsumed quota, and stops the session.
func (s *Service) finalizeOverrun(sess *models.ChatSession) {
	elapsed := int64(sess.EndTime.Sub(sess.LastActiveAt) / time.Second)
	remaining := sess.QuotaSeconds() - sess.UsedSeconds
	if elapsed > remaining {
		elapsed = remaining
	}
	if elapsed > 0 {
		sess.UsedSeconds += elapsed
	}
	now := s.clock.Now()
	sess.IsPaused = true
	sess.IsActive = false
	sess.PausedAt = &now
}

// accrualAnchor is the instant consumed time is measured from: the latest of
// the last activity, the last resume and the session start.
func accrualAnchor(sess *models.ChatSession) time.Time {
	anchor := sess.StartTime
	if sess.LastActiveAt.After(anchor) {
		anchor = sess.LastActiveAt
	}
	if sess.ResumedAt != nil && sess.ResumedAt.After(anchor) {
		anchor = *sess.ResumedAt
	}
	return anchor
}

// accrue adds the running time since the anchor to usedSeconds, capped at the
// quota.
func (s *Service) accrue(sess *models.ChatSession, now time.Time) {
	elapsed := int64(now.Sub(accrualAnchor(sess)) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := sess.QuotaSeconds() - sess.UsedSeconds
	if elapsed > remaining {
		elapsed = remaining
	}
	sess.UsedSeconds += elapsed
}

// Pause stops the clock and banks the elapsed time. Pausing an
// already-paused session is a no-op.
func (s *Service) Pause(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, error) {
	var out *models.ChatSession
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		sess, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !sess.IsParticipant(callerID) {
			return ErrNotParticipant
		}
		if sess.IsCancelled || !sess.IsActive {
			return ErrSessionExpired
		}
		out = sess
		if sess.IsPaused {
			return nil
		}
		now := s.clock.Now()
		s.accrue(sess, now)
		sess.IsPaused = true
		sess.PausedAt = &now
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel finalizes the clock exactly as Pause would and refunds the unused
// share of the price from the seller back to the buyer. Sessions were paid by
// direct transfer, so the refund is two ledger moves, not a hold resolution.
func (s *Service) Cancel(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, int64, error) {
	var out *models.ChatSession
	var refund int64
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		sess, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !sess.IsParticipant(callerID) {
			return ErrNotParticipant
		}
		if sess.IsCancelled {
			return ErrSessionExpired
		}
		now := s.clock.Now()
		if sess.Running() {
			s.accrue(sess, now)
		}
		remaining := sess.QuotaSeconds() - sess.UsedSeconds
		refund = money.Prorata(sess.PriceCents, remaining, sess.QuotaSeconds())
		if refund > 0 {
			if err := s.ledger.Debit(ctx, tx, sess.SellerID, refund, "chat_time_refund", &sess.ID); err != nil {
				return err
			}
			if err := s.ledger.Credit(ctx, tx, sess.BuyerID, refund, "chat_time_refund", &sess.ID); err != nil {
				return err
			}
		}
		sess.IsCancelled = true
		sess.IsActive = false
		sess.IsPaused = true
		sess.PausedAt = &now
		out = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, 0, err
	}
	s.publish(ctx, notify.SessionCancelled{
		SessionID:   out.ID,
		BuyerID:     out.BuyerID,
		SellerID:    out.SellerID,
		RefundCents: refund,
	})
	return out, refund, nil
}

// Remaining reports the unconsumed quota in seconds using the session's
// single remaining-time formula.
func (s *Service) Remaining(sess *models.ChatSession) int64 {
	return sess.RemainingSeconds(s.clock.Now())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	sess, err := s.sessions.Get(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// AutoPauseInactive is the periodic sweep: running sessions past their
// deadline are finalized, running sessions idle longer than idleAfter are
// paused with their time banked. Idempotent — each row is re-checked under
// lock, and one bad row never stops the sweep. Returns the number of sessions
// it changed.
func (s *Service) AutoPauseInactive(ctx context.Context, idleAfter time.Duration) (int, error) {
	ids, err := s.sessions.ListRunningIDs(ctx)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range ids {
		changed, err := s.sweepOne(ctx, id, idleAfter)
		if err != nil {
			s.logger.Error("session sweep failed", "session_id", id, "error", err)
			continue
		}
		if changed {
			swept++
		}
	}
	return swept, nil
}

func (s *Service) sweepOne(ctx context.Context, id uuid.UUID, idleAfter time.Duration) (bool, error) {
	changed := false
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		changed = false
		sess, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !sess.Running() {
			return nil // already transitioned by a user action
		}
		now := s.clock.Now()
		switch {
		case now.After(sess.EndTime):
			s.finalizeOverrun(sess)
		case now.Sub(sess.LastActiveAt) > idleAfter:
			s.accrue(sess, now)
			sess.IsPaused = true
			pausedAt := now
			sess.PausedAt = &pausedAt
		default:
			return nil
		}
		changed = true
		return s.sessions.Update(ctx, tx, sess)
	})
	return changed, err
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Error("publish notification", "subject", ev.Subject(), "error", err)
	}
}
