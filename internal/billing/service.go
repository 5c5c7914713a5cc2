// Package billing charges paid content (images, audio, video) sent inside an
// active chat session. Text never bills. Charges are idempotent on the
// caller-supplied messageId.
package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/clock"
	"github.com/chatpesa/backend/internal/ledger"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/store"
)

var (
	// ErrSessionRequired is returned when the sender has no live chat
	// session with the recipient. The decision carries the recipient's
	// purchasable tiers so the client can offer them.
	ErrSessionRequired = errors.New("active chat session required")
	// ErrDurationRequired is returned for audio and video content without a
	// positive duration.
	ErrDurationRequired = errors.New("content duration required")
)

type ChargeRepo interface {
	InsertUnique(ctx context.Context, tx pgx.Tx, c *models.ContentCharge) (bool, error)
	GetByMessageID(ctx context.Context, tx pgx.Tx, messageID uuid.UUID) (*models.ContentCharge, error)
}

type SessionRepo interface {
	ActiveForPair(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.ChatSession, error)
}

type BalanceRepo interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
}

type Pricing interface {
	ContentPrice(ctx context.Context, userID uuid.UUID, contentType string) (base int64, enabled bool, err error)
	Tiers(ctx context.Context, userID uuid.UUID) ([]models.ChatTimeTier, error)
}

// Ledger is the fund-movement slice billing uses.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
}

// Decision is the outcome of an authorization check. When Free is true the
// message needs no charge. Tiers is populated only alongside
// ErrSessionRequired.
type Decision struct {
	Free             bool                  `json:"free"`
	BasePriceCents   int64                 `json:"base_price_cents"`
	Units            int64                 `json:"units"`
	TotalAmountCents int64                 `json:"total_amount_cents"`
	Tiers            []models.ChatTimeTier `json:"tiers,omitempty"`
}

type Service struct {
	db       store.Runner
	charges  ChargeRepo
	sessions SessionRepo
	balances BalanceRepo
	ledger   Ledger
	pricing  Pricing
	clock    clock.Clock
}

func NewService(db store.Runner, charges ChargeRepo, sessions SessionRepo, balances BalanceRepo, led Ledger, pricing Pricing, clk clock.Clock) *Service {
	return &Service{db: db, charges: charges, sessions: sessions, balances: balances, ledger: led, pricing: pricing, clock: clk}
}

// price resolves the base price and unit count for a message. Free content
// (text, unconfigured or disabled types) comes back as a zero-total free
// decision with no session requirement.
func (s *Service) price(ctx context.Context, recipientID uuid.UUID, contentType string, durationSeconds int64) (Decision, error) {
	base, enabled, err := s.pricing.ContentPrice(ctx, recipientID, contentType)
	if err != nil {
		return Decision{}, err
	}
	if !enabled || base <= 0 {
		return Decision{Free: true}, nil
	}
	units := int64(1)
	if contentType == models.ContentAudio || contentType == models.ContentVideo {
		if durationSeconds <= 0 {
			return Decision{}, ErrDurationRequired
		}
		units = durationSeconds
	}
	return Decision{BasePriceCents: base, Units: units, TotalAmountCents: base * units}, nil
}

// Authorize reports what sending the message would cost, without charging.
// Requires a live session between sender and recipient and sufficient sender
// balance for billable content.
func (s *Service) Authorize(ctx context.Context, senderID, recipientID uuid.UUID, contentType string, durationSeconds int64) (Decision, error) {
	dec, err := s.price(ctx, recipientID, contentType, durationSeconds)
	if err != nil || dec.Free {
		return dec, err
	}
	if err := s.requireLiveSession(ctx, senderID, recipientID, &dec); err != nil {
		return dec, err
	}
	bal, err := s.balances.Get(ctx, senderID)
	if err != nil {
		return Decision{}, err
	}
	if bal.AvailableCents < dec.TotalAmountCents {
		return dec, ledger.ErrInsufficientFunds
	}
	return dec, nil
}

// Charge bills the message. Retries with the same messageId return the
// original charge without moving funds again.
func (s *Service) Charge(ctx context.Context, messageID, senderID, recipientID uuid.UUID, contentType string, durationSeconds int64) (*models.ContentCharge, error) {
	dec, err := s.price(ctx, recipientID, contentType, durationSeconds)
	if err != nil {
		return nil, err
	}
	if dec.Free {
		return nil, nil
	}

	charge := &models.ContentCharge{
		ID:               uuid.New(),
		MessageID:        messageID,
		SenderID:         senderID,
		RecipientID:      recipientID,
		ContentType:      contentType,
		BasePriceCents:   dec.BasePriceCents,
		Units:            dec.Units,
		TotalAmountCents: dec.TotalAmountCents,
		IsPaid:           true,
	}
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		created, err := s.charges.InsertUnique(ctx, tx, charge)
		if err != nil {
			return err
		}
		if !created {
			existing, err := s.charges.GetByMessageID(ctx, tx, messageID)
			if err != nil {
				return err
			}
			charge = existing
			return nil
		}
		// Session state is checked only for new charges, so redelivery of
		// an already-billed message succeeds even after the session ends.
		if err := s.requireLiveSession(ctx, senderID, recipientID, &dec); err != nil {
			return err
		}
		if err := s.ledger.Debit(ctx, tx, senderID, charge.TotalAmountCents, "content_charge", &charge.ID); err != nil {
			return err
		}
		return s.ledger.Credit(ctx, tx, recipientID, charge.TotalAmountCents, "content_earning", &charge.ID)
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

func (s *Service) requireLiveSession(ctx context.Context, senderID, recipientID uuid.UUID, dec *Decision) error {
	sess, err := s.sessions.ActiveForPair(ctx, senderID, recipientID)
	if err != nil {
		return err
	}
	if sess == nil || sess.RemainingSeconds(s.clock.Now()) <= 0 {
		tiers, terr := s.pricing.Tiers(ctx, recipientID)
		if terr == nil {
			dec.Tiers = tiers
		}
		return ErrSessionRequired
	}
	return nil
}
