// Package ledger is the single writer of user balances. Every money
// mutation goes through one of its five operations, each of which appends an
// immutable ledger entry inside the caller's transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/models"
)

// ErrInsufficientFunds is returned when available balance is too low for a
// debit or a lock.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrHoldNotLocked is returned when a hold has already been resolved; the
// transition out of LOCKED happens exactly once.
var ErrHoldNotLocked = errors.New("hold is not locked")

// BalanceRepo is the minimal balance access the ledger needs. GetForUpdate
// must create a zero row when absent and lock it.
type BalanceRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Balance, error)
	Apply(ctx context.Context, tx pgx.Tx, userID uuid.UUID, availDelta, pendingDelta, earnedDelta, spentDelta int64) (newAvailable int64, err error)
}

type HoldRepo interface {
	Create(ctx context.Context, tx pgx.Tx, h *models.PendingBalanceHold) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PendingBalanceHold, error)
	GetBySourceForUpdate(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) (*models.PendingBalanceHold, error)
	Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, to string) (bool, error)
}

type EntryRepo interface {
	Insert(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// Service is the BalanceLedger. All operations run inside the caller's
// transaction so a failing caller leaves no partial writes.
type Service interface {
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
	Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, sourceType string, sourceID uuid.UUID, reason string) (*models.PendingBalanceHold, error)
	Release(ctx context.Context, tx pgx.Tx, holdID, toUserID uuid.UUID, reason string) error
	Refund(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, expired bool, reason string) error
	HoldBySource(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) (*models.PendingBalanceHold, error)
}

type service struct {
	balances BalanceRepo
	holds    HoldRepo
	entries  EntryRepo
}

func NewService(balances BalanceRepo, holds HoldRepo, entries EntryRepo) Service {
	return &service{balances: balances, holds: holds, entries: entries}
}

var _ Service = (*service)(nil)

func (s *service) appendEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, kind string, amount, prev, next int64, reason string, relatedID *uuid.UUID) error {
	return s.entries.Insert(ctx, tx, &models.LedgerEntry{
		ID:                   uuid.New(),
		UserID:               userID,
		Kind:                 kind,
		AmountCents:          amount,
		PreviousBalanceCents: prev,
		NewBalanceCents:      next,
		Reason:               reason,
		RelatedEntityID:      relatedID,
	})
}

// Debit takes amount from the user's available balance and counts it as
// spent.
func (s *service) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	bal, err := s.balances.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if bal.AvailableCents < amount {
		return ErrInsufficientFunds
	}
	newAvail, err := s.balances.Apply(ctx, tx, userID, -amount, 0, 0, amount)
	if err != nil {
		return err
	}
	return s.appendEntry(ctx, tx, userID, models.EntrySpend, amount, bal.AvailableCents, newAvail, reason, relatedID)
}

// Credit adds amount to the user's available balance and counts it as
// earned, creating the balance row if absent.
func (s *service) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	bal, err := s.balances.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	newAvail, err := s.balances.Apply(ctx, tx, userID, amount, 0, amount, 0)
	if err != nil {
		return err
	}
	return s.appendEntry(ctx, tx, userID, models.EntryEarn, amount, bal.AvailableCents, newAvail, reason, relatedID)
}

// Lock moves amount from available to pending and records a LOCKED hold
// pointing at the source aggregate.
func (s *service) Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, sourceType string, sourceID uuid.UUID, reason string) (*models.PendingBalanceHold, error) {
	if amount < 0 {
		return nil, fmt.Errorf("lock amount must be non-negative, got %d", amount)
	}
	bal, err := s.balances.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if bal.AvailableCents < amount {
		return nil, ErrInsufficientFunds
	}
	newAvail, err := s.balances.Apply(ctx, tx, userID, -amount, amount, 0, 0)
	if err != nil {
		return nil, err
	}
	hold := &models.PendingBalanceHold{
		ID:          uuid.New(),
		UserID:      userID,
		AmountCents: amount,
		Status:      models.HoldLocked,
		SourceType:  sourceType,
		SourceID:    sourceID,
	}
	if err := s.holds.Create(ctx, tx, hold); err != nil {
		return nil, err
	}
	if err := s.appendEntry(ctx, tx, userID, models.EntryLock, amount, bal.AvailableCents, newAvail, reason, &sourceID); err != nil {
		return nil, err
	}
	return hold, nil
}

// Release resolves a LOCKED hold in the counterparty's favor: the locker's
// pending shrinks, the counterparty's available and earned grow. The hold's
// pending pool is the audit trail for the locker's side; the RELEASE entry
// is written for the receiving user.
func (s *service) Release(ctx context.Context, tx pgx.Tx, holdID, toUserID uuid.UUID, reason string) error {
	hold, err := s.holds.GetForUpdate(ctx, tx, holdID)
	if err != nil {
		return err
	}
	if hold.Status != models.HoldLocked {
		return ErrHoldNotLocked
	}
	ok, err := s.holds.Transition(ctx, tx, holdID, models.HoldReleased)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHoldNotLocked
	}
	if _, err := s.balances.Apply(ctx, tx, hold.UserID, 0, -hold.AmountCents, 0, hold.AmountCents); err != nil {
		return err
	}
	recipient, err := s.balances.GetForUpdate(ctx, tx, toUserID)
	if err != nil {
		return err
	}
	newAvail, err := s.balances.Apply(ctx, tx, toUserID, hold.AmountCents, 0, hold.AmountCents, 0)
	if err != nil {
		return err
	}
	return s.appendEntry(ctx, tx, toUserID, models.EntryRelease, hold.AmountCents, recipient.AvailableCents, newAvail, reason, &hold.SourceID)
}

// Refund resolves a LOCKED hold back to its owner: pending returns to
// available, no counterparty involved. expired marks sweeper-driven refunds.
func (s *service) Refund(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, expired bool, reason string) error {
	hold, err := s.holds.GetForUpdate(ctx, tx, holdID)
	if err != nil {
		return err
	}
	if hold.Status != models.HoldLocked {
		return ErrHoldNotLocked
	}
	to := models.HoldRefunded
	if expired {
		to = models.HoldExpired
	}
	ok, err := s.holds.Transition(ctx, tx, holdID, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHoldNotLocked
	}
	owner, err := s.balances.GetForUpdate(ctx, tx, hold.UserID)
	if err != nil {
		return err
	}
	newAvail, err := s.balances.Apply(ctx, tx, hold.UserID, hold.AmountCents, -hold.AmountCents, 0, 0)
	if err != nil {
		return err
	}
	return s.appendEntry(ctx, tx, hold.UserID, models.EntryRefund, hold.AmountCents, owner.AvailableCents, newAvail, reason, &hold.SourceID)
}

func (s *service) HoldBySource(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) (*models.PendingBalanceHold, error) {
	return s.holds.GetBySourceForUpdate(ctx, tx, sourceType, sourceID)
}
