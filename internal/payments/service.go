// Package payments turns confirmed gateway deposits into balance credits.
// The gateway delivers webhooks at least once, so confirmation is
// de-duplicated twice: a Redis fast path keyed by the provider reference, and
// the unique deposit row as the durable guard.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/notify"
	"github.com/chatpesa/backend/internal/store"
)

// ErrInvalidAmount is returned for webhook deliveries with a non-positive
// amount.
var ErrInvalidAmount = errors.New("deposit amount must be positive")

// seenTTL bounds the Redis fast path; the deposits table stays authoritative
// forever.
const seenTTL = 48 * time.Hour

type DepositRepo interface {
	InsertUnique(ctx context.Context, tx pgx.Tx, d *models.Deposit) (bool, error)
}

type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, relatedID *uuid.UUID) error
}

type Service struct {
	db       store.Runner
	deposits DepositRepo
	ledger   Ledger
	rdb      *redis.Client // nil disables the fast path
	notifier notify.Publisher
	logger   *slog.Logger
}

func NewService(db store.Runner, deposits DepositRepo, ledger Ledger, rdb *redis.Client, notifier notify.Publisher, logger *slog.Logger) *Service {
	return &Service{db: db, deposits: deposits, ledger: ledger, rdb: rdb, notifier: notifier, logger: logger}
}

func seenKey(providerRef string) string {
	return fmt.Sprintf("deposit:seen:%s", providerRef)
}

// Confirm credits a confirmed deposit to the user's available balance.
// Redeliveries with a providerRef already recorded return the deposit as
// credited=false and move no funds.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, amountCents int64, currency, providerRef string) (credited bool, err error) {
	if amountCents <= 0 {
		return false, ErrInvalidAmount
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}

	if s.rdb != nil {
		seen, err := s.rdb.Exists(ctx, seenKey(providerRef)).Result()
		if err != nil {
			// Redis being down only costs the fast path.
			s.logger.Warn("deposit dedup cache unavailable", "error", err)
		} else if seen > 0 {
			return false, nil
		}
	}

	dep := &models.Deposit{
		ID:          uuid.New(),
		UserID:      userID,
		AmountCents: amountCents,
		Currency:    currency,
		ProviderRef: providerRef,
	}
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		created, err := s.deposits.InsertUnique(ctx, tx, dep)
		if err != nil {
			return err
		}
		credited = created
		if !created {
			return nil
		}
		return s.ledger.Credit(ctx, tx, userID, amountCents, "deposit", &dep.ID)
	})
	if err != nil {
		return false, err
	}

	// Mark only after commit so a failed transaction stays retryable.
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, seenKey(providerRef), 1, seenTTL).Err(); err != nil {
			s.logger.Warn("deposit dedup cache write failed", "error", err)
		}
	}
	if credited {
		s.publish(ctx, notify.DepositConfirmed{UserID: userID, AmountCents: amountCents, Currency: currency})
	}
	return credited, nil
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Error("publish notification", "subject", ev.Subject(), "error", err)
	}
}
