package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/ledger"
	"github.com/chatpesa/backend/internal/ledger/ledgertest"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/notify"
)

type memDeposits struct {
	mu   sync.Mutex
	rows map[string]*models.Deposit // keyed by provider ref
}

func newMemDeposits() *memDeposits {
	return &memDeposits{rows: make(map[string]*models.Deposit)}
}

func (m *memDeposits) InsertUnique(_ context.Context, _ pgx.Tx, d *models.Deposit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[d.ProviderRef]; ok {
		return false, nil
	}
	cp := *d
	m.rows[d.ProviderRef] = &cp
	return true, nil
}

func newService(balances *ledgertest.Balances, entries *ledgertest.Entries) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewService(balances, ledgertest.NewHolds(), entries)
	return NewService(ledgertest.Runner{}, newMemDeposits(), led, nil,
		notify.LogPublisher{Logger: logger}, logger)
}

func TestConfirmCreditsBalance(t *testing.T) {
	balances := ledgertest.NewBalances()
	entries := ledgertest.NewEntries()
	svc := newService(balances, entries)
	user := uuid.New()

	credited, err := svc.Confirm(context.Background(), user, 1000, "KES", "mpesa-ref-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !credited {
		t.Fatal("first confirmation not credited")
	}
	if bal := balances.Available(user); bal != 1000 {
		t.Errorf("available = %d, want 1000", bal)
	}
	if got := len(entries.ByKind(models.EntryEarn)); got != 1 {
		t.Errorf("EARN entries = %d, want 1", got)
	}
}

func TestConfirmRedeliveryIsIdempotent(t *testing.T) {
	balances := ledgertest.NewBalances()
	entries := ledgertest.NewEntries()
	svc := newService(balances, entries)
	user := uuid.New()

	if _, err := svc.Confirm(context.Background(), user, 1000, "KES", "mpesa-ref-1"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	credited, err := svc.Confirm(context.Background(), user, 1000, "KES", "mpesa-ref-1")
	if err != nil {
		t.Fatalf("redelivered Confirm: %v", err)
	}
	if credited {
		t.Error("redelivery credited again")
	}
	if bal := balances.Available(user); bal != 1000 {
		t.Errorf("available = %d after redelivery, want 1000", bal)
	}
}

func TestConfirmRejectsNonPositiveAmount(t *testing.T) {
	svc := newService(ledgertest.NewBalances(), ledgertest.NewEntries())

	if _, err := svc.Confirm(context.Background(), uuid.New(), 0, "KES", "ref"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount err = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Confirm(context.Background(), uuid.New(), -5, "KES", "ref"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount err = %v, want ErrInvalidAmount", err)
	}
}
