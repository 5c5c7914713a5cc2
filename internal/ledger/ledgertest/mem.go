// Package ledgertest provides in-memory implementations of the ledger's
// repository interfaces plus a pass-through transaction runner. Service tests
// across the codebase wire a real ledger.Service on top of these instead of a
// database.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/models"
)

// Runner satisfies store.Runner by calling fn with a nil transaction. The
// in-memory repositories ignore their tx arguments.
type Runner struct{}

func (Runner) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

// Balances is an in-memory ledger.BalanceRepo.
type Balances struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Balance
}

func NewBalances() *Balances {
	return &Balances{rows: make(map[uuid.UUID]*models.Balance)}
}

// Seed sets a user's available balance.
func (b *Balances) Seed(userID uuid.UUID, availableCents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[userID] = &models.Balance{UserID: userID, AvailableCents: availableCents, Currency: models.DefaultCurrency}
}

func (b *Balances) get(userID uuid.UUID) *models.Balance {
	row, ok := b.rows[userID]
	if !ok {
		row = &models.Balance{UserID: userID, Currency: models.DefaultCurrency}
		b.rows[userID] = row
	}
	return row
}

func (b *Balances) GetForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *b.get(userID)
	return &cp, nil
}

func (b *Balances) Get(_ context.Context, userID uuid.UUID) (*models.Balance, error) {
	return b.GetForUpdate(nil, nil, userID)
}

func (b *Balances) Apply(_ context.Context, _ pgx.Tx, userID uuid.UUID, availDelta, pendingDelta, earnedDelta, spentDelta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row := b.get(userID)
	if row.AvailableCents+availDelta < 0 || row.PendingCents+pendingDelta < 0 {
		return 0, fmt.Errorf("balance check violation for %s", userID)
	}
	row.AvailableCents += availDelta
	row.PendingCents += pendingDelta
	row.TotalEarnedCents += earnedDelta
	row.TotalSpentCents += spentDelta
	return row.AvailableCents, nil
}

// Available is a test convenience accessor.
func (b *Balances) Available(userID uuid.UUID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(userID).AvailableCents
}

// Pending is a test convenience accessor.
func (b *Balances) Pending(userID uuid.UUID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(userID).PendingCents
}

// Holds is an in-memory ledger.HoldRepo.
type Holds struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.PendingBalanceHold
}

func NewHolds() *Holds {
	return &Holds{rows: make(map[uuid.UUID]*models.PendingBalanceHold)}
}

func (h *Holds) Create(_ context.Context, _ pgx.Tx, hold *models.PendingBalanceHold) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *hold
	h.rows[hold.ID] = &cp
	return nil
}

func (h *Holds) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.PendingBalanceHold, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	row, ok := h.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (h *Holds) GetBySourceForUpdate(_ context.Context, _ pgx.Tx, sourceType string, sourceID uuid.UUID) (*models.PendingBalanceHold, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, row := range h.rows {
		if row.SourceType == sourceType && row.SourceID == sourceID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (h *Holds) Transition(_ context.Context, _ pgx.Tx, id uuid.UUID, to string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	row, ok := h.rows[id]
	if !ok || row.Status != models.HoldLocked {
		return false, nil
	}
	row.Status = to
	return true, nil
}

// Status is a test convenience accessor.
func (h *Holds) Status(id uuid.UUID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if row, ok := h.rows[id]; ok {
		return row.Status
	}
	return ""
}

// Entries is an in-memory ledger.EntryRepo.
type Entries struct {
	mu   sync.Mutex
	rows []*models.LedgerEntry
}

func NewEntries() *Entries {
	return &Entries{}
}

func (e *Entries) Insert(_ context.Context, _ pgx.Tx, entry *models.LedgerEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *entry
	e.rows = append(e.rows, &cp)
	return nil
}

// All returns a copy of every appended entry.
func (e *Entries) All() []*models.LedgerEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.LedgerEntry, len(e.rows))
	copy(out, e.rows)
	return out
}

// ByKind filters entries by ledger kind.
func (e *Entries) ByKind(kind string) []*models.LedgerEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*models.LedgerEntry
	for _, row := range e.rows {
		if row.Kind == kind {
			out = append(out, row)
		}
	}
	return out
}
