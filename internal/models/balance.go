package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency tags balances created implicitly by a credit.
const DefaultCurrency = "KES"

// Balance is the per-user money record. All amounts are integer minor units
// (cents). available and pending never go below zero at a committed state;
// only the ledger service mutates this row.
type Balance struct {
	UserID           uuid.UUID `json:"user_id"`
	AvailableCents   int64     `json:"available_cents"`
	PendingCents     int64     `json:"pending_cents"`
	TotalEarnedCents int64     `json:"total_earned_cents"`
	TotalSpentCents  int64     `json:"total_spent_cents"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Ledger entry kinds.
const (
	EntryLock    = "LOCK"
	EntryRelease = "RELEASE"
	EntryRefund  = "REFUND"
	EntryEarn    = "EARN"
	EntrySpend   = "SPEND"
)

// LedgerEntry is the append-only audit record of one balance mutation.
// PreviousBalanceCents and NewBalanceCents snapshot the owner's available
// balance around the mutation. Never updated or deleted.
type LedgerEntry struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"user_id"`
	Kind                 string     `json:"kind"`
	AmountCents          int64      `json:"amount_cents"`
	PreviousBalanceCents int64      `json:"previous_balance_cents"`
	NewBalanceCents      int64      `json:"new_balance_cents"`
	Reason               string     `json:"reason"`
	RelatedEntityID      *uuid.UUID `json:"related_entity_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Hold statuses. The transition out of HoldLocked is single-shot.
const (
	HoldLocked   = "LOCKED"
	HoldReleased = "RELEASED"
	HoldExpired  = "EXPIRED"
	HoldRefunded = "REFUNDED"
)

// PendingBalanceHold makes an escrow lock independently auditable and
// reversible exactly once. SourceID points at the originating aggregate
// (a service request).
type PendingBalanceHold struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	SourceType  string     `json:"source_type"`
	SourceID    uuid.UUID  `json:"source_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Deposit records one confirmed external top-up. ProviderRef is the
// gateway-owned de-duplication key, unique per deposit.
type Deposit struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	ProviderRef string    `json:"provider_ref"`
	CreatedAt   time.Time `json:"created_at"`
}
