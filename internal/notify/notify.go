// Package notify defines the closed set of notification events the core
// emits and the publisher they go through. Each event kind is its own struct
// carrying exactly the fields that kind needs; there is no untyped metadata
// blob.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Event is one notification. Subject doubles as the bus routing key.
type Event interface {
	Subject() string
}

// Publisher delivers events. Publishing happens after the money transaction
// commits; a delivery failure is logged by the caller, never propagated into
// the ledger.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type RequestCreated struct {
	RequestID       uuid.UUID `json:"request_id"`
	RequesterID     uuid.UUID `json:"requester_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	ServiceType     string    `json:"service_type"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Message         string    `json:"message,omitempty"`
}

func (RequestCreated) Subject() string { return "notify.request.created" }

type RequestAccepted struct {
	RequestID   uuid.UUID `json:"request_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	SessionID   uuid.UUID `json:"session_id"`
	PriceCents  int64     `json:"price_cents"`
}

func (RequestAccepted) Subject() string { return "notify.request.accepted" }

type RequestRejected struct {
	RequestID   uuid.UUID `json:"request_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	Reason      string    `json:"reason,omitempty"`
}

func (RequestRejected) Subject() string { return "notify.request.rejected" }

type RequestCancelled struct {
	RequestID   uuid.UUID `json:"request_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ProviderID  uuid.UUID `json:"provider_id"`
}

func (RequestCancelled) Subject() string { return "notify.request.cancelled" }

type RequestExpired struct {
	RequestID   uuid.UUID `json:"request_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ProviderID  uuid.UUID `json:"provider_id"`
}

func (RequestExpired) Subject() string { return "notify.request.expired" }

type SessionPurchased struct {
	SessionID       uuid.UUID `json:"session_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
}

func (SessionPurchased) Subject() string { return "notify.session.purchased" }

type SessionCancelled struct {
	SessionID   uuid.UUID `json:"session_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	RefundCents int64     `json:"refund_cents"`
}

func (SessionCancelled) Subject() string { return "notify.session.cancelled" }

type DepositConfirmed struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
}

func (DepositConfirmed) Subject() string { return "notify.deposit.confirmed" }

// LogPublisher writes events to the log. Used when no bus is configured and
// in tests.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Logger.Info("notification", "subject", ev.Subject(), "event", ev)
	return nil
}
