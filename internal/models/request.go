package models

import (
	"time"

	"github.com/google/uuid"
)

// Service types a provider can be asked for. Chat requests are priced by the
// provider's published chat-time tiers; calls carry a flat per-session price.
const (
	ServiceChat      = "CHAT"
	ServiceVoiceCall = "VOICE_CALL"
	ServiceVideoCall = "VIDEO_CALL"
)

// Service request statuses. Exactly one transition leaves PENDING; COMPLETED
// follows ACCEPTED once the spawned session has ended.
const (
	RequestPending   = "PENDING"
	RequestAccepted  = "ACCEPTED"
	RequestRejected  = "REJECTED"
	RequestExpired   = "EXPIRED"
	RequestCancelled = "CANCELLED"
	RequestCompleted = "COMPLETED"
)

// ServiceRequest is an asynchronous accept/reject service order. The price is
// locked from the requester's balance at creation and sits in a
// PendingBalanceHold until the request resolves.
type ServiceRequest struct {
	ID              uuid.UUID  `json:"id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	ServiceType     string     `json:"service_type"`
	DurationMinutes int        `json:"duration_minutes"`
	PriceCents      int64      `json:"price_cents"`
	Status          string     `json:"status"`
	Message         string     `json:"message,omitempty"`
	ResponseReason  *string    `json:"response_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
}

// IsTerminal reports whether no further status transition is allowed,
// COMPLETED aside.
func (r *ServiceRequest) IsTerminal() bool {
	return r.Status != RequestPending
}

// ServiceSession is the paid session spawned when a request is accepted.
// Immutable once created: funds already moved via the hold release.
type ServiceSession struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsPaid    bool      `json:"is_paid"`
	CreatedAt time.Time `json:"created_at"`
}
