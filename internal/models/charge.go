package models

import (
	"time"

	"github.com/google/uuid"
)

// Metered content types. Text is always free.
const (
	ContentText  = "TEXT"
	ContentImage = "IMAGE"
	ContentAudio = "AUDIO"
	ContentVideo = "VIDEO"
)

// ContentCharge is one billed message. MessageID is the caller-owned
// idempotency key: the unique constraint on it guarantees a retried charge
// moves funds at most once. Created once, never mutated.
type ContentCharge struct {
	ID               uuid.UUID `json:"id"`
	MessageID        uuid.UUID `json:"message_id"`
	SenderID         uuid.UUID `json:"sender_id"`
	RecipientID      uuid.UUID `json:"recipient_id"`
	ContentType      string    `json:"content_type"`
	BasePriceCents   int64     `json:"base_price_cents"`
	Units            int64     `json:"units"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	IsPaid           bool      `json:"is_paid"`
	CreatedAt        time.Time `json:"created_at"`
}
