package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is a purchased block of chat time between a buyer and a seller.
// The price was transferred at purchase, so cancellation refunds pro rata
// rather than releasing a hold. Used time accrues in whole seconds; the
// purchased quota is expressed in minutes.
//
// A session starts paused with EndTime == StartTime. While running, EndTime
// is the wall-clock deadline; it is advisory until the next touch or sweep
// notices it has passed.
type ChatSession struct {
	ID              uuid.UUID  `json:"id"`
	BuyerID         uuid.UUID  `json:"buyer_id"`
	SellerID        uuid.UUID  `json:"seller_id"`
	DurationMinutes int        `json:"duration_minutes"`
	PriceCents      int64      `json:"price_cents"`
	UsedSeconds     int64      `json:"used_seconds"`
	IsPaused        bool       `json:"is_paused"`
	IsActive        bool       `json:"is_active"`
	IsCancelled     bool       `json:"is_cancelled"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	PausedAt        *time.Time `json:"paused_at,omitempty"`
	ResumedAt       *time.Time `json:"resumed_at,omitempty"`
	LastActiveAt    time.Time  `json:"last_active_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// QuotaSeconds is the purchased quota in seconds.
func (s *ChatSession) QuotaSeconds() int64 {
	return int64(s.DurationMinutes) * 60
}

// Exhausted reports whether the quota is fully consumed.
func (s *ChatSession) Exhausted() bool {
	return s.UsedSeconds >= s.QuotaSeconds()
}

// Running reports whether the session clock is currently ticking.
func (s *ChatSession) Running() bool {
	return s.IsActive && !s.IsCancelled && !s.IsPaused
}

// IsParticipant reports whether userID is the buyer or the seller.
func (s *ChatSession) IsParticipant(userID uuid.UUID) bool {
	return userID == s.BuyerID || userID == s.SellerID
}

// RemainingSeconds is the single remaining-time formula, used for display,
// content-billing preconditions and expiry checks alike. While running, time
// since the last activity counts against the quota.
func (s *ChatSession) RemainingSeconds(now time.Time) int64 {
	rem := s.QuotaSeconds() - s.UsedSeconds
	if s.Running() {
		rem -= int64(now.Sub(s.LastActiveAt) / time.Second)
	}
	if rem < 0 {
		rem = 0
	}
	return rem
}
