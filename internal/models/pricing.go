package models

import (
	"time"

	"github.com/google/uuid"
)

// MonetizationSettings is a recipient's published pricing. Per-type enable
// flags gate content billing; call prices are flat per session; chat time is
// sold through discrete tiers.
type MonetizationSettings struct {
	ID                       uuid.UUID `json:"id"`
	UserID                   uuid.UUID `json:"user_id"`
	ChatEnabled              bool      `json:"chat_enabled"`
	ImageEnabled             bool      `json:"image_enabled"`
	AudioEnabled             bool      `json:"audio_enabled"`
	VideoEnabled             bool      `json:"video_enabled"`
	ImagePriceCents          int64     `json:"image_price_cents"`
	AudioPricePerSecondCents int64     `json:"audio_price_per_second_cents"`
	VideoPricePerSecondCents int64     `json:"video_price_per_second_cents"`
	VoiceCallPriceCents      int64     `json:"voice_call_price_cents"`
	VideoCallPriceCents      int64     `json:"video_call_price_cents"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// ChatTimeTier is one purchasable (duration, price) pair. Unique per
// (settings, duration).
type ChatTimeTier struct {
	ID              uuid.UUID `json:"id"`
	SettingsID      uuid.UUID `json:"settings_id"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
}
