package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/middleware"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/pricing"
)

// PricingHandler serves published monetization settings and chat-time tiers.
type PricingHandler struct {
	Pricing pricing.Service
	Logger  *slog.Logger
}

type pricingResponse struct {
	Settings *models.MonetizationSettings `json:"settings"`
	Tiers    []models.ChatTimeTier        `json:"tiers"`
}

// GetPricing handles GET /v1/users/{id}/pricing — any authenticated user can
// read another user's published menu.
func (h *PricingHandler) GetPricing(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	settings, err := h.Pricing.SettingsFor(r.Context(), userID)
	if err != nil {
		h.Logger.Error("get pricing settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if settings == nil {
		writeError(w, http.StatusNotFound, "pricing not configured")
		return
	}
	tiers, err := h.Pricing.Tiers(r.Context(), userID)
	if err != nil {
		h.Logger.Error("get pricing tiers", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, pricingResponse{Settings: settings, Tiers: tiers})
}

type publishPricingRequest struct {
	ChatEnabled              bool  `json:"chat_enabled"`
	ImageEnabled             bool  `json:"image_enabled"`
	AudioEnabled             bool  `json:"audio_enabled"`
	VideoEnabled             bool  `json:"video_enabled"`
	ImagePriceCents          int64 `json:"image_price_cents"`
	AudioPricePerSecondCents int64 `json:"audio_price_per_second_cents"`
	VideoPricePerSecondCents int64 `json:"video_price_per_second_cents"`
	VoiceCallPriceCents      int64 `json:"voice_call_price_cents"`
	VideoCallPriceCents      int64 `json:"video_call_price_cents"`
	Tiers                    []struct {
		DurationMinutes int   `json:"duration_minutes"`
		PriceCents      int64 `json:"price_cents"`
	} `json:"tiers"`
}

// PublishPricing handles PUT /v1/pricing — the caller publishes their own
// settings and tier menu.
func (h *PricingHandler) PublishPricing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req publishPricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ImagePriceCents < 0 || req.AudioPricePerSecondCents < 0 || req.VideoPricePerSecondCents < 0 ||
		req.VoiceCallPriceCents < 0 || req.VideoCallPriceCents < 0 {
		writeError(w, http.StatusBadRequest, "prices must not be negative")
		return
	}
	seen := make(map[int]bool, len(req.Tiers))
	tiers := make([]models.ChatTimeTier, 0, len(req.Tiers))
	for _, t := range req.Tiers {
		if t.DurationMinutes <= 0 || t.PriceCents <= 0 {
			writeError(w, http.StatusBadRequest, "tiers need positive duration and price")
			return
		}
		if seen[t.DurationMinutes] {
			writeError(w, http.StatusBadRequest, "duplicate tier duration")
			return
		}
		seen[t.DurationMinutes] = true
		tiers = append(tiers, models.ChatTimeTier{DurationMinutes: t.DurationMinutes, PriceCents: t.PriceCents})
	}

	settings := &models.MonetizationSettings{
		UserID:                   userID,
		ChatEnabled:              req.ChatEnabled,
		ImageEnabled:             req.ImageEnabled,
		AudioEnabled:             req.AudioEnabled,
		VideoEnabled:             req.VideoEnabled,
		ImagePriceCents:          req.ImagePriceCents,
		AudioPricePerSecondCents: req.AudioPricePerSecondCents,
		VideoPricePerSecondCents: req.VideoPricePerSecondCents,
		VoiceCallPriceCents:      req.VoiceCallPriceCents,
		VideoCallPriceCents:      req.VideoCallPriceCents,
	}
	if err := h.Pricing.Publish(r.Context(), settings, tiers); err != nil {
		h.Logger.Error("publish pricing", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, pricingResponse{Settings: settings, Tiers: tiers})
}
