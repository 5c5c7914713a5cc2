package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/billing"
	"github.com/chatpesa/backend/internal/middleware"
	"github.com/chatpesa/backend/internal/models"
)

// BillingService is the content-billing slice the handler needs.
type BillingService interface {
	Authorize(ctx context.Context, senderID, recipientID uuid.UUID, contentType string, durationSeconds int64) (billing.Decision, error)
	Charge(ctx context.Context, messageID, senderID, recipientID uuid.UUID, contentType string, durationSeconds int64) (*models.ContentCharge, error)
}

// BillingHandler serves the paid-content endpoints the chat backend calls
// around message delivery.
type BillingHandler struct {
	Billing BillingService
	Logger  *slog.Logger
}

type authorizeRequest struct {
	RecipientID     string `json:"recipient_id"`
	ContentType     string `json:"content_type"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type chargeRequest struct {
	MessageID       string `json:"message_id"`
	RecipientID     string `json:"recipient_id"`
	ContentType     string `json:"content_type"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func validContentType(ct string) bool {
	switch ct {
	case models.ContentText, models.ContentImage, models.ContentAudio, models.ContentVideo:
		return true
	}
	return false
}

// Authorize handles POST /v1/messages/authorize — a dry run before sending.
func (h *BillingHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.UserFromCtx(r.Context())
	if senderID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient_id")
		return
	}
	if !validContentType(req.ContentType) {
		writeError(w, http.StatusBadRequest, "unknown content_type")
		return
	}
	dec, err := h.Billing.Authorize(r.Context(), senderID, recipientID, req.ContentType, req.DurationSeconds)
	if err != nil {
		if errors.Is(err, billing.ErrSessionRequired) {
			// 402 with the purchasable tiers so the client can offer them.
			writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
				"error": "active chat session required",
				"tiers": dec.Tiers,
			})
			return
		}
		h.billingError(w, err, "authorize message")
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// Charge handles POST /v1/messages/charge — called once the message is
// delivered. Idempotent on message_id.
func (h *BillingHandler) Charge(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.UserFromCtx(r.Context())
	if senderID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message_id")
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient_id")
		return
	}
	if !validContentType(req.ContentType) {
		writeError(w, http.StatusBadRequest, "unknown content_type")
		return
	}
	charge, err := h.Billing.Charge(r.Context(), messageID, senderID, recipientID, req.ContentType, req.DurationSeconds)
	if err != nil {
		h.billingError(w, err, "charge message")
		return
	}
	if charge == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"free": true})
		return
	}
	writeJSON(w, http.StatusOK, charge)
}

func (h *BillingHandler) billingError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, billing.ErrSessionRequired):
		writeError(w, http.StatusPaymentRequired, "active chat session required")
	case errors.Is(err, billing.ErrDurationRequired):
		writeError(w, http.StatusBadRequest, "duration_seconds is required for this content type")
	case isInsufficientFunds(err):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	default:
		h.Logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
