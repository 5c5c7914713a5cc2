package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/middleware"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/pricing"
	"github.com/chatpesa/backend/internal/session"
)

// SessionService is the session-engine slice the handler needs.
type SessionService interface {
	Purchase(ctx context.Context, buyerID, sellerID uuid.UUID, durationMinutes int) (*models.ChatSession, error)
	Activate(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, error)
	Pause(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, error)
	Cancel(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, int64, error)
	TouchActivity(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	Remaining(sess *models.ChatSession) int64
	Get(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)
}

// SessionHandler serves the chat-time session endpoints.
type SessionHandler struct {
	Sessions SessionService
	Logger   *slog.Logger
}

type purchaseSessionRequest struct {
	SellerID        string `json:"seller_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

type sessionResponse struct {
	*models.ChatSession
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func (h *SessionHandler) respond(w http.ResponseWriter, status int, sess *models.ChatSession) {
	writeJSON(w, status, sessionResponse{ChatSession: sess, RemainingSeconds: h.Sessions.Remaining(sess)})
}

// Purchase handles POST /v1/sessions.
func (h *SessionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	buyerID := middleware.UserFromCtx(r.Context())
	if buyerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req purchaseSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seller_id")
		return
	}
	if sellerID == buyerID {
		writeError(w, http.StatusBadRequest, "cannot buy chat time from yourself")
		return
	}
	if req.DurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be > 0")
		return
	}
	sess, err := h.Sessions.Purchase(r.Context(), buyerID, sellerID, req.DurationMinutes)
	if err != nil {
		h.sessionError(w, err, "purchase session")
		return
	}
	h.respond(w, http.StatusCreated, sess)
}

// Activate handles POST /v1/sessions/{id}/activate.
func (h *SessionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Sessions.Activate)
}

// Pause handles POST /v1/sessions/{id}/pause.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Sessions.Pause)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, callerID uuid.UUID) (*models.ChatSession, error)) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := op(r.Context(), id, callerID)
	if err != nil {
		h.sessionError(w, err, "session transition")
		return
	}
	h.respond(w, http.StatusOK, sess)
}

type cancelSessionResponse struct {
	Session     *models.ChatSession `json:"session"`
	RefundCents int64               `json:"refund_cents"`
}

// Cancel handles POST /v1/sessions/{id}/cancel.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, refund, err := h.Sessions.Cancel(r.Context(), id, callerID)
	if err != nil {
		h.sessionError(w, err, "cancel session")
		return
	}
	writeJSON(w, http.StatusOK, cancelSessionResponse{Session: sess, RefundCents: refund})
}

// Touch handles POST /v1/sessions/{id}/touch — the per-message activity ping.
func (h *SessionHandler) Touch(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.Sessions.Get(r.Context(), id)
	if err != nil {
		h.sessionError(w, err, "get session")
		return
	}
	if !sess.IsParticipant(callerID) {
		writeError(w, http.StatusForbidden, "not a session participant")
		return
	}
	sess, err = h.Sessions.TouchActivity(r.Context(), id)
	if err != nil {
		h.sessionError(w, err, "touch session")
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// Get handles GET /v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.Sessions.Get(r.Context(), id)
	if err != nil {
		h.sessionError(w, err, "get session")
		return
	}
	if !sess.IsParticipant(callerID) {
		writeError(w, http.StatusForbidden, "not a session participant")
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// List handles GET /v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessions, err := h.Sessions.ListByUser(r.Context(), callerID)
	if err != nil {
		h.Logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusGone, "session expired")
	case errors.Is(err, session.ErrSessionConflict):
		writeError(w, http.StatusConflict, "active session already exists")
	case errors.Is(err, session.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a session participant")
	case errors.Is(err, pricing.ErrPricingNotConfigured):
		writeError(w, http.StatusUnprocessableEntity, "seller has not published this tier")
	case isInsufficientFunds(err):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	default:
		h.Logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
