package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/escrow"
	"github.com/chatpesa/backend/internal/middleware"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/pricing"
)

// RequestService is the request-engine slice the handler needs.
type RequestService interface {
	CreateRequest(ctx context.Context, requesterID, providerID uuid.UUID, serviceType string, durationMinutes int, message string) (*models.ServiceRequest, error)
	Respond(ctx context.Context, providerID, requestID uuid.UUID, accept bool, reason string) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, requesterID, requestID uuid.UUID) (*models.ServiceRequest, error)
	Complete(ctx context.Context, requestID uuid.UUID) (*models.ServiceRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error)
}

// RequestHandler serves the service-request endpoints.
type RequestHandler struct {
	Requests RequestService
	Logger   *slog.Logger
}

type createRequestRequest struct {
	ProviderID      string `json:"provider_id"`
	ServiceType     string `json:"service_type"`
	DurationMinutes int    `json:"duration_minutes"`
	Message         string `json:"message"`
}

// Create handles POST /v1/requests.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.UserFromCtx(r.Context())
	if requesterID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider_id")
		return
	}
	if providerID == requesterID {
		writeError(w, http.StatusBadRequest, "cannot request a service from yourself")
		return
	}
	switch req.ServiceType {
	case models.ServiceChat, models.ServiceVoiceCall, models.ServiceVideoCall:
	default:
		writeError(w, http.StatusBadRequest, "unknown service_type")
		return
	}
	if req.DurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be > 0")
		return
	}
	out, err := h.Requests.CreateRequest(r.Context(), requesterID, providerID, req.ServiceType, req.DurationMinutes, req.Message)
	if err != nil {
		h.requestError(w, err, "create request")
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type respondRequest struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

// Respond handles POST /v1/requests/{id}/respond.
func (h *RequestHandler) Respond(w http.ResponseWriter, r *http.Request) {
	providerID := middleware.UserFromCtx(r.Context())
	if providerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	out, err := h.Requests.Respond(r.Context(), providerID, id, req.Accept, req.Reason)
	if err != nil {
		h.requestError(w, err, "respond to request")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Cancel handles POST /v1/requests/{id}/cancel.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.UserFromCtx(r.Context())
	if requesterID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	out, err := h.Requests.Cancel(r.Context(), requesterID, id)
	if err != nil {
		h.requestError(w, err, "cancel request")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Complete handles POST /v1/requests/{id}/complete.
func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	current, err := h.Requests.Get(r.Context(), id)
	if err != nil {
		h.requestError(w, err, "get request")
		return
	}
	if current.RequesterID != callerID && current.ProviderID != callerID {
		writeError(w, http.StatusForbidden, "not a request participant")
		return
	}
	out, err := h.Requests.Complete(r.Context(), id)
	if err != nil {
		h.requestError(w, err, "complete request")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /v1/requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	out, err := h.Requests.Get(r.Context(), id)
	if err != nil {
		h.requestError(w, err, "get request")
		return
	}
	if out.RequesterID != callerID && out.ProviderID != callerID {
		writeError(w, http.StatusForbidden, "not a request participant")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// List handles GET /v1/requests.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromCtx(r.Context())
	if callerID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	requests, err := h.Requests.ListByUser(r.Context(), callerID)
	if err != nil {
		h.Logger.Error("list requests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *RequestHandler) requestError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, escrow.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, escrow.ErrRequestExpired):
		writeError(w, http.StatusGone, "request has expired")
	case errors.Is(err, escrow.ErrRequestNotPending):
		writeError(w, http.StatusConflict, "request already resolved")
	case errors.Is(err, escrow.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a request participant")
	case errors.Is(err, escrow.ErrSessionStillRunning):
		writeError(w, http.StatusConflict, "service session still running")
	case errors.Is(err, pricing.ErrPricingNotConfigured):
		writeError(w, http.StatusUnprocessableEntity, "provider has not published this service")
	case isInsufficientFunds(err):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	default:
		h.Logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
