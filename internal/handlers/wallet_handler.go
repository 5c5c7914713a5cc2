package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/middleware"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/payments"
)

// BalanceReader is the balance slice the wallet handler needs.
type BalanceReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
}

// EntryLister pages the user's ledger history.
type EntryLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
}

// DepositConfirmer is the payments slice the webhook needs.
type DepositConfirmer interface {
	Confirm(ctx context.Context, userID uuid.UUID, amountCents int64, currency, providerRef string) (bool, error)
}

// WalletHandler serves balance, ledger history and the payment gateway
// webhook.
type WalletHandler struct {
	Balances BalanceReader
	Entries  EntryLister
	Payments DepositConfirmer
	Logger   *slog.Logger
}

// GetBalance handles GET /v1/wallet.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bal, err := h.Balances.Get(r.Context(), userID)
	if err != nil {
		h.Logger.Error("get balance", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// ListEntries handles GET /v1/wallet/entries?limit=N.
func (h *WalletHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.Entries.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.Logger.Error("list ledger entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type depositWebhookRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	ProviderRef string `json:"provider_ref"`
}

// DepositWebhook handles POST /v1/payments/webhook — the gateway callback.
// Delivered at least once; the payments service de-duplicates on provider_ref.
func (h *WalletHandler) DepositWebhook(w http.ResponseWriter, r *http.Request) {
	var req depositWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if req.ProviderRef == "" {
		writeError(w, http.StatusBadRequest, "provider_ref is required")
		return
	}
	credited, err := h.Payments.Confirm(r.Context(), userID, req.AmountCents, req.Currency, req.ProviderRef)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, "amount_cents must be positive")
			return
		}
		h.Logger.Error("confirm deposit", "provider_ref", req.ProviderRef, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"credited": credited})
}
