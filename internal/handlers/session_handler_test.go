package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/middleware"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/session"
)

type mockSessionService struct {
	sess       *models.ChatSession
	refund     int64
	err        error
	lastBuyer  uuid.UUID
	lastSeller uuid.UUID
}

func (m *mockSessionService) Purchase(_ context.Context, buyerID, sellerID uuid.UUID, durationMinutes int) (*models.ChatSession, error) {
	m.lastBuyer, m.lastSeller = buyerID, sellerID
	return m.sess, m.err
}

func (m *mockSessionService) Activate(_ context.Context, _, _ uuid.UUID) (*models.ChatSession, error) {
	return m.sess, m.err
}

func (m *mockSessionService) Pause(_ context.Context, _, _ uuid.UUID) (*models.ChatSession, error) {
	return m.sess, m.err
}

func (m *mockSessionService) Cancel(_ context.Context, _, _ uuid.UUID) (*models.ChatSession, int64, error) {
	return m.sess, m.refund, m.err
}

func (m *mockSessionService) TouchActivity(_ context.Context, _ uuid.UUID) (*models.ChatSession, error) {
	return m.sess, m.err
}

func (m *mockSessionService) Remaining(_ *models.ChatSession) int64 { return 600 }

func (m *mockSessionService) Get(_ context.Context, _ uuid.UUID) (*models.ChatSession, error) {
	if m.sess == nil {
		return nil, session.ErrSessionNotFound
	}
	return m.sess, m.err
}

func (m *mockSessionService) ListByUser(_ context.Context, _ uuid.UUID) ([]*models.ChatSession, error) {
	return []*models.ChatSession{m.sess}, nil
}

func testSession(buyerID, sellerID uuid.UUID) *models.ChatSession {
	now := time.Now().UTC()
	return &models.ChatSession{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		SellerID:        sellerID,
		DurationMinutes: 10,
		PriceCents:      100,
		IsPaused:        true,
		IsActive:        true,
		StartTime:       now,
		EndTime:         now,
		LastActiveAt:    now,
	}
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r.WithContext(middleware.WithUser(r.Context(), userID))
}

func newSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{Sessions: svc, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestPurchaseSession(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()
	svc := &mockSessionService{sess: testSession(buyer, seller)}
	h := newSessionHandler(svc)

	body := `{"seller_id":"` + seller.String() + `","duration_minutes":10}`
	rec := httptest.NewRecorder()
	h.Purchase(rec, authedRequest(http.MethodPost, "/v1/sessions", body, buyer))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if svc.lastBuyer != buyer || svc.lastSeller != seller {
		t.Error("service called with wrong parties")
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RemainingSeconds != 600 {
		t.Errorf("remaining_seconds = %d, want 600", resp.RemainingSeconds)
	}
}

func TestPurchaseSessionRejectsSelf(t *testing.T) {
	buyer := uuid.New()
	h := newSessionHandler(&mockSessionService{})

	body := `{"seller_id":"` + buyer.String() + `","duration_minutes":10}`
	rec := httptest.NewRecorder()
	h.Purchase(rec, authedRequest(http.MethodPost, "/v1/sessions", body, buyer))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPurchaseSessionUnauthenticated(t *testing.T) {
	h := newSessionHandler(&mockSessionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{}`))
	h.Purchase(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCancelSessionReturnsRefund(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()
	sess := testSession(buyer, seller)
	h := newSessionHandler(&mockSessionService{sess: sess, refund: 50})

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/v1/sessions/"+sess.ID.String()+"/cancel", "", buyer)
	req.SetPathValue("id", sess.ID.String())
	h.Cancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp cancelSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RefundCents != 50 {
		t.Errorf("refund_cents = %d, want 50", resp.RefundCents)
	}
}

func TestSessionErrorMapping(t *testing.T) {
	buyer := uuid.New()
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{session.ErrSessionExpired, http.StatusGone},
		{session.ErrSessionConflict, http.StatusConflict},
		{session.ErrNotParticipant, http.StatusForbidden},
	}
	for _, tc := range cases {
		h := newSessionHandler(&mockSessionService{sess: testSession(buyer, uuid.New()), err: tc.err})
		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/v1/sessions/"+uuid.NewString()+"/activate", "", buyer)
		req.SetPathValue("id", uuid.NewString())
		h.Activate(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestTouchRejectsNonParticipant(t *testing.T) {
	buyer, seller, stranger := uuid.New(), uuid.New(), uuid.New()
	sess := testSession(buyer, seller)
	h := newSessionHandler(&mockSessionService{sess: sess})

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/v1/sessions/"+sess.ID.String()+"/touch", "", stranger)
	req.SetPathValue("id", sess.ID.String())
	h.Touch(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
