package escrow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatpesa/backend/internal/clock"
	"github.com/chatpesa/backend/internal/ledger"
	"github.com/chatpesa/backend/internal/ledger/ledgertest"
	"github.com/chatpesa/backend/internal/models"
	"github.com/chatpesa/backend/internal/notify"
)

type memRequests struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.ServiceRequest
}

func newMemRequests() *memRequests {
	return &memRequests{rows: make(map[uuid.UUID]*models.ServiceRequest)}
}

func (m *memRequests) Create(_ context.Context, _ pgx.Tx, q *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.rows[q.ID] = &cp
	return nil
}

func (m *memRequests) Get(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return m.GetForUpdate(nil, nil, id)
}

func (m *memRequests) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (m *memRequests) Update(_ context.Context, _ pgx.Tx, q *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.rows[q.ID] = &cp
	return nil
}

func (m *memRequests) ListStalePendingIDs(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, row := range m.rows {
		if row.Status == models.RequestPending && row.CreatedAt.Before(cutoff) {
			out = append(out, row.ID)
		}
	}
	return out, nil
}

func (m *memRequests) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ServiceRequest
	for _, row := range m.rows {
		if row.RequesterID == userID || row.ProviderID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memServiceSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.ServiceSession
}

func newMemServiceSessions() *memServiceSessions {
	return &memServiceSessions{rows: make(map[uuid.UUID]*models.ServiceSession)}
}

func (m *memServiceSessions) Create(_ context.Context, _ pgx.Tx, s *models.ServiceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.RequestID] = &cp
	return nil
}

func (m *memServiceSessions) GetByRequest(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (*models.ServiceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[requestID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

type flatPricing struct {
	price int64
}

func (p flatPricing) ServicePrice(_ context.Context, _ uuid.UUID, _ string, _ int) (int64, error) {
	return p.price, nil
}

type fixture struct {
	svc      *Service
	balances *ledgertest.Balances
	holds    *ledgertest.Holds
	entries  *ledgertest.Entries
	requests *memRequests
	sessions *memServiceSessions
	clk      *clock.Mock
}

func newFixture(price int64) *fixture {
	balances := ledgertest.NewBalances()
	holds := ledgertest.NewHolds()
	entries := ledgertest.NewEntries()
	requests := newMemRequests()
	sessions := newMemServiceSessions()
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewService(balances, holds, entries)
	svc := NewService(ledgertest.Runner{}, requests, sessions, led, flatPricing{price: price},
		notify.LogPublisher{Logger: logger}, clk, logger)
	return &fixture{svc: svc, balances: balances, holds: holds, entries: entries,
		requests: requests, sessions: sessions, clk: clk}
}

func TestCreateLocksFunds(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, err := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "call me")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.Status != models.RequestPending {
		t.Fatalf("status = %s, want PENDING", req.Status)
	}
	if got := f.balances.Available(requester); got != 950 {
		t.Errorf("requester available = %d, want 950", got)
	}
	if got := f.balances.Pending(requester); got != 50 {
		t.Errorf("requester pending = %d, want 50", got)
	}
	if got := len(f.entries.ByKind(models.EntryLock)); got != 1 {
		t.Errorf("LOCK entries = %d, want 1", got)
	}
}

func TestAcceptReleasesToProvider(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, err := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	got, err := f.svc.Respond(context.Background(), provider, req.ID, true, "")
	if err != nil {
		t.Fatalf("Respond accept: %v", err)
	}
	if got.Status != models.RequestAccepted {
		t.Fatalf("status = %s, want ACCEPTED", got.Status)
	}
	if got.RespondedAt == nil {
		t.Error("RespondedAt not set")
	}
	if bal := f.balances.Available(requester); bal != 950 {
		t.Errorf("requester available = %d, want 950", bal)
	}
	if pend := f.balances.Pending(requester); pend != 0 {
		t.Errorf("requester pending = %d, want 0", pend)
	}
	if bal := f.balances.Available(provider); bal != 50 {
		t.Errorf("provider available = %d, want 50", bal)
	}

	svcSession, err := f.sessions.GetByRequest(context.Background(), nil, req.ID)
	if err != nil {
		t.Fatalf("service session not spawned: %v", err)
	}
	if want := f.clk.Now().Add(15 * time.Minute); !svcSession.EndTime.Equal(want) {
		t.Errorf("session end = %v, want %v", svcSession.EndTime, want)
	}
	if !svcSession.IsPaid {
		t.Error("session not marked paid")
	}
}

func TestRejectRefundsRequester(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVideoCall, 10, "")
	got, err := f.svc.Respond(context.Background(), provider, req.ID, false, "busy this week")
	if err != nil {
		t.Fatalf("Respond reject: %v", err)
	}
	if got.Status != models.RequestRejected {
		t.Fatalf("status = %s, want REJECTED", got.Status)
	}
	if got.ResponseReason == nil || *got.ResponseReason != "busy this week" {
		t.Errorf("response reason = %v", got.ResponseReason)
	}
	if bal := f.balances.Available(requester); bal != 1000 {
		t.Errorf("requester available = %d, want 1000", bal)
	}
	if pend := f.balances.Pending(requester); pend != 0 {
		t.Errorf("requester pending = %d, want 0", pend)
	}
	if bal := f.balances.Available(provider); bal != 0 {
		t.Errorf("provider available = %d, want 0", bal)
	}
	if _, err := f.sessions.GetByRequest(context.Background(), nil, req.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Error("session spawned for rejected request")
	}
}

func TestRespondGuards(t *testing.T) {
	f := newFixture(50)
	requester, provider, stranger := uuid.New(), uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "")

	if _, err := f.svc.Respond(context.Background(), stranger, req.ID, true, ""); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("stranger respond err = %v, want ErrNotParticipant", err)
	}
	if _, err := f.svc.Respond(context.Background(), provider, uuid.New(), true, ""); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("missing request err = %v, want ErrRequestNotFound", err)
	}

	if _, err := f.svc.Respond(context.Background(), provider, req.ID, false, ""); err != nil {
		t.Fatalf("Respond reject: %v", err)
	}
	if _, err := f.svc.Respond(context.Background(), provider, req.ID, true, ""); !errors.Is(err, ErrRequestNotPending) {
		t.Errorf("double respond err = %v, want ErrRequestNotPending", err)
	}
	if bal := f.balances.Available(requester); bal != 1000 {
		t.Errorf("requester available = %d after double respond, want 1000", bal)
	}
}

func TestRespondToStaleRequestExpiresIt(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "")
	f.clk.Advance(8 * 24 * time.Hour)

	got, err := f.svc.Respond(context.Background(), provider, req.ID, true, "")
	if !errors.Is(err, ErrRequestExpired) {
		t.Fatalf("stale respond err = %v, want ErrRequestExpired", err)
	}
	if got.Status != models.RequestExpired {
		t.Errorf("status = %s, want EXPIRED", got.Status)
	}
	if bal := f.balances.Available(requester); bal != 1000 {
		t.Errorf("requester available = %d, want 1000", bal)
	}
	if bal := f.balances.Available(provider); bal != 0 {
		t.Errorf("provider available = %d, want 0", bal)
	}
}

func TestCancelPendingRequest(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceChat, 30, "")

	if _, err := f.svc.Cancel(context.Background(), provider, req.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("provider cancel err = %v, want ErrNotParticipant", err)
	}

	got, err := f.svc.Cancel(context.Background(), requester, req.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.RequestCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}
	if bal := f.balances.Available(requester); bal != 1000 {
		t.Errorf("requester available = %d, want 1000", bal)
	}

	if _, err := f.svc.Cancel(context.Background(), requester, req.ID); !errors.Is(err, ErrRequestNotPending) {
		t.Errorf("double cancel err = %v, want ErrRequestNotPending", err)
	}
}

func TestAutoExpireStaleSweepIsIdempotent(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	stale, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "")
	f.clk.Advance(8 * 24 * time.Hour)
	fresh, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "")

	n, err := f.svc.AutoExpireStale(context.Background(), StaleAfter)
	if err != nil {
		t.Fatalf("AutoExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	got, _ := f.svc.Get(context.Background(), stale.ID)
	if got.Status != models.RequestExpired {
		t.Errorf("stale status = %s, want EXPIRED", got.Status)
	}
	got, _ = f.svc.Get(context.Background(), fresh.ID)
	if got.Status != models.RequestPending {
		t.Errorf("fresh status = %s, want PENDING", got.Status)
	}
	if bal := f.balances.Available(requester); bal != 950 {
		t.Errorf("requester available = %d, want 950", bal)
	}

	// Second sweep sees nothing left to do and moves no money.
	n, err = f.svc.AutoExpireStale(context.Background(), StaleAfter)
	if err != nil {
		t.Fatalf("second AutoExpireStale: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep expired = %d, want 0", n)
	}
	if got := len(f.entries.ByKind(models.EntryRefund)); got != 1 {
		t.Errorf("REFUND entries = %d, want 1", got)
	}
}

func TestCompleteAfterSessionEnds(t *testing.T) {
	f := newFixture(50)
	requester, provider := uuid.New(), uuid.New()
	f.balances.Seed(requester, 1000)

	req, _ := f.svc.CreateRequest(context.Background(), requester, provider, models.ServiceVoiceCall, 15, "")
	if _, err := f.svc.Respond(context.Background(), provider, req.ID, true, ""); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if _, err := f.svc.Complete(context.Background(), req.ID); !errors.Is(err, ErrSessionStillRunning) {
		t.Errorf("early complete err = %v, want ErrSessionStillRunning", err)
	}

	f.clk.Advance(16 * time.Minute)
	got, err := f.svc.Complete(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != models.RequestCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
	// Completion is bookkeeping only.
	if bal := f.balances.Available(provider); bal != 50 {
		t.Errorf("provider available = %d, want 50", bal)
	}
}
