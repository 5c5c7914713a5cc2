package session

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

type memSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.ChatSession
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[uuid.UUID]*models.ChatSession)}
}

func (m *memSessions) Create(_ context.Context, _ pgx.Tx, s *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id uuid.UUID) (*models.ChatSession, error) {
	return m.GetForUpdate(nil, nil, id)
}

func (m *memSessions) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (m *memSessions) FindLiveForPair(_ context.Context, _ pgx.Tx, buyerID, sellerID uuid.UUID) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.BuyerID == buyerID && row.SellerID == sellerID && !row.IsCancelled && !row.Exhausted() {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessions) Update(_ context.Context, _ pgx.Tx, s *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessions) ListRunningIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, row := range m.rows {
		if row.Running() {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (m *memSessions) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChatSession
	for _, row := range m.rows {
		if row.BuyerID == userID || row.SellerID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type tierPricing struct {
	prices map[int]int64 // duration minutes -> cents
}

func (p tierPricing) TierPrice(_ context.Context, _ uuid.UUID, durationMinutes int) (int64, error) {
	price, ok := p.prices[durationMinutes]
	if !ok {
		return 0, errors.New("no tier for duration")
	}
	return price, nil
}

type fixture struct {
	svc      *Service
	balances *ledgertest.Balances
	entries  *ledgertest.Entries
	sessions *memSessions
	clk      *clock.Mock
}

func newFixture() *fixture {
	balances := ledgertest.NewBalances()
	entries := ledgertest.NewEntries()
	sessions := newMemSessions()
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewService(balances, ledgertest.NewHolds(), entries)
	pricing := tierPricing{prices: map[int]int64{10: 100, 30: 250}}
	svc := NewService(ledgertest.Runner{}, sessions, led, pricing,
		notify.LogPublisher{Logger: logger}, clk, logger)
	return &fixture{svc: svc, balances: balances, entries: entries, sessions: sessions, clk: clk}
}

func TestPurchaseTransfersPriceAndStartsPaused(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, err := f.svc.Purchase(context.Background(), buyer, seller, 10)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if !sess.IsPaused || !sess.IsActive || sess.UsedSeconds != 0 {
		t.Errorf("new session paused=%v active=%v used=%d, want paused active zero-clock",
			sess.IsPaused, sess.IsActive, sess.UsedSeconds)
	}
	if sess.PriceCents != 100 {
		t.Errorf("price = %d, want 100", sess.PriceCents)
	}
	if bal := f.balances.Available(buyer); bal != 400 {
		t.Errorf("buyer available = %d, want 400", bal)
	}
	if bal := f.balances.Available(seller); bal != 100 {
		t.Errorf("seller available = %d, want 100", bal)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 50)

	if _, err := f.svc.Purchase(context.Background(), buyer, seller, 10); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("Purchase err = %v, want ErrInsufficientFunds", err)
	}
	if bal := f.balances.Available(seller); bal != 0 {
		t.Errorf("seller available = %d, want 0", bal)
	}
}

func TestPurchaseConflictWithLiveSession(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	first, err := f.svc.Purchase(context.Background(), buyer, seller, 10)
	if err != nil {
		t.Fatalf("first Purchase: %v", err)
	}
	if _, err := f.svc.Purchase(context.Background(), buyer, seller, 10); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("second Purchase err = %v, want ErrSessionConflict", err)
	}
	if bal := f.balances.Available(buyer); bal != 400 {
		t.Errorf("buyer available = %d after conflict, want 400", bal)
	}

	// Cancelling the first frees the pair again.
	if _, _, err := f.svc.Cancel(context.Background(), first.ID, buyer); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := f.svc.Purchase(context.Background(), buyer, seller, 10); err != nil {
		t.Errorf("Purchase after cancel: %v", err)
	}
}

func TestImmediateCancelRefundsFullPrice(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	_, refund, err := f.svc.Cancel(context.Background(), sess.ID, buyer)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 100 {
		t.Errorf("refund = %d, want 100", refund)
	}
	if bal := f.balances.Available(buyer); bal != 500 {
		t.Errorf("buyer available = %d, want 500", bal)
	}
	if bal := f.balances.Available(seller); bal != 0 {
		t.Errorf("seller available = %d, want 0", bal)
	}
}

func TestCancelRefundsProRata(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	if _, err := f.svc.Activate(context.Background(), sess.ID, buyer); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	f.clk.Advance(5 * time.Minute)
	paused, err := f.svc.Pause(context.Background(), sess.ID, buyer)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.UsedSeconds != 300 {
		t.Fatalf("used = %d seconds, want 300", paused.UsedSeconds)
	}

	_, refund, err := f.svc.Cancel(context.Background(), sess.ID, buyer)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 50 {
		t.Errorf("refund = %d, want 50 (half the quota unused)", refund)
	}
	if bal := f.balances.Available(buyer); bal != 450 {
		t.Errorf("buyer available = %d, want 450", bal)
	}
	if bal := f.balances.Available(seller); bal != 50 {
		t.Errorf("seller available = %d, want 50", bal)
	}
}

func TestCancelWhileRunningAccruesFirst(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	f.svc.Activate(context.Background(), sess.ID, buyer)
	f.clk.Advance(150 * time.Second)

	got, refund, err := f.svc.Cancel(context.Background(), sess.ID, seller)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.UsedSeconds != 150 {
		t.Errorf("used = %d seconds, want 150", got.UsedSeconds)
	}
	// 450 of 600 seconds unused: 100 * 450/600.
	if refund != 75 {
		t.Errorf("refund = %d, want 75", refund)
	}
}

func TestTouchRefreshesAnchorWithoutAccrual(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	f.svc.Activate(context.Background(), sess.ID, buyer)
	f.clk.Advance(2 * time.Minute)

	got, err := f.svc.TouchActivity(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}
	if got.UsedSeconds != 0 {
		t.Errorf("used = %d after touch, want 0 (accrual happens on pause)", got.UsedSeconds)
	}
	if !got.LastActiveAt.Equal(f.clk.Now()) {
		t.Errorf("last active = %v, want %v", got.LastActiveAt, f.clk.Now())
	}

	// Pause measures from the refreshed anchor.
	f.clk.Advance(3 * time.Minute)
	paused, err := f.svc.Pause(context.Background(), sess.ID, buyer)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.UsedSeconds != 180 {
		t.Errorf("used = %d, want 180", paused.UsedSeconds)
	}
}

func TestTouchPastDeadlineFinalizesAndReportsExpired(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	f.svc.Activate(context.Background(), sess.ID, buyer)
	f.clk.Advance(11 * time.Minute)

	got, err := f.svc.TouchActivity(context.Background(), sess.ID)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("TouchActivity err = %v, want ErrSessionExpired", err)
	}
	// The finalize commits: the quota is fully consumed and the session
	// stopped even though the caller saw an error.
	stored, _ := f.svc.Get(context.Background(), sess.ID)
	if stored.UsedSeconds != got.UsedSeconds || stored.UsedSeconds != 600 {
		t.Errorf("used = %d, want full 600-second quota", stored.UsedSeconds)
	}
	if stored.IsActive || !stored.IsPaused {
		t.Errorf("session active=%v paused=%v after overrun, want stopped", stored.IsActive, stored.IsPaused)
	}

	// An expired session refunds nothing.
	_, refund, err := f.svc.Cancel(context.Background(), sess.ID, buyer)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 0 {
		t.Errorf("refund = %d for exhausted session, want 0", refund)
	}
}

func TestTouchResumesPausedSession(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	got, err := f.svc.TouchActivity(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}
	if got.IsPaused {
		t.Error("touch did not resume the paused session")
	}
	if want := f.clk.Now().Add(10 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("deadline = %v, want %v", got.EndTime, want)
	}
}

func TestParticipantGuards(t *testing.T) {
	f := newFixture()
	buyer, seller, stranger := uuid.New(), uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	if _, err := f.svc.Activate(context.Background(), sess.ID, stranger); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Activate err = %v, want ErrNotParticipant", err)
	}
	if _, err := f.svc.Pause(context.Background(), sess.ID, stranger); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Pause err = %v, want ErrNotParticipant", err)
	}
	if _, _, err := f.svc.Cancel(context.Background(), sess.ID, stranger); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Cancel err = %v, want ErrNotParticipant", err)
	}
	if _, err := f.svc.Activate(context.Background(), uuid.New(), buyer); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session err = %v, want ErrSessionNotFound", err)
	}
}

func TestCancelledSessionRejectsFurtherOps(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	f.svc.Cancel(context.Background(), sess.ID, buyer)

	if _, err := f.svc.Activate(context.Background(), sess.ID, buyer); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Activate err = %v, want ErrSessionExpired", err)
	}
	if _, err := f.svc.TouchActivity(context.Background(), sess.ID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("TouchActivity err = %v, want ErrSessionExpired", err)
	}
	if _, _, err := f.svc.Cancel(context.Background(), sess.ID, buyer); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("double cancel err = %v, want ErrSessionExpired", err)
	}
}

func TestAutoPauseIdleSession(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 30)
	f.svc.Activate(context.Background(), sess.ID, buyer)
	f.clk.Advance(20 * time.Minute)

	n, err := f.svc.AutoPauseInactive(context.Background(), 15*time.Minute)
	if err != nil {
		t.Fatalf("AutoPauseInactive: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if !got.IsPaused {
		t.Error("idle session not paused")
	}
	if got.UsedSeconds != 1200 {
		t.Errorf("used = %d, want 1200", got.UsedSeconds)
	}

	// Re-running the sweep changes nothing.
	n, err = f.svc.AutoPauseInactive(context.Background(), 15*time.Minute)
	if err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v; want 0, nil", n, err)
	}
}

func TestAutoPauseFinalizesOverrun(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	f.svc.Activate(context.Background(), sess.ID, buyer)
	f.clk.Advance(12 * time.Minute)

	n, err := f.svc.AutoPauseInactive(context.Background(), 15*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v; want 1, nil", n, err)
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.IsActive {
		t.Error("overrun session still active")
	}
	if got.UsedSeconds != 600 {
		t.Errorf("used = %d, want capped at 600", got.UsedSeconds)
	}
}

func TestRemainingWhileRunning(t *testing.T) {
	f := newFixture()
	buyer, seller := uuid.New(), uuid.New()
	f.balances.Seed(buyer, 500)

	sess, _ := f.svc.Purchase(context.Background(), buyer, seller, 10)
	active, _ := f.svc.Activate(context.Background(), sess.ID, buyer)
	f.clk.Advance(4 * time.Minute)

	if got := f.svc.Remaining(active); got != 360 {
		t.Errorf("remaining = %d, want 360", got)
	}
}
