package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/pool"
)

type fakeWriter struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeWriter) record(call string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("chain: send failed")
	}
	f.calls = append(f.calls, call)
	return "0xtxhash", nil
}

func (f *fakeWriter) SetWinner(_ context.Context, _ string, winner bool) (string, error) {
	return f.record("setWinner")
}
func (f *fakeWriter) SetEmergencyStop(_ context.Context, _ string, stopped bool) (string, error) {
	return f.record("setEmergencyStop")
}
func (f *fakeWriter) CancelPool(_ context.Context, _, _ string) (string, error) {
	return f.record("cancelPool")
}
func (f *fakeWriter) EmergencyResolve(_ context.Context, _ string, _ bool, _ string) (string, error) {
	return f.record("emergencyResolve")
}

// fakeLocks hands out at most one lock per key.
type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: make(map[string]bool)} }

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

type recordStatusMarkets struct {
	fakeMarkets
	mu     sync.Mutex
	status []domain.MarketStatus
}

func (r *recordStatusMarkets) UpdateStatus(_ context.Context, _ string, status domain.MarketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, status)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func testAdminService(writer *fakeWriter, locks domain.LockManager) (*AdminService, *recordStatusMarkets, *fakeAudit, *fakeNotifier) {
	now := time.Now().UTC()
	markets := &recordStatusMarkets{fakeMarkets: fakeMarkets{m: domain.Market{
		ID:          "market-1",
		Slug:        "serie-a",
		Title:       "Napoli wins Serie A",
		PoolAddress: testPool,
		ClosingDate: now.Add(-2 * time.Hour),
		ClosingBid:  now.Add(-time.Hour),
		Status:      domain.MarketStatusActive,
	}}}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := pool.NewReconciler(false)
	poller := pool.NewPoller(&fakeChain{open: true}, markets, newFakeBets(), newMemSnaps(), newMemAggs(), rec,
		pool.PollerConfig{ChainInterval: time.Hour, AggregateInterval: time.Hour}, logger)
	svc := NewAdminService(markets, writer, locks, audit, notifier, poller, time.Minute, logger)
	return svc, markets, audit, notifier
}

func TestResolveSubmitsAndRecords(t *testing.T) {
	writer := &fakeWriter{}
	svc, markets, audit, notifier := testAdminService(writer, newFakeLocks())

	txHash, err := svc.Resolve(context.Background(), "market-1", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if txHash == "" {
		t.Fatal("expected a transaction hash")
	}
	if len(writer.calls) != 1 || writer.calls[0] != "setWinner" {
		t.Fatalf("writer calls = %v, want [setWinner]", writer.calls)
	}
	if len(markets.status) != 1 || markets.status[0] != domain.MarketStatusResolved {
		t.Fatalf("status updates = %v, want [risolta]", markets.status)
	}
	if len(audit.events) != 1 || audit.events[0] != "market_resolved" {
		t.Fatalf("audit events = %v, want [market_resolved]", audit.events)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "market_resolved" {
		t.Fatalf("notifications = %v, want [market_resolved]", notifier.events)
	}
}

func TestSettlementHeldLockRejected(t *testing.T) {
	locks := newFakeLocks()
	svc, _, _, _ := testAdminService(&fakeWriter{}, locks)

	// Another process holds the pool's settlement lock.
	if _, err := locks.Acquire(context.Background(), "settle:"+testPool, time.Minute); err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}

	_, err := svc.Resolve(context.Background(), "market-1", true)
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("error = %v, want ErrLockHeld", err)
	}
}

func TestSettlementFailureAudited(t *testing.T) {
	writer := &fakeWriter{fail: true}
	svc, markets, audit, notifier := testAdminService(writer, newFakeLocks())

	if _, err := svc.Cancel(context.Background(), "market-1", "rained out"); err == nil {
		t.Fatal("expected Cancel to surface the chain error")
	}
	if len(markets.status) != 0 {
		t.Fatalf("status updates = %v, want none after failed settlement", markets.status)
	}
	if len(audit.events) != 1 || audit.events[0] != "settlement_error" {
		t.Fatalf("audit events = %v, want [settlement_error]", audit.events)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "settlement_error" {
		t.Fatalf("notifications = %v, want [settlement_error]", notifier.events)
	}
}

func TestEmergencyStopMirrorsStatus(t *testing.T) {
	writer := &fakeWriter{}
	svc, markets, _, _ := testAdminService(writer, newFakeLocks())
	ctx := context.Background()

	if _, err := svc.SetEmergencyStop(ctx, "market-1", true); err != nil {
		t.Fatalf("SetEmergencyStop(true): %v", err)
	}
	if _, err := svc.SetEmergencyStop(ctx, "market-1", false); err != nil {
		t.Fatalf("SetEmergencyStop(false): %v", err)
	}

	want := []domain.MarketStatus{domain.MarketStatusPaused, domain.MarketStatusActive}
	if len(markets.status) != 2 || markets.status[0] != want[0] || markets.status[1] != want[1] {
		t.Fatalf("status updates = %v, want %v", markets.status, want)
	}
}

func TestSettleWithoutWriter(t *testing.T) {
	svc, _, _, _ := testAdminService(&fakeWriter{}, newFakeLocks())
	svc.writer = nil

	if _, err := svc.Resolve(context.Background(), "market-1", true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
}

func TestSetStatusRefusesSettlementStatusesWithPool(t *testing.T) {
	svc, _, _, _ := testAdminService(&fakeWriter{}, newFakeLocks())

	err := svc.SetStatus(context.Background(), "market-1", domain.MarketStatusResolved)
	if err == nil {
		t.Fatal("expected SetStatus to refuse resolving a pooled market off-chain")
	}
}
