package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
)

// fakeReader serves canned escrow state and can fail individual reads.
type fakeReader struct {
	mu          sync.Mutex
	bettingOpen bool
	stopped     bool
	cancelled   bool
	stats       domain.PoolStats
	failOpen    bool
}

func (f *fakeReader) BettingOpen(ctx context.Context, pool string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen {
		return false, errors.New("rpc timeout")
	}
	return f.bettingOpen, nil
}

func (f *fakeReader) EmergencyStopped(ctx context.Context, pool string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped, nil
}

func (f *fakeReader) Cancelled(ctx context.Context, pool string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled, nil
}

func (f *fakeReader) Stats(ctx context.Context, pool string) (domain.PoolStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, nil
}

func (f *fakeReader) FeeInfo(ctx context.Context, pool string) (domain.FeeInfo, error) {
	return domain.FeeInfo{}, nil
}

func (f *fakeReader) RedistributionInfo(ctx context.Context, pool string) (domain.RedistributionInfo, error) {
	return domain.RedistributionInfo{}, nil
}

func (f *fakeReader) Info(ctx context.Context, pool string) (domain.PoolInfo, error) {
	return domain.PoolInfo{}, nil
}

func (f *fakeReader) UserBet(ctx context.Context, pool, wallet string) (domain.ChainBet, error) {
	return domain.ChainBet{}, domain.ErrNotFound
}

// fakeMarketStore serves a single market keyed by pool address.
type fakeMarketStore struct {
	market domain.Market
}

func (s *fakeMarketStore) Create(ctx context.Context, m domain.Market) error { return nil }
func (s *fakeMarketStore) Update(ctx context.Context, m domain.Market) error { return nil }
func (s *fakeMarketStore) UpdateStatus(ctx context.Context, id string, st domain.MarketStatus) error {
	return nil
}
func (s *fakeMarketStore) SetPoolAddress(ctx context.Context, id, addr string) error { return nil }
func (s *fakeMarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return s.market, nil
}
func (s *fakeMarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return s.market, nil
}
func (s *fakeMarketStore) GetByPoolAddress(ctx context.Context, addr string) (domain.Market, error) {
	if addr != s.market.PoolAddress {
		return domain.Market{}, domain.ErrNotFound
	}
	return s.market, nil
}
func (s *fakeMarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return []domain.Market{s.market}, nil
}
func (s *fakeMarketStore) ListByStatus(ctx context.Context, st domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}
func (s *fakeMarketStore) Delete(ctx context.Context, id string) error { return nil }
func (s *fakeMarketStore) Count(ctx context.Context) (int64, error)    { return 1, nil }

// fakeBetStore serves static aggregates.
type fakeBetStore struct {
	yes, no *big.Int
	bettors int64
}

func (s *fakeBetStore) Create(ctx context.Context, bet domain.UserBet) error { return nil }
func (s *fakeBetStore) MarkClaimed(ctx context.Context, id string) error     { return nil }
func (s *fakeBetStore) GetByMarketAndWallet(ctx context.Context, marketID, wallet string) (domain.UserBet, error) {
	return domain.UserBet{}, domain.ErrNotFound
}
func (s *fakeBetStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	return nil, nil
}
func (s *fakeBetStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.UserBet, error) {
	return nil, nil
}
func (s *fakeBetStore) SumBySide(ctx context.Context, marketID string, side domain.BetSide) (*big.Int, error) {
	if side == domain.BetSideYes {
		return s.yes, nil
	}
	return s.no, nil
}
func (s *fakeBetStore) CountBettors(ctx context.Context, marketID string) (int64, error) {
	return s.bettors, nil
}
func (s *fakeBetStore) TopBettors(ctx context.Context, marketID string, limit int) ([]domain.UserBet, error) {
	return nil, nil
}

// memSnapshotCache is an in-memory SnapshotCache.
type memSnapshotCache struct {
	mu sync.Mutex
	m  map[string]domain.ChainPoolSnapshot
}

func newMemSnapshotCache() *memSnapshotCache {
	return &memSnapshotCache{m: make(map[string]domain.ChainPoolSnapshot)}
}

func (c *memSnapshotCache) Set(ctx context.Context, pool string, snap domain.ChainPoolSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[pool] = snap
	return nil
}

func (c *memSnapshotCache) Get(ctx context.Context, pool string) (domain.ChainPoolSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.m[pool]
	if !ok {
		return domain.ChainPoolSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *memSnapshotCache) Invalidate(ctx context.Context, pool string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, pool)
	return nil
}

// memAggregateCache is an in-memory AggregateCache.
type memAggregateCache struct {
	mu sync.Mutex
	m  map[string]domain.PoolAggregates
}

func newMemAggregateCache() *memAggregateCache {
	return &memAggregateCache{m: make(map[string]domain.PoolAggregates)}
}

func (c *memAggregateCache) Set(ctx context.Context, id string, agg domain.PoolAggregates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = agg
	return nil
}

func (c *memAggregateCache) Get(ctx context.Context, id string) (domain.PoolAggregates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	agg, ok := c.m[id]
	if !ok {
		return domain.PoolAggregates{}, domain.ErrNotFound
	}
	return agg, nil
}

func (c *memAggregateCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

func testPoller(reader *fakeReader) *Poller {
	now := time.Now().UTC()
	market := domain.Market{
		ID:          "m-1",
		Slug:        "derby-napoli",
		PoolAddress: "0xpool",
		ClosingDate: now.Add(time.Hour),
		ClosingBid:  now.Add(2 * time.Hour),
		Status:      domain.MarketStatusActive,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Hour-long intervals so only the initial refresh and explicit Refresh
	// calls produce updates in tests.
	return NewPoller(
		reader,
		&fakeMarketStore{market: market},
		&fakeBetStore{yes: big.NewInt(600), no: big.NewInt(400), bettors: 3},
		newMemSnapshotCache(),
		newMemAggregateCache(),
		NewReconciler(false),
		PollerConfig{ChainInterval: time.Hour, AggregateInterval: time.Hour},
		logger,
	)
}

func recvUpdate(t *testing.T, ch <-chan domain.PoolStateUpdate) domain.PoolStateUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return domain.PoolStateUpdate{}
	}
}

func TestFetchSnapshotComplete(t *testing.T) {
	reader := &fakeReader{bettingOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(600), TotalNo: big.NewInt(400), BettorCount: 3,
	}}
	p := testPoller(reader)

	snap := p.FetchSnapshot(context.Background(), "0xpool")
	if !snap.Complete() {
		t.Fatalf("snapshot should be complete: %+v", snap)
	}
	if !snap.BettingOpen.Value {
		t.Fatal("betting_open should be true")
	}
	if snap.TotalYes.Int64() != 600 || snap.TotalNo.Int64() != 400 {
		t.Fatalf("totals got %v/%v", snap.TotalYes, snap.TotalNo)
	}
}

func TestFetchSnapshotPartialFailure(t *testing.T) {
	reader := &fakeReader{bettingOpen: true, failOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(0), TotalNo: big.NewInt(0),
	}}
	p := testPoller(reader)

	snap := p.FetchSnapshot(context.Background(), "0xpool")
	if snap.Complete() {
		t.Fatal("a failed sub-call must leave the snapshot incomplete")
	}
	if snap.BettingOpen.OK {
		t.Fatal("failed read must not be marked OK")
	}
	// The other reads still succeeded individually.
	if !snap.EmergencyStop.OK || !snap.Cancelled.OK || !snap.Closed.OK {
		t.Fatalf("independent reads should still be OK: %+v", snap)
	}
}

func TestSubscribeDeliversInitialState(t *testing.T) {
	reader := &fakeReader{bettingOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(600), TotalNo: big.NewInt(400),
	}}
	p := testPoller(reader)

	ch, unsubscribe, err := p.Subscribe("0xpool")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	u := recvUpdate(t, ch)
	if u.State.Label != domain.StateActive {
		t.Fatalf("label got %q want %q", u.State.Label, domain.StateActive)
	}
	if u.State.Degraded {
		t.Fatal("healthy chain reads must not produce a degraded state")
	}
}

func TestSubscribeDegradedOnChainFailure(t *testing.T) {
	reader := &fakeReader{failOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(0), TotalNo: big.NewInt(0),
	}}
	p := testPoller(reader)

	ch, unsubscribe, err := p.Subscribe("0xpool")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	u := recvUpdate(t, ch)
	if !u.State.Degraded {
		t.Fatalf("expected degraded state, got %+v", u.State)
	}
}

func TestSubscribeEmptyAddressRejected(t *testing.T) {
	p := testPoller(&fakeReader{})
	if _, _, err := p.Subscribe(""); err == nil {
		t.Fatal("empty pool address must be rejected")
	}
}

func TestRefcountedLoopLifecycle(t *testing.T) {
	reader := &fakeReader{bettingOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(0), TotalNo: big.NewInt(0),
	}}
	p := testPoller(reader)

	ch1, unsub1, _ := p.Subscribe("0xpool")
	ch2, unsub2, _ := p.Subscribe("0xpool")

	recvUpdate(t, ch1) // initial refresh reaches the first subscriber

	p.mu.Lock()
	loops := len(p.loops)
	p.mu.Unlock()
	if loops != 1 {
		t.Fatalf("two subscribers must share one loop, got %d", loops)
	}

	// Dropping one subscriber keeps the loop alive for the other.
	unsub1()
	unsub1() // idempotent
	p.Refresh("0xpool")
	recvUpdate(t, ch2)

	unsub2()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.mu.Lock()
		n := len(p.loops)
		p.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop should stop after the last unsubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAggregateUpdateUsesCachedSnapshot(t *testing.T) {
	reader := &fakeReader{cancelled: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(600), TotalNo: big.NewInt(400),
	}}
	p := testPoller(reader)

	ch, unsubscribe, _ := p.Subscribe("0xpool")
	defer unsubscribe()

	// The initial refresh emits the chain update first, then the aggregate
	// update. Both must agree on the chain-confirmed cancellation.
	chainU := recvUpdate(t, ch)
	if chainU.State.Label != domain.StateCancelled || chainU.State.Degraded {
		t.Fatalf("chain update got %+v", chainU.State)
	}

	aggU := recvUpdate(t, ch)
	if aggU.Aggregates == nil {
		t.Fatalf("expected aggregate update, got %+v", aggU)
	}
	if aggU.State.Degraded {
		t.Fatal("aggregate update must not be degraded while the snapshot cache holds a complete snapshot")
	}
	if aggU.State.Label != domain.StateCancelled {
		t.Fatalf("aggregate update label got %q want %q", aggU.State.Label, domain.StateCancelled)
	}
}

func TestAggregateUpdateDegradedOnSnapshotMiss(t *testing.T) {
	reader := &fakeReader{failOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(0), TotalNo: big.NewInt(0),
	}}
	p := testPoller(reader)

	ch, unsubscribe, _ := p.Subscribe("0xpool")
	defer unsubscribe()

	recvUpdate(t, ch) // chain update, degraded

	// The incomplete snapshot was never cached, so the aggregate update
	// falls back to the time-only derivation.
	aggU := recvUpdate(t, ch)
	if aggU.Aggregates == nil {
		t.Fatalf("expected aggregate update, got %+v", aggU)
	}
	if !aggU.State.Degraded {
		t.Fatalf("expected degraded fallback without a cached snapshot, got %+v", aggU.State)
	}
}

func TestSuspendBlocksRefresh(t *testing.T) {
	reader := &fakeReader{bettingOpen: true, stats: domain.PoolStats{
		TotalYes: big.NewInt(0), TotalNo: big.NewInt(0),
	}}
	p := testPoller(reader)

	ch, unsubscribe, _ := p.Subscribe("0xpool")
	defer unsubscribe()

	// Drain the initial chain + aggregate updates.
	recvUpdate(t, ch)
	recvUpdate(t, ch)

	resume := p.Suspend("0xpool")
	p.Refresh("0xpool")

	select {
	case u := <-ch:
		t.Fatalf("suspended loop must not refresh, got %+v", u.State)
	case <-time.After(150 * time.Millisecond):
	}

	resume()
	resume() // idempotent
	recvUpdate(t, ch)
}
