package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bellanapoli/bellad/internal/domain"
)

// subBufferSize is the per-subscriber channel buffer. Slow subscribers drop
// updates rather than stall the loop; every update is a full recomputation,
// so a dropped one is superseded by the next.
const subBufferSize = 8

// PollerConfig holds the two refresh cadences: the silent chain-state
// refresh and the slower aggregate refresh.
type PollerConfig struct {
	ChainInterval     time.Duration
	AggregateInterval time.Duration
}

// Poller owns one polling loop per pool address and fans updates out to
// subscribers. Consumers subscribe by address instead of each running their
// own timers, so N mounted views cost one set of chain reads per cycle
// rather than N.
type Poller struct {
	reader  domain.PoolReader
	markets domain.MarketStore
	bets    domain.BetStore
	snaps   domain.SnapshotCache
	aggs    domain.AggregateCache
	rec     *Reconciler
	cfg     PollerConfig
	logger  *slog.Logger
	bus     domain.EventBus

	mu    sync.Mutex
	loops map[string]*poolLoop
}

// NewPoller creates a Poller. It starts no goroutines until the first
// subscription for a pool arrives.
func NewPoller(
	reader domain.PoolReader,
	markets domain.MarketStore,
	bets domain.BetStore,
	snaps domain.SnapshotCache,
	aggs domain.AggregateCache,
	rec *Reconciler,
	cfg PollerConfig,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		reader:  reader,
		markets: markets,
		bets:    bets,
		snaps:   snaps,
		aggs:    aggs,
		rec:     rec,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "poller")),
		loops:   make(map[string]*poolLoop),
	}
}

// AttachBus makes the poller publish every derived state on the event bus in
// addition to in-process fan-out, for deployments where the websocket hub
// runs in another process. Call before the first Subscribe.
func (p *Poller) AttachBus(bus domain.EventBus) {
	p.bus = bus
}

// poolLoop is the per-address refresh loop shared by all subscribers of that
// pool.
type poolLoop struct {
	addr   string
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	refs      int
	subs      map[int]chan domain.PoolStateUpdate
	nextID    int
	inFlight  bool
	suspended int
	refreshCh chan struct{}
}

// Subscribe registers interest in a pool's state. The first subscriber for
// an address starts its loop; the returned unsubscribe function decrements
// the refcount and the last one stops the loop. Updates arrive on the
// returned channel after every refresh cycle.
func (p *Poller) Subscribe(poolAddress string) (<-chan domain.PoolStateUpdate, func(), error) {
	if poolAddress == "" {
		return nil, nil, domain.ErrNotFound
	}

	p.mu.Lock()
	loop, ok := p.loops[poolAddress]
	var loopCtx context.Context
	if !ok {
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithCancel(context.Background())
		loop = &poolLoop{
			addr:      poolAddress,
			cancel:    cancel,
			done:      make(chan struct{}),
			subs:      make(map[int]chan domain.PoolStateUpdate),
			refreshCh: make(chan struct{}, 1),
		}
		p.loops[poolAddress] = loop
	}
	p.mu.Unlock()

	loop.mu.Lock()
	loop.refs++
	id := loop.nextID
	loop.nextID++
	ch := make(chan domain.PoolStateUpdate, subBufferSize)
	loop.subs[id] = ch
	loop.mu.Unlock()

	// Start the loop only after the first subscriber is registered, so the
	// initial refresh cannot be broadcast into an empty set.
	if !ok {
		go p.run(loopCtx, loop)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			loop.mu.Lock()
			delete(loop.subs, id)
			loop.refs--
			last := loop.refs == 0
			loop.mu.Unlock()

			if last {
				p.mu.Lock()
				delete(p.loops, poolAddress)
				p.mu.Unlock()
				loop.cancel()
			}
		})
	}

	return ch, unsubscribe, nil
}

// Refresh requests an immediate out-of-band refresh for a pool, typically
// after an admin settlement action or a confirmed bet. It is a no-op when no
// loop is running for the address.
func (p *Poller) Refresh(poolAddress string) {
	p.mu.Lock()
	loop, ok := p.loops[poolAddress]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case loop.refreshCh <- struct{}{}:
	default:
	}
}

// Suspend suppresses timed refreshes for a pool while a user-initiated
// action is in flight, so a stale read cannot race the pending write. The
// returned resume function re-enables polling and triggers an immediate
// refresh; it is safe to call more than once.
func (p *Poller) Suspend(poolAddress string) (resume func()) {
	p.mu.Lock()
	loop, ok := p.loops[poolAddress]
	p.mu.Unlock()
	if !ok {
		return func() {}
	}

	loop.mu.Lock()
	loop.suspended++
	loop.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			loop.mu.Lock()
			loop.suspended--
			loop.mu.Unlock()
			p.Refresh(poolAddress)
		})
	}
}

// run is the per-pool loop: an immediate refresh on start, then the silent
// chain cadence and the slow aggregate cadence until the last subscriber
// leaves.
func (p *Poller) run(ctx context.Context, loop *poolLoop) {
	defer close(loop.done)

	p.logger.Info("pool loop started", slog.String("pool", loop.addr))

	chainTick := time.NewTicker(p.cfg.ChainInterval)
	defer chainTick.Stop()
	aggTick := time.NewTicker(p.cfg.AggregateInterval)
	defer aggTick.Stop()

	// Run both refreshes immediately so the first subscriber does not wait a
	// full interval for data.
	p.refreshChain(ctx, loop)
	p.refreshAggregates(ctx, loop)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pool loop stopped", slog.String("pool", loop.addr))
			return
		case <-chainTick.C:
			p.refreshChain(ctx, loop)
		case <-aggTick.C:
			p.refreshAggregates(ctx, loop)
		case <-loop.refreshCh:
			p.refreshChain(ctx, loop)
			p.refreshAggregates(ctx, loop)
		}
	}
}

// begin marks a refresh as in flight. It returns false when the loop is
// suspended or another refresh is already running; overlapping refreshes
// from the same loop would race each other's updates.
func (loop *poolLoop) begin() bool {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	if loop.suspended > 0 || loop.inFlight {
		return false
	}
	loop.inFlight = true
	return true
}

func (loop *poolLoop) end() {
	loop.mu.Lock()
	loop.inFlight = false
	loop.mu.Unlock()
}

// refreshChain re-reads the escrow state, caches the snapshot, derives the
// wallet-agnostic state, and fans it out. All failures are folded into the
// derived state; the loop itself never aborts on a bad cycle.
func (p *Poller) refreshChain(ctx context.Context, loop *poolLoop) {
	if !loop.begin() {
		return
	}
	defer loop.end()

	market, err := p.markets.GetByPoolAddress(ctx, loop.addr)
	if err != nil {
		p.logger.Warn("pool loop: market lookup failed",
			slog.String("pool", loop.addr),
			slog.String("error", err.Error()),
		)
		return
	}

	snap := p.FetchSnapshot(ctx, loop.addr)
	if snap.Complete() {
		if err := p.snaps.Set(ctx, loop.addr, snap); err != nil {
			p.logger.Warn("pool loop: snapshot cache set failed",
				slog.String("pool", loop.addr),
				slog.String("error", err.Error()),
			)
		}
	}

	state := p.rec.Derive(Inputs{
		Market:   market,
		Snapshot: &snap,
		Now:      time.Now().UTC(),
	})

	update := domain.PoolStateUpdate{
		Market:   market,
		Snapshot: &snap,
		State:    state,
	}
	loop.broadcast(update)
	p.publish(ctx, loop.addr, update)
}

// refreshAggregates recomputes volumes, bettor counts, and recent bets from
// the record store. Missing data degrades to zero counts rather than
// blocking the update.
func (p *Poller) refreshAggregates(ctx context.Context, loop *poolLoop) {
	if !loop.begin() {
		return
	}
	defer loop.end()

	market, err := p.markets.GetByPoolAddress(ctx, loop.addr)
	if err != nil {
		return
	}

	agg := p.aggregatesFor(ctx, market)
	if err := p.aggs.Set(ctx, market.ID, agg); err != nil {
		p.logger.Warn("pool loop: aggregate cache set failed",
			slog.String("pool", loop.addr),
			slog.String("error", err.Error()),
		)
	}

	// Aggregate ticks do not touch the chain; the state riding along must
	// come from the last chain-confirmed snapshot so it agrees with what the
	// 30-second cadence just broadcast. Only a cache miss falls back to the
	// time-only derivation.
	var snap *domain.ChainPoolSnapshot
	if cached, err := p.snaps.Get(ctx, loop.addr); err == nil {
		snap = &cached
	}

	update := domain.PoolStateUpdate{
		Market:     market,
		Snapshot:   snap,
		Aggregates: &agg,
		State: p.rec.Derive(Inputs{
			Market:   market,
			Snapshot: snap,
			Now:      time.Now().UTC(),
		}),
	}
	loop.broadcast(update)
	p.publish(ctx, loop.addr, update)
}

// publish mirrors an update onto the event bus when one is attached.
func (p *Poller) publish(ctx context.Context, addr string, u domain.PoolStateUpdate) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(u)
	if err != nil {
		p.logger.Warn("pool loop: marshal update failed",
			slog.String("pool", addr),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, domain.PoolStateChannel(addr), payload); err != nil {
		p.logger.Warn("pool loop: bus publish failed",
			slog.String("pool", addr),
			slog.String("error", err.Error()),
		)
	}
}

// aggregatesFor builds PoolAggregates from the bet store, degrading each
// failed read to a zero value.
func (p *Poller) aggregatesFor(ctx context.Context, market domain.Market) domain.PoolAggregates {
	zero := big.NewInt(0)

	yes, err := p.bets.SumBySide(ctx, market.ID, domain.BetSideYes)
	if err != nil {
		yes = zero
	}
	no, err := p.bets.SumBySide(ctx, market.ID, domain.BetSideNo)
	if err != nil {
		no = zero
	}
	count, err := p.bets.CountBettors(ctx, market.ID)
	if err != nil {
		count = 0
	}
	recent, err := p.bets.ListByMarket(ctx, market.ID, domain.ListOpts{Limit: 10})
	if err != nil {
		recent = nil
	}

	return domain.PoolAggregates{
		MarketID:    market.ID,
		TotalYes:    yes.String(),
		TotalNo:     no.String(),
		BettorCount: count,
		RecentBets:  recent,
		UpdatedAt:   time.Now().UTC(),
	}
}

// broadcast delivers an update to all subscribers without blocking; a full
// subscriber buffer drops the update.
func (loop *poolLoop) broadcast(u domain.PoolStateUpdate) {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	for _, ch := range loop.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// FetchSnapshot issues the per-field escrow reads in parallel and joins them
// into one snapshot. A failed sub-call leaves its field marked unavailable
// instead of coercing a value; Complete() then reports the snapshot as a
// whole as unavailable, because mixing fields from a failed cycle would
// produce inconsistent partial states.
func (p *Poller) FetchSnapshot(ctx context.Context, poolAddress string) domain.ChainPoolSnapshot {
	snap := domain.ChainPoolSnapshot{TakenAt: time.Now().UTC()}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		open, err := p.reader.BettingOpen(gctx, poolAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			p.warnRead(poolAddress, "betting_open", err)
			return nil
		}
		snap.BettingOpen = domain.BoolField{Value: open, OK: true}
		return nil
	})
	g.Go(func() error {
		stopped, err := p.reader.EmergencyStopped(gctx, poolAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			p.warnRead(poolAddress, "emergency_stop", err)
			return nil
		}
		snap.EmergencyStop = domain.BoolField{Value: stopped, OK: true}
		return nil
	})
	g.Go(func() error {
		cancelled, err := p.reader.Cancelled(gctx, poolAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			p.warnRead(poolAddress, "cancelled", err)
			return nil
		}
		snap.Cancelled = domain.BoolField{Value: cancelled, OK: true}
		return nil
	})
	g.Go(func() error {
		stats, err := p.reader.Stats(gctx, poolAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			p.warnRead(poolAddress, "stats", err)
			return nil
		}
		snap.Closed = domain.BoolField{Value: stats.Closed, OK: true}
		snap.WinnerSet = domain.BoolField{Value: stats.WinnerSet, OK: true}
		snap.Winner = stats.Winner
		snap.TotalYes = stats.TotalYes
		snap.TotalNo = stats.TotalNo
		snap.BettorCount = stats.BettorCount
		return nil
	})

	_ = g.Wait()
	return snap
}

func (p *Poller) warnRead(pool, field string, err error) {
	p.logger.Warn("chain read unavailable",
		slog.String("pool", pool),
		slog.String("field", field),
		slog.String("error", err.Error()),
	)
}
