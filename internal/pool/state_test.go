package pool

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
)

func okField(v bool) domain.BoolField { return domain.BoolField{Value: v, OK: true} }

// completeSnapshot builds a snapshot with every required field read
// successfully.
func completeSnapshot(bettingOpen, emergencyStop, cancelled, closed, winnerSet, winner bool) *domain.ChainPoolSnapshot {
	return &domain.ChainPoolSnapshot{
		BettingOpen:   okField(bettingOpen),
		EmergencyStop: okField(emergencyStop),
		Cancelled:     okField(cancelled),
		Closed:        okField(closed),
		WinnerSet:     okField(winnerSet),
		Winner:        winner,
		TakenAt:       time.Now().UTC(),
	}
}

func testMarket(status domain.MarketStatus, poolAddr string, now time.Time) domain.Market {
	return domain.Market{
		ID:          "m-1",
		Slug:        "derby-napoli",
		Title:       "Napoli wins the derby",
		PoolAddress: poolAddr,
		ClosingDate: now.Add(1 * time.Hour),
		ClosingBid:  now.Add(2 * time.Hour),
		Status:      status,
	}
}

func yesBet(claimed bool) *domain.UserBet {
	return &domain.UserBet{
		ID:       "b-1",
		MarketID: "m-1",
		Wallet:   "0xabc",
		Side:     domain.BetSideYes,
		Claimed:  claimed,
	}
}

// Scenario A: active market with no pool address, wallet connected, no bet.
func TestScenarioA_StatusOnlyActive(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	st := r.Derive(Inputs{
		Market:          testMarket(domain.MarketStatusActive, "", now),
		WalletConnected: true,
		Now:             now,
	})

	if st.Label != domain.StateActive {
		t.Fatalf("label got %q want %q", st.Label, domain.StateActive)
	}
	if !st.CanBet.Allowed() {
		t.Fatalf("can_bet got %q want allowed", st.CanBet)
	}
	if st.Degraded {
		t.Fatal("status-only derivation must not be flagged degraded")
	}
}

// Scenario B: after placing a bet the state stays active but betting is
// gated for that wallet.
func TestScenarioB_ExistingBetBlocksSecondBet(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	st := r.Derive(Inputs{
		Market:          testMarket(domain.MarketStatusActive, "", now),
		Bet:             yesBet(false),
		WalletConnected: true,
		Now:             now,
	})

	if st.Label != domain.StateActive {
		t.Fatalf("label got %q want %q", st.Label, domain.StateActive)
	}
	if st.CanBet != domain.BetAlreadyPlaced {
		t.Fatalf("can_bet got %q want %q", st.CanBet, domain.BetAlreadyPlaced)
	}
}

// Scenario C: chain-reported cancellation wins over a stale database status.
func TestScenarioC_ChainCancellationBeatsStaleStatus(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	st := r.Derive(Inputs{
		Market:   testMarket(domain.MarketStatusActive, "0xpool", now),
		Snapshot: completeSnapshot(true, false, true, false, false, false),
		Now:      now,
	})

	if st.Label != domain.StateCancelled {
		t.Fatalf("label got %q want %q", st.Label, domain.StateCancelled)
	}
}

// Scenario D: one chain read unavailable, closing_date in the past,
// closing_bid in the future: the whole refresh degrades to the time-only
// fallback.
func TestScenarioD_DegradedFallbackBettingClosed(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	m := testMarket(domain.MarketStatusActive, "0xpool", now)
	m.ClosingDate = now.Add(-1 * time.Hour)
	m.ClosingBid = now.Add(1 * time.Hour)

	snap := completeSnapshot(true, false, false, false, false, false)
	snap.BettingOpen = domain.BoolField{} // read failed

	st := r.Derive(Inputs{Market: m, Snapshot: snap, Now: now})

	if st.Label != domain.StateBettingClosed {
		t.Fatalf("label got %q want %q", st.Label, domain.StateBettingClosed)
	}
	if !st.Degraded {
		t.Fatal("fallback state must be flagged degraded")
	}
}

// Scenario E: resolved on-chain with winner = yes; an unclaimed yes bet can
// claim, a claimed one cannot, ever.
func TestScenarioE_RewardClaimSingleShot(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)
	m := testMarket(domain.MarketStatusActive, "0xpool", now)
	snap := completeSnapshot(false, false, false, true, true, true)

	st := r.Derive(Inputs{Market: m, Snapshot: snap, Bet: yesBet(false), WalletConnected: true, Now: now})
	if st.Label != domain.StateResolved {
		t.Fatalf("label got %q want %q", st.Label, domain.StateResolved)
	}
	if !st.CanClaimRewards {
		t.Fatal("unclaimed winning bet must be claimable")
	}

	st = r.Derive(Inputs{Market: m, Snapshot: snap, Bet: yesBet(true), WalletConnected: true, Now: now})
	if st.CanClaimRewards || st.CanClaimRefund {
		t.Fatal("claimed bet must never claim again")
	}
}

// A database-only resolution carries no winner; rewards must not unlock from
// it.
func TestResolvedByDatabaseDoesNotUnlockRewards(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	m := testMarket(domain.MarketStatusResolved, "0xpool", now)
	snap := completeSnapshot(false, false, false, true, false, false)

	st := r.Derive(Inputs{Market: m, Snapshot: snap, Bet: yesBet(false), WalletConnected: true, Now: now})
	if st.Label != domain.StateResolved {
		t.Fatalf("label got %q want %q", st.Label, domain.StateResolved)
	}
	if st.CanClaimRewards {
		t.Fatal("rewards must not be computed from a database-only resolution")
	}
}

// The chain's own betting-open boolean wins over the client clock, even past
// closing_bid.
func TestChainBooleanWinsOverWallClock(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	m := testMarket(domain.MarketStatusActive, "0xpool", now)
	m.ClosingDate = now.Add(-2 * time.Hour)
	m.ClosingBid = now.Add(-1 * time.Hour)

	st := r.Derive(Inputs{
		Market:          m,
		Snapshot:        completeSnapshot(true, false, false, false, false, false),
		WalletConnected: true,
		Now:             now,
	})
	if st.Label != domain.StateActive {
		t.Fatalf("label got %q want %q", st.Label, domain.StateActive)
	}
	if !st.CanBet.Allowed() {
		t.Fatalf("can_bet got %q want allowed", st.CanBet)
	}
}

func TestWalletRequiredIsDistinctFromBlocked(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)
	m := testMarket(domain.MarketStatusActive, "0xpool", now)

	st := r.Derive(Inputs{
		Market:   m,
		Snapshot: completeSnapshot(true, false, false, false, false, false),
		Now:      now,
	})
	if st.CanBet != domain.BetWalletRequired {
		t.Fatalf("can_bet got %q want %q", st.CanBet, domain.BetWalletRequired)
	}

	st = r.Derive(Inputs{
		Market:   m,
		Snapshot: completeSnapshot(false, false, false, false, false, false),
		Now:      now,
	})
	if st.CanBet == domain.BetWalletRequired {
		t.Fatal("a closed market must not report wallet_required")
	}
}

func TestRefundPolicySwitch(t *testing.T) {
	now := time.Now().UTC()
	m := testMarket(domain.MarketStatusActive, "0xpool", now)
	snap := completeSnapshot(false, false, true, false, false, false)

	// Default policy: refunds disabled even when eligible.
	st := NewReconciler(false).Derive(Inputs{Market: m, Snapshot: snap, Bet: yesBet(false), WalletConnected: true, Now: now})
	if st.CanClaimRefund {
		t.Fatal("refunds must stay off under the default policy")
	}

	// Enabled policy: eligibility surfaces.
	st = NewReconciler(true).Derive(Inputs{Market: m, Snapshot: snap, Bet: yesBet(false), WalletConnected: true, Now: now})
	if !st.CanClaimRefund {
		t.Fatal("eligible refund must surface when the policy allows it")
	}

	// Database-only cancellation never refunds: nothing is escrowed for
	// release until the chain confirms.
	dbOnly := completeSnapshot(false, false, false, false, false, false)
	mm := testMarket(domain.MarketStatusCancelled, "0xpool", now)
	st = NewReconciler(true).Derive(Inputs{Market: mm, Snapshot: dbOnly, Bet: yesBet(false), WalletConnected: true, Now: now})
	if st.Label != domain.StateCancelled {
		t.Fatalf("label got %q want %q", st.Label, domain.StateCancelled)
	}
	if st.CanClaimRefund {
		t.Fatal("refund must require on-chain cancellation")
	}
}

func TestStatusOnlyMapping(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	cases := []struct {
		status domain.MarketStatus
		want   domain.StateLabel
	}{
		{domain.MarketStatusPending, domain.StatePending},
		{domain.MarketStatusActive, domain.StateActive},
		{domain.MarketStatusPaused, domain.StatePaused},
		{domain.MarketStatusResolved, domain.StateResolved},
		{domain.MarketStatusCancelled, domain.StateCancelled},
	}
	for _, tc := range cases {
		st := r.Derive(Inputs{Market: testMarket(tc.status, "", now), Now: now})
		if st.Label != tc.want {
			t.Errorf("status %q: label got %q want %q", tc.status, st.Label, tc.want)
		}
		if tc.status != domain.MarketStatusActive && st.CanBet.Allowed() {
			t.Errorf("status %q: betting must be disallowed", tc.status)
		}
		if st.CanClaimRewards || st.CanClaimRefund {
			t.Errorf("status %q: no claims are possible without an escrow contract", tc.status)
		}
	}
}

// chainCombo is the input domain for the precedence property: every
// combination of the five chain booleans and the five statuses.
type chainCombo struct {
	BettingOpen   bool
	EmergencyStop bool
	Cancelled     bool
	Closed        bool
	WinnerSet     bool
	Winner        bool
	StatusIdx     uint8
	PastDeadline  bool
}

var allStatuses = []domain.MarketStatus{
	domain.MarketStatusPending,
	domain.MarketStatusActive,
	domain.MarketStatusPaused,
	domain.MarketStatusResolved,
	domain.MarketStatusCancelled,
}

// expectedLabel is an independent restatement of the precedence order used
// as the oracle for the property test.
func expectedLabel(c chainCombo, status domain.MarketStatus) domain.StateLabel {
	switch {
	case status == domain.MarketStatusCancelled || c.Cancelled:
		return domain.StateCancelled
	case status == domain.MarketStatusResolved || c.WinnerSet:
		return domain.StateResolved
	case c.Closed:
		return domain.StateClosed
	case c.EmergencyStop:
		return domain.StatePaused
	case c.BettingOpen:
		return domain.StateActive
	case !c.PastDeadline:
		return domain.StateBettingClosed
	default:
		return domain.StateAwaitingResult
	}
}

// P1: for every combination of chain booleans and statuses the reconciler
// selects exactly the state the documented precedence dictates, and the
// choice is deterministic.
func TestPrecedenceDeterminism(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)

	property := func(c chainCombo) bool {
		status := allStatuses[int(c.StatusIdx)%len(allStatuses)]
		m := testMarket(status, "0xpool", now)
		if c.PastDeadline {
			m.ClosingDate = now.Add(-2 * time.Hour)
			m.ClosingBid = now.Add(-1 * time.Hour)
		}

		in := Inputs{
			Market:   m,
			Snapshot: completeSnapshot(c.BettingOpen, c.EmergencyStop, c.Cancelled, c.Closed, c.WinnerSet, c.Winner),
			Now:      now,
		}

		first := r.Derive(in)
		second := r.Derive(in)
		if first != second {
			return false
		}
		return first.Label == expectedLabel(c, status)
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatal(err)
	}
}

// P4: a degraded state depends only on status, the time boundaries, and now;
// flipping every chain value must not change it.
func TestFallbackIgnoresUnavailableFields(t *testing.T) {
	now := time.Now().UTC()
	r := NewReconciler(false)
	m := testMarket(domain.MarketStatusActive, "0xpool", now)

	base := &domain.ChainPoolSnapshot{
		// Values present but every read failed.
		BettingOpen:   domain.BoolField{Value: true},
		EmergencyStop: domain.BoolField{Value: true},
		Cancelled:     domain.BoolField{Value: true},
		Closed:        domain.BoolField{Value: true},
		WinnerSet:     domain.BoolField{Value: true},
		Winner:        true,
	}
	flipped := &domain.ChainPoolSnapshot{}

	a := r.Derive(Inputs{Market: m, Snapshot: base, Now: now})
	b := r.Derive(Inputs{Market: m, Snapshot: flipped, Now: now})
	c := r.Derive(Inputs{Market: m, Snapshot: nil, Now: now})

	if a != b || b != c {
		t.Fatalf("degraded states diverged: %+v / %+v / %+v", a, b, c)
	}
	if !a.Degraded {
		t.Fatal("state with unavailable chain reads must be degraded")
	}
}
