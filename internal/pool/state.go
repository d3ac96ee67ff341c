// Package pool implements the pool lifecycle reconciliation for Bella Napoli
// markets: it folds on-chain escrow state, the off-chain administrative
// status, and wall-clock time into a single PoolState per market, and runs
// the shared polling loops that keep that state fresh.
package pool

import (
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
)

// Inputs are the three sources of truth one derivation consumes. Snapshot is
// nil when no chain refresh has produced one yet; an incomplete snapshot
// counts as unavailable as a whole. Bet is nil when the wallet has no bet on
// the market or no wallet is connected.
type Inputs struct {
	Market          domain.Market
	Snapshot        *domain.ChainPoolSnapshot
	Bet             *domain.UserBet
	WalletConnected bool
	Now             time.Time
}

// Reconciler derives PoolStates. It is stateless apart from policy switches
// and safe for concurrent use.
type Reconciler struct {
	refundsEnabled bool
}

// NewReconciler creates a Reconciler. refundsEnabled gates the refund claim
// path for cancelled pools; the eligibility rule is computed either way, the
// switch only decides whether it is surfaced.
func NewReconciler(refundsEnabled bool) *Reconciler {
	return &Reconciler{refundsEnabled: refundsEnabled}
}

// deriveCtx carries the precomputed facts the rule guards share.
type deriveCtx struct {
	in      Inputs
	snap    domain.ChainPoolSnapshot
	chainOK bool
	refunds bool
}

// rule is one guard/result pair of the precedence table. Rules are evaluated
// top to bottom; the first match wins and later rules are unreachable.
type rule struct {
	name  string
	match func(d deriveCtx) bool
	apply func(d deriveCtx) domain.PoolState
}

// rules is the ordered precedence table for markets that have an escrow
// contract. The off-chain status participates only in the cancelled and
// resolved guards; everywhere else chain booleans win, including over the
// client clock (a pool reporting bettingOpen past closing_bid stays active).
var rules = []rule{
	{
		name: "cancelled",
		match: func(d deriveCtx) bool {
			return d.in.Market.Status == domain.MarketStatusCancelled ||
				(d.chainOK && d.snap.Cancelled.Value)
		},
		apply: func(d deriveCtx) domain.PoolState {
			// Refund eligibility requires the cancellation to be confirmed
			// on-chain; a database-only cancellation has nothing escrowed to
			// release yet.
			refund := d.refunds && d.chainOK && d.snap.Cancelled.Value &&
				d.in.Bet != nil && !d.in.Bet.Claimed
			return d.state(domain.StateCancelled, domain.BetBlocked, false, refund)
		},
	},
	{
		name: "resolved",
		match: func(d deriveCtx) bool {
			return d.in.Market.Status == domain.MarketStatusResolved ||
				(d.chainOK && d.snap.WinnerSet.Value)
		},
		apply: func(d deriveCtx) domain.PoolState {
			// The database has no concept of which side won; rewards unlock
			// only once the chain has confirmed the winner.
			reward := d.chainOK && d.snap.WinnerSet.Value &&
				d.in.Bet != nil && !d.in.Bet.Claimed &&
				d.in.Bet.Side.AsBool() == d.snap.Winner
			return d.state(domain.StateResolved, domain.BetBlocked, reward, false)
		},
	},
	{
		name: "closed",
		match: func(d deriveCtx) bool {
			return d.chainOK && d.snap.Closed.Value
		},
		apply: func(d deriveCtx) domain.PoolState {
			return d.state(domain.StateClosed, domain.BetBlocked, false, false)
		},
	},
	{
		name: "paused",
		match: func(d deriveCtx) bool {
			return d.chainOK && d.snap.EmergencyStop.Value
		},
		apply: func(d deriveCtx) domain.PoolState {
			return d.state(domain.StatePaused, domain.BetBlocked, false, false)
		},
	},
	{
		name: "active",
		match: func(d deriveCtx) bool {
			return d.chainOK && d.snap.BettingOpen.Value
		},
		apply: func(d deriveCtx) domain.PoolState {
			return d.state(domain.StateActive, d.betGate(), false, false)
		},
	},
	{
		name: "betting_closed",
		match: func(d deriveCtx) bool {
			return d.chainOK && !d.snap.BettingOpen.Value && d.in.Now.Before(d.in.Market.ClosingBid)
		},
		apply: func(d deriveCtx) domain.PoolState {
			return d.state(domain.StateBettingClosed, domain.BetBlocked, false, false)
		},
	},
	{
		name: "awaiting_result",
		match: func(d deriveCtx) bool {
			return d.chainOK && !d.snap.BettingOpen.Value && !d.in.Now.Before(d.in.Market.ClosingBid)
		},
		apply: func(d deriveCtx) domain.PoolState {
			return d.state(domain.StateAwaitingResult, domain.BetBlocked, false, false)
		},
	},
	{
		// Chain unavailable: approximate from the time boundaries alone.
		// This state must not depend on any chain field, and it cannot see
		// manual closes, emergency stops, or on-chain cancellations, so it
		// is flagged degraded.
		name: "fallback",
		match: func(d deriveCtx) bool {
			return !d.chainOK
		},
		apply: func(d deriveCtx) domain.PoolState {
			var s domain.PoolState
			switch {
			case d.in.Now.Before(d.in.Market.ClosingDate):
				s = d.state(domain.StateActive, d.betGate(), false, false)
			case d.in.Now.Before(d.in.Market.ClosingBid):
				s = d.state(domain.StateBettingClosed, domain.BetBlocked, false, false)
			default:
				s = d.state(domain.StateAwaitingResult, domain.BetBlocked, false, false)
			}
			s.Degraded = true
			return s
		},
	},
}

// Derive produces exactly one PoolState from the given inputs. It never
// fails: every sub-source failure has already been folded into the inputs
// (an incomplete snapshot reads as unavailable), and an unknown condition
// surfaces as a degraded state, not an error.
func (r *Reconciler) Derive(in Inputs) domain.PoolState {
	if !in.Market.HasPool() {
		return r.deriveStatusOnly(in)
	}

	d := deriveCtx{in: in, refunds: r.refundsEnabled}
	if in.Snapshot != nil {
		d.snap = *in.Snapshot
		d.chainOK = in.Snapshot.Complete()
	}

	for _, rl := range rules {
		if rl.match(d) {
			return rl.apply(d)
		}
	}

	// Unreachable: the fallback rule matches whenever chainOK is false, and
	// the active/betting_closed/awaiting trio covers every chainOK case.
	return d.state(domain.StateAwaitingResult, domain.BetBlocked, false, false)
}

// deriveStatusOnly maps the five administrative statuses directly onto
// states for markets whose escrow contract has not been deployed. There is
// nothing escrowed, so no claim of any kind is possible.
func (r *Reconciler) deriveStatusOnly(in Inputs) domain.PoolState {
	d := deriveCtx{in: in, refunds: r.refundsEnabled}
	switch in.Market.Status {
	case domain.MarketStatusActive:
		return d.state(domain.StateActive, d.betGate(), false, false)
	case domain.MarketStatusPaused:
		return d.state(domain.StatePaused, domain.BetBlocked, false, false)
	case domain.MarketStatusResolved:
		return d.state(domain.StateResolved, domain.BetBlocked, false, false)
	case domain.MarketStatusCancelled:
		return d.state(domain.StateCancelled, domain.BetBlocked, false, false)
	default: // in_attesa or unknown: contract not yet deployed
		return d.state(domain.StatePending, domain.BetBlocked, false, false)
	}
}

// betGate resolves the tri-state betting decision for a state that would
// otherwise allow betting. Consumers must be able to distinguish a closed
// market from a missing wallet connection.
func (d deriveCtx) betGate() domain.BetGate {
	if !d.in.WalletConnected {
		return domain.BetWalletRequired
	}
	if d.in.Bet != nil {
		return domain.BetAlreadyPlaced
	}
	return domain.BetAllowed
}

func (d deriveCtx) state(label domain.StateLabel, gate domain.BetGate, reward, refund bool) domain.PoolState {
	return domain.PoolState{
		Label:           label,
		CanBet:          gate,
		CanClaimRewards: reward,
		CanClaimRefund:  refund,
		ComputedAt:      d.in.Now,
	}
}
