package domain

import "time"

// StateLabel is the single normalized lifecycle state of a market, derived by
// the reconciler from chain, database, and wall-clock inputs.
type StateLabel string

const (
	StateCancelled      StateLabel = "cancelled"
	StateResolved       StateLabel = "resolved"
	StateClosed         StateLabel = "closed"          // manually closed on-chain, awaiting resolution
	StatePaused         StateLabel = "paused"          // emergency stop
	StateActive         StateLabel = "active"
	StateBettingClosed  StateLabel = "betting_closed"  // betting window elapsed, pre-deadline
	StateAwaitingResult StateLabel = "awaiting_result" // past the hard deadline, unresolved
	StatePending        StateLabel = "pending"         // escrow contract not yet deployed
)

// BetGate is the tri-state betting decision. Consumers must be able to tell
// "you may not bet because the market is closed" apart from "you may not bet
// because no wallet is connected".
type BetGate string

const (
	BetAllowed        BetGate = "allowed"
	BetBlocked        BetGate = "blocked"
	BetAlreadyPlaced  BetGate = "already_placed"
	BetWalletRequired BetGate = "wallet_required"
)

// Allowed reports whether a bet may be placed right now.
func (g BetGate) Allowed() bool { return g == BetAllowed }

// PoolState is the reconciler's output: one normalized, fully-populated view
// per market per refresh cycle. It is a pure function of (Market,
// ChainPoolSnapshot|unavailable, UserBet|none, now) and is never partially
// updated.
type PoolState struct {
	Label           StateLabel `json:"label"`
	CanBet          BetGate    `json:"can_bet"`
	CanClaimRewards bool       `json:"can_claim_rewards"`
	CanClaimRefund  bool       `json:"can_claim_refund"`

	// Degraded marks states produced by the time-only fallback when chain
	// reads were unavailable. A degraded state cannot reflect manual closes,
	// emergency stops, or cancellations that happened purely on-chain.
	Degraded bool `json:"degraded"`

	ComputedAt time.Time `json:"computed_at"`
}

func (p PoolState) IsActive() bool    { return p.Label == StateActive }
func (p PoolState) IsPaused() bool    { return p.Label == StatePaused }
func (p PoolState) IsCancelled() bool { return p.Label == StateCancelled }
func (p PoolState) IsResolved() bool  { return p.Label == StateResolved }

// PoolStateUpdate is what the shared poller fans out to subscribers after
// each refresh cycle.
type PoolStateUpdate struct {
	Market     Market             `json:"market"`
	Snapshot   *ChainPoolSnapshot `json:"-"`
	State      PoolState          `json:"state"`
	Aggregates *PoolAggregates    `json:"aggregates,omitempty"`
}
