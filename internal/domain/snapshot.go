package domain

import (
	"math/big"
	"time"
)

// BoolField is an on-chain boolean together with whether the read that
// produced it succeeded. A failed read is distinct from false: the reconciler
// must never coerce an unavailable field to a value.
type BoolField struct {
	Value bool
	OK    bool
}

// ChainPoolSnapshot is a point-in-time view of one escrow contract, assembled
// from reads issued back-to-back within a single refresh cycle. It is never
// persisted; every cycle re-derives it from the chain. Fields may observe
// slightly different blocks, which is an accepted limitation.
type ChainPoolSnapshot struct {
	BettingOpen   BoolField
	EmergencyStop BoolField
	Cancelled     BoolField
	Closed        BoolField
	WinnerSet     BoolField
	Winner        bool // meaningful only when WinnerSet is OK and true

	TotalYes    *big.Int
	TotalNo     *big.Int
	BettorCount int64

	TakenAt time.Time
}

// Complete reports whether every field the state derivation depends on was
// read successfully. A snapshot with any required field unavailable degrades
// the whole refresh to the time-only fallback; partial snapshots are never
// used to produce a PoolState.
func (s ChainPoolSnapshot) Complete() bool {
	return s.BettingOpen.OK && s.EmergencyStop.OK && s.Cancelled.OK &&
		s.Closed.OK && s.WinnerSet.OK
}

// PoolStats mirrors the escrow contract's getPoolStats() tuple.
type PoolStats struct {
	TotalYes    *big.Int
	TotalNo     *big.Int
	TotalBets   int64
	BettorCount int64
	Closed      bool
	WinnerSet   bool
	Winner      bool
}

// FeeInfo mirrors the escrow contract's getFeeInfo() tuple. FeeBps is the
// basis-points cut of the losing pot; FeeSent flips exactly once, when the
// fee is paid out at resolution.
type FeeInfo struct {
	FeeWallet     string
	FeeBps        int64
	FeeCalculated bool
	FeeSent       bool
}

// RedistributionInfo mirrors the escrow contract's getRedistributionInfo()
// tuple, all amounts in smallest units.
type RedistributionInfo struct {
	WinningPot          *big.Int
	LosingPot           *big.Int
	FeeAmount           *big.Int
	NetLosingPot        *big.Int
	TotalRedistribution *big.Int
}

// PoolInfo mirrors the escrow contract's getPoolInfo() tuple.
type PoolInfo struct {
	Title       string
	Description string
	Category    string
	ClosingDate time.Time
	ClosingBid  time.Time
}
