package domain

import (
	"math/big"
	"time"
)

// BetSide is the side of a binary market a bettor staked on.
type BetSide string

const (
	BetSideYes BetSide = "yes"
	BetSideNo  BetSide = "no"
)

// Valid reports whether s is a known side.
func (s BetSide) Valid() bool {
	return s == BetSideYes || s == BetSideNo
}

// AsBool maps the side onto the escrow contract's boolean choice encoding
// (true = yes).
func (s BetSide) AsBool() bool {
	return s == BetSideYes
}

// UserBet is one wallet's stake in one market. At most one bet exists per
// (market, wallet) pair; Claimed flips exactly once, at a successful reward
// or refund claim, and no further claim of any kind is permitted after that.
type UserBet struct {
	ID       string    `json:"id"`
	MarketID string    `json:"market_id"`
	Wallet   string    `json:"wallet"`
	Amount   *big.Int  `json:"amount"` // smallest-unit stake, always > 0
	Side     BetSide   `json:"side"`
	Claimed  bool      `json:"claimed"`
	TxHash   string    `json:"tx_hash"`
	PlacedAt time.Time `json:"placed_at"`
}

// Comment is an off-chain discussion entry attached to a market.
type Comment struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Wallet    string    `json:"wallet"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// PoolAggregates are the slow-cadence stats shown on market cards: pool
// volumes per side, bettor count, and the most recent bets. Amounts are
// decimal strings of smallest-unit integers so they survive JSON round trips.
type PoolAggregates struct {
	MarketID    string    `json:"market_id"`
	TotalYes    string    `json:"total_yes"`
	TotalNo     string    `json:"total_no"`
	BettorCount int64     `json:"bettor_count"`
	RecentBets  []UserBet `json:"recent_bets"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// YesPercent returns the share of total volume staked on yes, in percent.
// Missing or zero aggregates degrade to zero rather than an error.
func (a PoolAggregates) YesPercent() float64 {
	yes, okY := new(big.Int).SetString(a.TotalYes, 10)
	no, okN := new(big.Int).SetString(a.TotalNo, 10)
	if !okY || !okN {
		return 0
	}
	total := new(big.Int).Add(yes, no)
	if total.Sign() == 0 {
		return 0
	}
	yf, _ := new(big.Float).SetInt(yes).Float64()
	tf, _ := new(big.Float).SetInt(total).Float64()
	return yf / tf * 100
}
