package domain

import (
	"context"
	"math/big"
	"time"
)

// ChainBet is a wallet's stake as reported by the escrow contract.
type ChainBet struct {
	Amount    *big.Int
	Side      BetSide
	Claimed   bool
	Timestamp time.Time
}

// PoolReader is the read-only accessor over one escrow contract. It is the
// sole authority for on-chain truth. Every call may fail independently
// (network or RPC error); a failure surfaces as an error, never as a value
// silently coerced to false or true. No method carries mutation rights.
type PoolReader interface {
	BettingOpen(ctx context.Context, poolAddress string) (bool, error)
	EmergencyStopped(ctx context.Context, poolAddress string) (bool, error)
	Cancelled(ctx context.Context, poolAddress string) (bool, error)
	Stats(ctx context.Context, poolAddress string) (PoolStats, error)
	FeeInfo(ctx context.Context, poolAddress string) (FeeInfo, error)
	RedistributionInfo(ctx context.Context, poolAddress string) (RedistributionInfo, error)
	Info(ctx context.Context, poolAddress string) (PoolInfo, error)
	// UserBet returns ErrNotFound when the wallet has no bet on the pool.
	UserBet(ctx context.Context, poolAddress, wallet string) (ChainBet, error)
}

// FactoryReader enumerates deployed escrow pools from the factory contract.
type FactoryReader interface {
	Pools(ctx context.Context) ([]string, error)
}

// PoolWriter is the admin transaction surface of the escrow contract. Each
// call submits a signed transaction and returns its hash; none of them waits
// for confirmation, which is the poller's job to observe.
type PoolWriter interface {
	SetWinner(ctx context.Context, poolAddress string, winner bool) (txHash string, err error)
	SetEmergencyStop(ctx context.Context, poolAddress string, stopped bool) (txHash string, err error)
	CancelPool(ctx context.Context, poolAddress, reason string) (txHash string, err error)
	EmergencyResolve(ctx context.Context, poolAddress string, winner bool, reason string) (txHash string, err error)
}
