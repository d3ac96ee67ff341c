package pool

import (
	"math/big"

	"github.com/bellanapoli/bellad/internal/domain"
)

// bpsDenominator is the basis-points scale used by the escrow contracts.
const bpsDenominator = 10_000

// Fee returns the fee cut of the losing pot: losingPot * feeBps / 10000,
// rounded down. The fee is taken once per resolution, from the losing side
// only; the winning side's stakes are returned whole.
func Fee(losingPot *big.Int, feeBps int64) *big.Int {
	fee := new(big.Int).Mul(losingPot, big.NewInt(feeBps))
	return fee.Quo(fee, big.NewInt(bpsDenominator))
}

// Settlement is the money flow of one resolved pool, all amounts in smallest
// units.
type Settlement struct {
	WinningPot   *big.Int
	LosingPot    *big.Int
	FeeAmount    *big.Int
	NetLosingPot *big.Int
}

// Settle computes the pool-level money flow for a resolution in favor of
// winnerYes. When nobody bet on the winning side there is no proportional
// split to perform: Settle returns domain.ErrNoWinningPot, and policy is to
// treat every stake as refundable exactly as in a cancellation (no fee is
// taken, since there is no redistribution to cut).
func Settle(totalYes, totalNo *big.Int, winnerYes bool, feeBps int64) (Settlement, error) {
	winning, losing := totalYes, totalNo
	if !winnerYes {
		winning, losing = totalNo, totalYes
	}
	if winning == nil || winning.Sign() == 0 {
		return Settlement{}, domain.ErrNoWinningPot
	}
	if losing == nil {
		losing = new(big.Int)
	}

	fee := Fee(losing, feeBps)
	net := new(big.Int).Sub(losing, fee)

	return Settlement{
		WinningPot:   new(big.Int).Set(winning),
		LosingPot:    new(big.Int).Set(losing),
		FeeAmount:    fee,
		NetLosingPot: net,
	}, nil
}

// WinnerPayout returns a single winner's total payout: the original stake
// plus a pro-rata share of the net losing pot,
//
//	stake + stake * netLosingPot / winningPot
//
// rounded down. Rounding dust stays in the contract; the sum of all payouts
// therefore never exceeds winningPot + netLosingPot.
func WinnerPayout(stake *big.Int, s Settlement) (*big.Int, error) {
	if s.WinningPot == nil || s.WinningPot.Sign() == 0 {
		return nil, domain.ErrNoWinningPot
	}
	share := new(big.Int).Mul(stake, s.NetLosingPot)
	share.Quo(share, s.WinningPot)
	return share.Add(share, stake), nil
}

// RewardClaimable reports whether a bet can claim winnings from a resolved
// pool. The winner must come from a chain-confirmed snapshot; a
// database-only resolution carries no winner. A claimed bet can never claim
// again.
func RewardClaimable(snap domain.ChainPoolSnapshot, bet *domain.UserBet) bool {
	if bet == nil || bet.Claimed {
		return false
	}
	if !snap.WinnerSet.OK || !snap.WinnerSet.Value {
		return false
	}
	return bet.Side.AsBool() == snap.Winner
}

// RefundEligible reports whether a bet can reclaim its stake from a
// cancelled pool: the cancellation must be confirmed on-chain, the bet must
// exist, and it must not have claimed before. Whether the refund path is
// actually surfaced is a separate policy switch on the Reconciler.
func RefundEligible(snap domain.ChainPoolSnapshot, bet *domain.UserBet) bool {
	if bet == nil || bet.Claimed {
		return false
	}
	return snap.Cancelled.OK && snap.Cancelled.Value
}
