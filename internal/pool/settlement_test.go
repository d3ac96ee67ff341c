package pool

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/bellanapoli/bellad/internal/domain"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func TestFee(t *testing.T) {
	cases := []struct {
		losing int64
		bps    int64
		want   int64
	}{
		{10_000, 250, 250},  // 2.5%
		{1_000_000, 100, 10_000},
		{1, 250, 0},         // rounds down
		{0, 250, 0},
		{999, 10_000, 999},  // 100% cap case
	}
	for _, tc := range cases {
		got := Fee(bi(tc.losing), tc.bps)
		if got.Int64() != tc.want {
			t.Errorf("Fee(%d, %d) got %d want %d", tc.losing, tc.bps, got.Int64(), tc.want)
		}
	}
}

func TestSettleBasic(t *testing.T) {
	s, err := Settle(bi(6_000_000), bi(4_000_000), true, 250)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if s.WinningPot.Int64() != 6_000_000 || s.LosingPot.Int64() != 4_000_000 {
		t.Fatalf("pots got %v/%v", s.WinningPot, s.LosingPot)
	}
	if s.FeeAmount.Int64() != 100_000 {
		t.Fatalf("fee got %d want 100000", s.FeeAmount.Int64())
	}
	if s.NetLosingPot.Int64() != 3_900_000 {
		t.Fatalf("net losing pot got %d want 3900000", s.NetLosingPot.Int64())
	}
}

func TestSettleNoWinners(t *testing.T) {
	_, err := Settle(bi(0), bi(5_000_000), true, 250)
	if !errors.Is(err, domain.ErrNoWinningPot) {
		t.Fatalf("got %v want ErrNoWinningPot", err)
	}
	// Winner on the other side: pots swap, same degenerate case.
	_, err = Settle(bi(5_000_000), bi(0), false, 250)
	if !errors.Is(err, domain.ErrNoWinningPot) {
		t.Fatalf("got %v want ErrNoWinningPot", err)
	}
}

func TestWinnerPayoutSingleWinnerTakesNetPot(t *testing.T) {
	s, err := Settle(bi(1_000_000), bi(9_000_000), true, 250)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	payout, err := WinnerPayout(bi(1_000_000), s)
	if err != nil {
		t.Fatalf("WinnerPayout: %v", err)
	}
	want := bi(0).Add(s.WinningPot, s.NetLosingPot)
	if payout.Cmp(want) != 0 {
		t.Fatalf("payout got %v want %v", payout, want)
	}
}

// P5: the sum of all winners' payouts equals winningPot + netLosingPot to
// within integer rounding, and never exceeds winningPot + losingPot - fee.
func TestRedistributionConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(20)
		stakes := make([]*big.Int, n)
		winning := new(big.Int)
		for i := range stakes {
			stakes[i] = bi(1 + rng.Int63n(10_000_000))
			winning.Add(winning, stakes[i])
		}
		losing := bi(rng.Int63n(50_000_000))
		feeBps := rng.Int63n(1_000)

		s, err := Settle(winning, losing, true, feeBps)
		if err != nil {
			t.Fatalf("Settle: %v", err)
		}

		total := new(big.Int)
		for _, stake := range stakes {
			payout, err := WinnerPayout(stake, s)
			if err != nil {
				t.Fatalf("WinnerPayout: %v", err)
			}
			total.Add(total, payout)
		}

		exact := new(big.Int).Add(s.WinningPot, s.NetLosingPot)
		diff := new(big.Int).Sub(exact, total)
		if diff.Sign() < 0 {
			t.Fatalf("trial %d: payouts %v exceed available %v", trial, total, exact)
		}
		// Floor division loses less than one smallest unit per winner.
		if diff.Cmp(bi(int64(n))) >= 0 {
			t.Fatalf("trial %d: rounding loss %v exceeds winner count %d", trial, diff, n)
		}

		ceiling := new(big.Int).Add(s.WinningPot, s.LosingPot)
		ceiling.Sub(ceiling, s.FeeAmount)
		if total.Cmp(ceiling) > 0 {
			t.Fatalf("trial %d: payouts %v exceed pool cap %v", trial, total, ceiling)
		}
	}
}

func TestRewardClaimable(t *testing.T) {
	snap := *completeSnapshot(false, false, false, true, true, true)

	if !RewardClaimable(snap, yesBet(false)) {
		t.Fatal("unclaimed winning bet must be claimable")
	}
	if RewardClaimable(snap, yesBet(true)) {
		t.Fatal("claimed bet must not be claimable")
	}
	if RewardClaimable(snap, nil) {
		t.Fatal("missing bet must not be claimable")
	}

	losing := yesBet(false)
	losing.Side = domain.BetSideNo
	if RewardClaimable(snap, losing) {
		t.Fatal("losing side must not be claimable")
	}

	// Winner not confirmed on-chain.
	unset := *completeSnapshot(false, false, false, true, false, false)
	if RewardClaimable(unset, yesBet(false)) {
		t.Fatal("reward requires a chain-confirmed winner")
	}
}

func TestRefundEligible(t *testing.T) {
	cancelled := *completeSnapshot(false, false, true, false, false, false)
	if !RefundEligible(cancelled, yesBet(false)) {
		t.Fatal("unclaimed bet on a cancelled pool must be refund-eligible")
	}
	if RefundEligible(cancelled, yesBet(true)) {
		t.Fatal("claimed bet must not be refund-eligible")
	}

	notCancelled := *completeSnapshot(false, false, false, false, false, false)
	if RefundEligible(notCancelled, yesBet(false)) {
		t.Fatal("refund is only meaningful for cancelled pools")
	}

	unavailable := domain.ChainPoolSnapshot{Cancelled: domain.BoolField{Value: true}}
	if RefundEligible(unavailable, yesBet(false)) {
		t.Fatal("an unavailable cancellation read must not grant refunds")
	}
}
