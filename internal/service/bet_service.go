package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/pool"
)

// BetService validates and records bets and claims. The stake itself moves
// on-chain from the user's wallet; this service keeps the off-chain mirror
// consistent and enforces the placement gate server-side so a stale client
// cannot slip a bet past a closed pool.
type BetService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	snaps   domain.SnapshotCache
	audit   domain.AuditStore
	poller  *pool.Poller
	rec     *pool.Reconciler
	logger  *slog.Logger
}

// NewBetService creates a BetService with all required dependencies.
func NewBetService(
	markets domain.MarketStore,
	bets domain.BetStore,
	snaps domain.SnapshotCache,
	audit domain.AuditStore,
	poller *pool.Poller,
	rec *pool.Reconciler,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		markets: markets,
		bets:    bets,
		snaps:   snaps,
		audit:   audit,
		poller:  poller,
		rec:     rec,
		logger:  logger.With(slog.String("component", "bet_service")),
	}
}

// PlaceBetInput carries one bet placement request.
type PlaceBetInput struct {
	MarketID string
	Wallet   string
	Side     domain.BetSide
	Amount   *big.Int
	TxHash   string
}

// PlaceBet records a bet after re-deriving the pool state for the requesting
// wallet and checking the placement gate. Timed refreshes for the pool are
// suspended while the write is in flight so a concurrent poll cannot race the
// pending record.
func (s *BetService) PlaceBet(ctx context.Context, in PlaceBetInput) (domain.UserBet, error) {
	if in.Wallet == "" {
		return domain.UserBet{}, domain.ErrWalletRequired
	}
	if !in.Side.Valid() {
		return domain.UserBet{}, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidMarket, in.Side)
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return domain.UserBet{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidMarket)
	}

	market, err := s.markets.GetByID(ctx, in.MarketID)
	if err != nil {
		return domain.UserBet{}, err
	}

	state, existing, err := s.stateFor(ctx, market, in.Wallet)
	if err != nil {
		return domain.UserBet{}, err
	}
	switch state.CanBet {
	case domain.BetAllowed:
	case domain.BetAlreadyPlaced:
		return existing, domain.ErrBetExists
	case domain.BetWalletRequired:
		return domain.UserBet{}, domain.ErrWalletRequired
	default:
		return domain.UserBet{}, domain.ErrBettingClosed
	}

	resume := s.poller.Suspend(market.PoolAddress)
	defer resume()

	bet := domain.UserBet{
		ID:       uuid.New().String(),
		MarketID: market.ID,
		Wallet:   in.Wallet,
		Amount:   new(big.Int).Set(in.Amount),
		Side:     in.Side,
		TxHash:   in.TxHash,
		PlacedAt: time.Now().UTC(),
	}
	if err := s.bets.Create(ctx, bet); err != nil {
		return domain.UserBet{}, err
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("market_id", market.ID),
		slog.String("wallet", in.Wallet),
		slog.String("side", string(in.Side)),
		slog.String("amount", bet.Amount.String()),
	)
	return bet, nil
}

// ClaimKind distinguishes the two single-shot claim paths.
type ClaimKind string

const (
	ClaimReward ClaimKind = "reward"
	ClaimRefund ClaimKind = "refund"
)

// RecordClaim marks a bet as claimed after verifying eligibility against the
// chain-confirmed snapshot. Claims are single-shot: a bet that has claimed,
// in either direction, never claims again.
func (s *BetService) RecordClaim(ctx context.Context, marketID, wallet string, kind ClaimKind, txHash string) error {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return err
	}
	bet, err := s.bets.GetByMarketAndWallet(ctx, marketID, wallet)
	if err != nil {
		return err
	}
	if bet.Claimed {
		return domain.ErrAlreadyClaimed
	}
	if !market.HasPool() {
		return domain.ErrChainUnavailable
	}

	snap, err := s.snapshot(ctx, market.PoolAddress)
	if err != nil {
		return err
	}

	switch kind {
	case ClaimReward:
		if !pool.RewardClaimable(snap, &bet) {
			return fmt.Errorf("%w: reward not claimable", domain.ErrUnauthorized)
		}
	case ClaimRefund:
		if !pool.RefundEligible(snap, &bet) {
			return fmt.Errorf("%w: refund not available", domain.ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: unknown claim kind %q", domain.ErrUnauthorized, kind)
	}

	if err := s.bets.MarkClaimed(ctx, bet.ID); err != nil {
		return err
	}

	if err := s.audit.Log(ctx, "claim_recorded", map[string]any{
		"market_id": marketID,
		"wallet":    wallet,
		"kind":      string(kind),
		"tx_hash":   txHash,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.poller.Refresh(market.PoolAddress)
	return nil
}

// ListByWallet returns a wallet's bets across markets.
func (s *BetService) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.UserBet, error) {
	if wallet == "" {
		return nil, domain.ErrWalletRequired
	}
	return s.bets.ListByWallet(ctx, wallet, opts)
}

// TopBettors returns the largest stakes on a market.
func (s *BetService) TopBettors(ctx context.Context, marketID string, limit int) ([]domain.UserBet, error) {
	return s.bets.TopBettors(ctx, marketID, limit)
}

// stateFor derives the pool state for one wallet, returning the wallet's
// existing bet alongside when there is one.
func (s *BetService) stateFor(ctx context.Context, market domain.Market, wallet string) (domain.PoolState, domain.UserBet, error) {
	var (
		betPtr   *domain.UserBet
		existing domain.UserBet
	)
	b, err := s.bets.GetByMarketAndWallet(ctx, market.ID, wallet)
	switch {
	case err == nil:
		existing = b
		betPtr = &b
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.PoolState{}, domain.UserBet{}, err
	}

	var snapPtr *domain.ChainPoolSnapshot
	if market.HasPool() {
		snap, err := s.snapshot(ctx, market.PoolAddress)
		if err == nil {
			snapPtr = &snap
		}
	}

	state := s.rec.Derive(pool.Inputs{
		Market:          market,
		Snapshot:        snapPtr,
		Bet:             betPtr,
		WalletConnected: true,
		Now:             time.Now().UTC(),
	})
	return state, existing, nil
}

// snapshot returns the cached snapshot for a pool, fetching live on a miss.
// Placement and claims refuse to proceed without chain truth.
func (s *BetService) snapshot(ctx context.Context, poolAddress string) (domain.ChainPoolSnapshot, error) {
	snap, err := s.snaps.Get(ctx, poolAddress)
	if err == nil {
		return snap, nil
	}
	snap = s.poller.FetchSnapshot(ctx, poolAddress)
	if !snap.Complete() {
		return snap, domain.ErrChainUnavailable
	}
	return snap, nil
}
