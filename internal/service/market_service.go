// Package service contains the application use-cases: market lifecycle,
// bet placement, discussion, and admin settlement.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/pool"
)

// MarketView is a market joined with its derived pool state and cached
// aggregates, shaped for one requesting wallet.
type MarketView struct {
	Market     domain.Market          `json:"market"`
	State      domain.PoolState       `json:"state"`
	Aggregates *domain.PoolAggregates `json:"aggregates,omitempty"`
	UserBet    *domain.UserBet        `json:"user_bet,omitempty"`
}

// MarketService serves market reads and admin market writes. Reads derive the
// pool state from the cached chain snapshot; a cache miss falls back to a
// live fetch so a cold start still renders correctly.
type MarketService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	snaps   domain.SnapshotCache
	aggs    domain.AggregateCache
	poller  *pool.Poller
	rec     *pool.Reconciler
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	bets domain.BetStore,
	snaps domain.SnapshotCache,
	aggs domain.AggregateCache,
	poller *pool.Poller,
	rec *pool.Reconciler,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		bets:    bets,
		snaps:   snaps,
		aggs:    aggs,
		poller:  poller,
		rec:     rec,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarketInput carries the fields an admin supplies for a new market.
type CreateMarketInput struct {
	Slug        string
	Title       string
	Description string
	Category    string
	ImageURL    string
	ClosingDate time.Time
	ClosingBid  time.Time
}

func (in CreateMarketInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidMarket)
	case strings.TrimSpace(in.Slug) == "":
		return fmt.Errorf("%w: slug is required", domain.ErrInvalidMarket)
	case in.ClosingDate.IsZero() || in.ClosingBid.IsZero():
		return fmt.Errorf("%w: closing dates are required", domain.ErrInvalidMarket)
	case in.ClosingBid.Before(in.ClosingDate):
		return fmt.Errorf("%w: closing_bid must not precede closing_date", domain.ErrInvalidMarket)
	}
	return nil
}

// Create registers a new market in the pending status. The escrow contract is
// attached later via SetPoolAddress once deployed.
func (s *MarketService) Create(ctx context.Context, in CreateMarketInput) (domain.Market, error) {
	if err := in.validate(); err != nil {
		return domain.Market{}, err
	}

	m := domain.Market{
		ID:          uuid.New().String(),
		Slug:        strings.TrimSpace(in.Slug),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		ClosingDate: in.ClosingDate.UTC(),
		ClosingBid:  in.ClosingBid.UTC(),
		Status:      domain.MarketStatusPending,
	}
	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, err
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("slug", m.Slug),
	)
	return m, nil
}

// Update rewrites a market's descriptive fields.
func (s *MarketService) Update(ctx context.Context, m domain.Market) error {
	if m.ClosingBid.Before(m.ClosingDate) {
		return fmt.Errorf("%w: closing_bid must not precede closing_date", domain.ErrInvalidMarket)
	}
	return s.markets.Update(ctx, m)
}

// SetPoolAddress attaches a deployed escrow contract to a pending market and
// moves it to the active status.
func (s *MarketService) SetPoolAddress(ctx context.Context, id, poolAddress string) error {
	if poolAddress == "" {
		return fmt.Errorf("%w: pool address is required", domain.ErrInvalidMarket)
	}
	if err := s.markets.SetPoolAddress(ctx, id, poolAddress); err != nil {
		return err
	}
	return s.markets.UpdateStatus(ctx, id, domain.MarketStatusActive)
}

// GetByID returns one market shaped for the requesting wallet. An empty
// wallet renders the anonymous view.
func (s *MarketService) GetByID(ctx context.Context, id, wallet string) (MarketView, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return MarketView{}, err
	}
	return s.view(ctx, m, wallet)
}

// GetBySlug returns one market by URL slug, shaped for the requesting wallet.
func (s *MarketService) GetBySlug(ctx context.Context, slug, wallet string) (MarketView, error) {
	m, err := s.markets.GetBySlug(ctx, slug)
	if err != nil {
		return MarketView{}, err
	}
	return s.view(ctx, m, wallet)
}

// List returns markets, optionally filtered by status, each with its derived
// state. List views are always anonymous; per-wallet shaping happens on the
// detail endpoint.
func (s *MarketService) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]MarketView, error) {
	var (
		markets []domain.Market
		err     error
	)
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidMarket, status)
		}
		markets, err = s.markets.ListByStatus(ctx, status, opts)
	} else {
		markets, err = s.markets.List(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		v, err := s.view(ctx, m, "")
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Delete removes a market and all dependent records. Admin only.
func (s *MarketService) Delete(ctx context.Context, id string) error {
	return s.markets.Delete(ctx, id)
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	return s.markets.Count(ctx)
}

// view joins a market with its snapshot, aggregates, and the wallet's bet,
// then derives the pool state.
func (s *MarketService) view(ctx context.Context, m domain.Market, wallet string) (MarketView, error) {
	v := MarketView{Market: m}

	var bet *domain.UserBet
	if wallet != "" {
		b, err := s.bets.GetByMarketAndWallet(ctx, m.ID, wallet)
		switch {
		case err == nil:
			bet = &b
			v.UserBet = &b
		case errors.Is(err, domain.ErrNotFound):
		default:
			return MarketView{}, err
		}
	}

	var snap *domain.ChainPoolSnapshot
	if m.HasPool() {
		sn, err := s.snapshot(ctx, m.PoolAddress)
		if err == nil {
			snap = &sn
		}
	}

	v.State = s.rec.Derive(pool.Inputs{
		Market:          m,
		Snapshot:        snap,
		Bet:             bet,
		WalletConnected: wallet != "",
		Now:             time.Now().UTC(),
	})

	if agg, err := s.aggs.Get(ctx, m.ID); err == nil {
		v.Aggregates = &agg
	}
	return v, nil
}

// snapshot returns the cached chain snapshot for a pool, fetching live on a
// cache miss so cold pools still derive from chain truth.
func (s *MarketService) snapshot(ctx context.Context, poolAddress string) (domain.ChainPoolSnapshot, error) {
	snap, err := s.snaps.Get(ctx, poolAddress)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "snapshot cache read failed",
			slog.String("pool", poolAddress),
			slog.String("error", err.Error()),
		)
	}

	snap = s.poller.FetchSnapshot(ctx, poolAddress)
	if !snap.Complete() {
		return snap, domain.ErrChainUnavailable
	}
	if err := s.snaps.Set(ctx, poolAddress, snap); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache write failed",
			slog.String("pool", poolAddress),
			slog.String("error", err.Error()),
		)
	}
	return snap, nil
}
