package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists off-chain market records. Status is mutated only by
// administrator action or a settlement event; markets are never hard-deleted
// while bets reference them except through explicit admin cascade.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	UpdateStatus(ctx context.Context, id string, status MarketStatus) error
	SetPoolAddress(ctx context.Context, id, poolAddress string) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	GetByPoolAddress(ctx context.Context, poolAddress string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	Delete(ctx context.Context, id string) error // admin cascade-delete only
	Count(ctx context.Context) (int64, error)
}

// BetStore persists off-chain bet records mirroring on-chain stakes.
type BetStore interface {
	Create(ctx context.Context, bet UserBet) error
	MarkClaimed(ctx context.Context, id string) error
	GetByMarketAndWallet(ctx context.Context, marketID, wallet string) (UserBet, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]UserBet, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]UserBet, error)
	// SumBySide returns the aggregate stake for one side of a market; a
	// market with no bets yields zero, not an error.
	SumBySide(ctx context.Context, marketID string, side BetSide) (*big.Int, error)
	CountBettors(ctx context.Context, marketID string) (int64, error)
	TopBettors(ctx context.Context, marketID string, limit int) ([]UserBet, error)
}

// CommentStore persists market discussion entries.
type CommentStore interface {
	Create(ctx context.Context, c Comment) error
	Delete(ctx context.Context, id string) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Comment, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only trail of admin and settlement actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
