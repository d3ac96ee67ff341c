package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bellanapoli/bellad/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Stake amounts are
// NUMERIC(78,0) columns moved across the wire as decimal strings so no
// precision is lost on uint256-sized values.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, market_id, wallet, amount::text, side, claimed, tx_hash, placed_at`

// Create inserts a bet. The UNIQUE (market_id, wallet) constraint enforces
// the one-bet-per-wallet rule at the database level; a violation surfaces as
// domain.ErrBetExists.
func (s *BetStore) Create(ctx context.Context, bet domain.UserBet) error {
	const query = `
		INSERT INTO bets (id, market_id, wallet, amount, side, claimed, tx_hash, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		bet.ID, bet.MarketID, bet.Wallet, bet.Amount.String(),
		string(bet.Side), bet.Claimed, bet.TxHash, bet.PlacedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBetExists
		}
		return fmt.Errorf("postgres: create bet %s: %w", bet.ID, err)
	}
	return nil
}

// MarkClaimed flips a bet's claimed flag. A bet already claimed is reported
// as domain.ErrAlreadyClaimed; the flag never flips back.
func (s *BetStore) MarkClaimed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE id = $1 AND claimed = FALSE`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark bet %s claimed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check bet %s: %w", id, err)
		}
		if exists {
			return domain.ErrAlreadyClaimed
		}
		return domain.ErrNotFound
	}
	return nil
}

func scanBet(row pgx.Row) (domain.UserBet, error) {
	var b domain.UserBet
	var amount, side string
	err := row.Scan(
		&b.ID, &b.MarketID, &b.Wallet, &amount, &side,
		&b.Claimed, &b.TxHash, &b.PlacedAt,
	)
	if err != nil {
		return domain.UserBet{}, err
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return domain.UserBet{}, fmt.Errorf("postgres: bet %s has malformed amount %q", b.ID, amount)
	}
	b.Amount = v
	b.Side = domain.BetSide(side)
	return b, nil
}

// GetByMarketAndWallet retrieves the single bet a wallet holds on a market.
func (s *BetStore) GetByMarketAndWallet(ctx context.Context, marketID, wallet string) (domain.UserBet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 AND wallet = $2`,
		marketID, wallet)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.UserBet{}, domain.ErrNotFound
		}
		return domain.UserBet{}, fmt.Errorf("postgres: get bet for market %s wallet %s: %w", marketID, wallet, err)
	}
	return b, nil
}

// ListByMarket returns a market's bets, newest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	return s.list(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY placed_at DESC`,
		marketID, opts)
}

// ListByWallet returns a wallet's bets across markets, newest first.
func (s *BetStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.UserBet, error) {
	return s.list(ctx,
		`SELECT `+betCols+` FROM bets WHERE wallet = $1 ORDER BY placed_at DESC`,
		wallet, opts)
}

func (s *BetStore) list(ctx context.Context, query, key string, opts domain.ListOpts) ([]domain.UserBet, error) {
	args := []any{key}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.UserBet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// SumBySide returns the aggregate stake on one side of a market. A market
// with no bets yields zero.
func (s *BetStore) SumBySide(ctx context.Context, marketID string, side domain.BetSide) (*big.Int, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM bets WHERE market_id = $1 AND side = $2`,
		marketID, string(side)).Scan(&sum)
	if err != nil {
		return nil, fmt.Errorf("postgres: sum %s bets for market %s: %w", side, marketID, err)
	}
	v, ok := new(big.Int).SetString(sum, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed sum %q for market %s", sum, marketID)
	}
	return v, nil
}

// CountBettors returns the number of distinct wallets with a bet on a market.
func (s *BetStore) CountBettors(ctx context.Context, marketID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT wallet) FROM bets WHERE market_id = $1`,
		marketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count bettors for market %s: %w", marketID, err)
	}
	return count, nil
}

// TopBettors returns the largest stakes on a market, biggest first.
func (s *BetStore) TopBettors(ctx context.Context, marketID string, limit int) ([]domain.UserBet, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY amount DESC LIMIT $2`,
		marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top bettors for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var bets []domain.UserBet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan top bettor: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top bettors rows: %w", err)
	}
	return bets, nil
}
