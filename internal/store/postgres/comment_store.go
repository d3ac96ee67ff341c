package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bellanapoli/bellad/internal/domain"
)

// CommentStore implements domain.CommentStore using PostgreSQL.
type CommentStore struct {
	pool *pgxpool.Pool
}

// NewCommentStore creates a new CommentStore backed by the given connection pool.
func NewCommentStore(pool *pgxpool.Pool) *CommentStore {
	return &CommentStore{pool: pool}
}

// Create inserts a comment.
func (s *CommentStore) Create(ctx context.Context, c domain.Comment) error {
	const query = `
		INSERT INTO comments (id, market_id, wallet, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, c.ID, c.MarketID, c.Wallet, c.Body, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create comment %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes a comment.
func (s *CommentStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete comment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByMarket returns a market's comments, newest first.
func (s *CommentStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Comment, error) {
	query := `SELECT id, market_id, wallet, body, created_at
		FROM comments WHERE market_id = $1 ORDER BY created_at DESC`
	args := []any{marketID}
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
		return nil, fmt.Errorf("postgres: list comments for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.MarketID, &c.Wallet, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list comments rows: %w", err)
	}
	return comments, nil
}
