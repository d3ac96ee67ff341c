package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bellanapoli/bellad/internal/domain"
)

// maxCommentLen caps comment bodies. The frontend enforces the same limit.
const maxCommentLen = 2000

// CommentService manages market discussion entries.
type CommentService struct {
	markets  domain.MarketStore
	comments domain.CommentStore
	logger   *slog.Logger
}

// NewCommentService creates a CommentService.
func NewCommentService(markets domain.MarketStore, comments domain.CommentStore, logger *slog.Logger) *CommentService {
	return &CommentService{
		markets:  markets,
		comments: comments,
		logger:   logger.With(slog.String("component", "comment_service")),
	}
}

// Create adds a comment to a market. Commenting requires a connected wallet
// but no bet; closed and resolved markets still accept discussion.
func (s *CommentService) Create(ctx context.Context, marketID, wallet, body string) (domain.Comment, error) {
	if wallet == "" {
		return domain.Comment{}, domain.ErrWalletRequired
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, fmt.Errorf("%w: empty comment", domain.ErrInvalidMarket)
	}
	if len(body) > maxCommentLen {
		return domain.Comment{}, fmt.Errorf("%w: comment exceeds %d characters", domain.ErrInvalidMarket, maxCommentLen)
	}

	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return domain.Comment{}, err
	}

	c := domain.Comment{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		Wallet:    wallet,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// Delete removes a comment. Admin moderation path; ownership checks happen at
// the handler via the wallet header.
func (s *CommentService) Delete(ctx context.Context, id string) error {
	return s.comments.Delete(ctx, id)
}

// ListByMarket returns a market's comments, newest first.
func (s *CommentService) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Comment, error) {
	return s.comments.ListByMarket(ctx, marketID, opts)
}
