package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bellanapoli/bellad/internal/domain"
)

// CommentService defines the comment operations the handler needs.
type CommentService interface {
	Create(ctx context.Context, marketID, wallet, body string) (domain.Comment, error)
	Delete(ctx context.Context, id string) error
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Comment, error)
}

// CommentHandler serves the market discussion endpoints.
type CommentHandler struct {
	comments CommentService
	logger   *slog.Logger
}

// NewCommentHandler creates a CommentHandler.
func NewCommentHandler(comments CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{
		comments: comments,
		logger:   logHandler(logger, "comments"),
	}
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// CreateComment posts a comment on a market as the requesting wallet.
// POST /api/markets/{id}/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	comment, err := h.comments.Create(r.Context(), marketID, walletFrom(r), req.Body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWalletRequired):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: create comment failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create comment")
		}
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

// ListComments returns a market's comments, newest first.
// GET /api/markets/{id}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	comments, err := h.comments.ListByMarket(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list comments failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// DeleteComment removes a comment. Admin-only, mounted under /api/admin.
// DELETE /api/admin/comments/{id}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing comment id")
		return
	}

	if err := h.comments.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: delete comment failed",
			slog.String("comment_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
