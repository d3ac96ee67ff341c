package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/service"
)

// BetService defines the bet operations the handler needs.
type BetService interface {
	PlaceBet(ctx context.Context, in service.PlaceBetInput) (domain.UserBet, error)
	RecordClaim(ctx context.Context, marketID, wallet string, kind service.ClaimKind, txHash string) error
	ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.UserBet, error)
	TopBettors(ctx context.Context, marketID string, limit int) ([]domain.UserBet, error)
}

// BetHandler serves bet placement, claim recording and bet listings.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logHandler(logger, "bets"),
	}
}

// placeBetRequest is the body for POST /api/markets/{id}/bets. Amount is a
// base-10 wei string so 256-bit values survive JSON untouched.
type placeBetRequest struct {
	Side   string `json:"side"`
	Amount string `json:"amount"`
	TxHash string `json:"tx_hash"`
}

// PlaceBet records a confirmed on-chain bet for the requesting wallet.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a base-10 integer string")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), service.PlaceBetInput{
		MarketID: marketID,
		Wallet:   walletFrom(r),
		Side:     domain.BetSide(req.Side),
		Amount:   amount,
		TxHash:   req.TxHash,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWalletRequired):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrBetExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrBettingClosed):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrChainUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// claimRequest is the body for POST /api/markets/{id}/claims.
type claimRequest struct {
	Kind   string `json:"kind"`
	TxHash string `json:"tx_hash"`
}

// RecordClaim marks the requesting wallet's bet as claimed after the user's
// on-chain claim or claimRefund transaction confirmed.
// POST /api/markets/{id}/claims
func (h *BetHandler) RecordClaim(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := service.ClaimKind(req.Kind)
	if kind != service.ClaimReward && kind != service.ClaimRefund {
		writeError(w, http.StatusBadRequest, "kind must be reward or refund")
		return
	}

	err := h.bets.RecordClaim(r.Context(), marketID, walletFrom(r), kind, req.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWalletRequired):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "no bet found for this wallet")
		case errors.Is(err, domain.ErrAlreadyClaimed):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrChainUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: record claim failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to record claim")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
}

// listBetsResponse wraps the wallet bet listing.
type listBetsResponse struct {
	Bets   []domain.UserBet `json:"bets"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ListBets returns the requesting wallet's bets across all markets.
// GET /api/bets
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	wallet := walletFrom(r)
	if wallet == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrWalletRequired.Error())
		return
	}

	opts := parseListOpts(r)
	bets, err := h.bets.ListByWallet(r.Context(), wallet, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// TopBettors returns the largest bets on a market, for the leaderboard panel.
// GET /api/markets/{id}/bettors/top?limit=10
func (h *BetHandler) TopBettors(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	bets, err := h.bets.TopBettors(r.Context(), marketID, parseListOpts(r).Limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: top bettors failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bettors")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bettors": bets})
}
