package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/service"
)

// AdminMarketService covers the market write operations exposed to admins.
type AdminMarketService interface {
	Create(ctx context.Context, in service.CreateMarketInput) (domain.Market, error)
	Update(ctx context.Context, m domain.Market) error
	SetPoolAddress(ctx context.Context, id, poolAddress string) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id, wallet string) (service.MarketView, error)
}

// SettlementService covers the on-chain settlement actions. Each returns the
// submitted transaction hash.
type SettlementService interface {
	Resolve(ctx context.Context, marketID string, winnerYes bool) (string, error)
	Cancel(ctx context.Context, marketID, reason string) (string, error)
	EmergencyResolve(ctx context.Context, marketID string, winnerYes bool, reason string) (string, error)
	SetEmergencyStop(ctx context.Context, marketID string, stopped bool) (string, error)
	SetStatus(ctx context.Context, marketID string, status domain.MarketStatus) error
}

// AdminHandler serves the authenticated /api/admin endpoints.
type AdminHandler struct {
	markets    AdminMarketService
	settlement SettlementService
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(markets AdminMarketService, settlement SettlementService, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		markets:    markets,
		settlement: settlement,
		audit:      audit,
		logger:     logHandler(logger, "admin"),
	}
}

// marketRequest is the body for market create and update.
type marketRequest struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	ClosingDate time.Time `json:"closing_date"`
	ClosingBid  time.Time `json:"closing_bid"`
}

// CreateMarket registers a new market in the pending status.
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.markets.Create(r.Context(), service.CreateMarketInput{
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		ClosingDate: req.ClosingDate,
		ClosingBid:  req.ClosingBid,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "a market with this slug already exists")
		default:
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create market")
		}
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// UpdateMarket rewrites a market's descriptive fields. Status and pool
// address have dedicated endpoints.
// PUT /api/admin/markets/{id}
func (h *AdminHandler) UpdateMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req marketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.markets.GetByID(r.Context(), id, "")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load market for update failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update market")
		return
	}

	m := view.Market
	m.Title = req.Title
	m.Description = req.Description
	m.Category = req.Category
	m.ImageURL = req.ImageURL
	m.ClosingDate = req.ClosingDate
	m.ClosingBid = req.ClosingBid

	if err := h.markets.Update(r.Context(), m); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		default:
			h.logger.ErrorContext(r.Context(), "handler: update market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to update market")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// DeleteMarket removes a market and its bets and comments.
// DELETE /api/admin/markets/{id}
func (h *AdminHandler) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if err := h.markets.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: delete market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type setPoolRequest struct {
	PoolAddress string `json:"pool_address"`
}

// SetPool attaches a deployed escrow contract to a market and activates it.
// POST /api/admin/markets/{id}/pool
func (h *AdminHandler) SetPool(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req setPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.markets.SetPoolAddress(r.Context(), id, req.PoolAddress); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "pool address already attached to another market")
		default:
			h.logger.ErrorContext(r.Context(), "handler: set pool failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to set pool address")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

type resolveRequest struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

func (req resolveRequest) winnerYes() (bool, bool) {
	switch domain.BetSide(req.Winner) {
	case domain.BetSideYes:
		return true, true
	case domain.BetSideNo:
		return false, true
	}
	return false, false
}

// Resolve sets the winning side on the escrow contract and marks the market
// resolved.
// POST /api/admin/markets/{id}/resolve
func (h *AdminHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.settleAction(w, r, "resolve", func(ctx context.Context, id string, req resolveRequest) (string, error) {
		winnerYes, ok := req.winnerYes()
		if !ok {
			return "", fmt.Errorf("%w: winner must be yes or no", domain.ErrInvalidMarket)
		}
		return h.settlement.Resolve(ctx, id, winnerYes)
	})
}

// Cancel cancels the pool on chain so bettors can claim refunds.
// POST /api/admin/markets/{id}/cancel
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.settleAction(w, r, "cancel", func(ctx context.Context, id string, req resolveRequest) (string, error) {
		return h.settlement.Cancel(ctx, id, req.Reason)
	})
}

// EmergencyResolve forces a winner while the contract is emergency-stopped.
// POST /api/admin/markets/{id}/emergency-resolve
func (h *AdminHandler) EmergencyResolve(w http.ResponseWriter, r *http.Request) {
	h.settleAction(w, r, "emergency resolve", func(ctx context.Context, id string, req resolveRequest) (string, error) {
		winnerYes, ok := req.winnerYes()
		if !ok {
			return "", fmt.Errorf("%w: winner must be yes or no", domain.ErrInvalidMarket)
		}
		return h.settlement.EmergencyResolve(ctx, id, winnerYes, req.Reason)
	})
}

type emergencyStopRequest struct {
	Stopped bool `json:"stopped"`
}

// EmergencyStop toggles the contract's emergency stop flag and mirrors the
// pause into the market status.
// POST /api/admin/markets/{id}/emergency-stop
func (h *AdminHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req emergencyStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txHash, err := h.settlement.SetEmergencyStop(r.Context(), id, req.Stopped)
	if err != nil {
		h.writeSettlementError(w, r, id, "emergency stop", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus overrides a market's administrative status.
// POST /api/admin/markets/{id}/status
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.settlement.SetStatus(r.Context(), id, domain.MarketStatus(req.Status)); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarket):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		default:
			h.logger.ErrorContext(r.Context(), "handler: set status failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to set status")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// ListAudit returns the admin and settlement audit trail, newest first.
// GET /api/admin/audit
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// settleAction factors the shared decode/dispatch/error shape of the
// settlement endpoints.
func (h *AdminHandler) settleAction(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	fn func(ctx context.Context, id string, req resolveRequest) (string, error),
) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	txHash, err := fn(r.Context(), id, req)
	if err != nil {
		h.writeSettlementError(w, r, id, action, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash})
}

func (h *AdminHandler) writeSettlementError(w http.ResponseWriter, r *http.Request, id, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market not found")
	case errors.Is(err, domain.ErrInvalidMarket):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "a settlement for this pool is already in progress")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: settlement action failed",
			slog.String("market_id", id),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "settlement transaction failed")
	}
}
