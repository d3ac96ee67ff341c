package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/pool"
)

// Notifier is the surface the admin service needs from the notification
// layer.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AdminService executes settlement actions: resolving, cancelling, and
// pausing pools. Every chain-touching action runs under a distributed lock
// keyed by the pool address so two admin processes cannot race the same
// resolution, and every action lands in the audit log.
type AdminService struct {
	markets  domain.MarketStore
	writer   domain.PoolWriter
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier Notifier
	poller   *pool.Poller
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewAdminService creates an AdminService. writer may be nil when no
// settlement key is configured; chain-touching actions then fail with
// ErrUnauthorized instead of panicking.
func NewAdminService(
	markets domain.MarketStore,
	writer domain.PoolWriter,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier Notifier,
	poller *pool.Poller,
	lockTTL time.Duration,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		markets:  markets,
		writer:   writer,
		locks:    locks,
		audit:    audit,
		notifier: notifier,
		poller:   poller,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "admin_service")),
	}
}

// Resolve sets the winning side on a pool's escrow contract and moves the
// market to the resolved status. The contract computes and pays the fee and
// redistribution on-chain; this call only triggers it.
func (s *AdminService) Resolve(ctx context.Context, marketID string, winnerYes bool) (string, error) {
	return s.settle(ctx, marketID, "market_resolved", domain.MarketStatusResolved,
		func(poolAddr string) (string, error) {
			return s.writer.SetWinner(ctx, poolAddr, winnerYes)
		},
		map[string]any{"winner_yes": winnerYes},
	)
}

// Cancel cancels a pool, releasing every stake for refund, and moves the
// market to the cancelled status.
func (s *AdminService) Cancel(ctx context.Context, marketID, reason string) (string, error) {
	return s.settle(ctx, marketID, "market_cancelled", domain.MarketStatusCancelled,
		func(poolAddr string) (string, error) {
			return s.writer.CancelPool(ctx, poolAddr, reason)
		},
		map[string]any{"reason": reason},
	)
}

// EmergencyResolve force-resolves a stuck pool with an explicit reason.
func (s *AdminService) EmergencyResolve(ctx context.Context, marketID string, winnerYes bool, reason string) (string, error) {
	return s.settle(ctx, marketID, "market_resolved", domain.MarketStatusResolved,
		func(poolAddr string) (string, error) {
			return s.writer.EmergencyResolve(ctx, poolAddr, winnerYes, reason)
		},
		map[string]any{"winner_yes": winnerYes, "reason": reason, "emergency": true},
	)
}

// SetEmergencyStop toggles a pool's emergency stop and mirrors the paused /
// active status off-chain.
func (s *AdminService) SetEmergencyStop(ctx context.Context, marketID string, stopped bool) (string, error) {
	status := domain.MarketStatusActive
	if stopped {
		status = domain.MarketStatusPaused
	}
	return s.settle(ctx, marketID, "emergency_stop", status,
		func(poolAddr string) (string, error) {
			return s.writer.SetEmergencyStop(ctx, poolAddr, stopped)
		},
		map[string]any{"stopped": stopped},
	)
}

// SetStatus moves a market between administrative statuses without touching
// the chain, for markets whose escrow contract is not yet deployed.
func (s *AdminService) SetStatus(ctx context.Context, marketID string, status domain.MarketStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidMarket, status)
	}
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return err
	}
	if market.HasPool() && (status == domain.MarketStatusResolved || status == domain.MarketStatusCancelled) {
		return fmt.Errorf("%w: market %s has an escrow pool; use the settlement actions", domain.ErrInvalidMarket, marketID)
	}
	if err := s.markets.UpdateStatus(ctx, marketID, status); err != nil {
		return err
	}
	s.logAudit(ctx, "status_changed", map[string]any{
		"market_id": marketID,
		"status":    string(status),
	})
	return nil
}

// settle is the shared settlement path: lock, submit, update status, audit,
// notify, refresh.
func (s *AdminService) settle(
	ctx context.Context,
	marketID, event string,
	status domain.MarketStatus,
	submit func(poolAddr string) (string, error),
	detail map[string]any,
) (string, error) {
	if s.writer == nil {
		return "", fmt.Errorf("%w: no settlement key configured", domain.ErrUnauthorized)
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return "", err
	}
	if !market.HasPool() {
		return "", fmt.Errorf("%w: market %s has no escrow pool", domain.ErrInvalidMarket, marketID)
	}

	unlock, err := s.locks.Acquire(ctx, "settle:"+market.PoolAddress, s.lockTTL)
	if err != nil {
		return "", err
	}
	defer unlock()

	txHash, err := submit(market.PoolAddress)
	if err != nil {
		s.logAudit(ctx, "settlement_error", map[string]any{
			"market_id": marketID,
			"pool":      market.PoolAddress,
			"event":     event,
			"error":     err.Error(),
		})
		s.notify(ctx, "settlement_error", "Settlement failed",
			fmt.Sprintf("%s on %s: %v", event, market.Title, err))
		return "", err
	}

	if err := s.markets.UpdateStatus(ctx, marketID, status); err != nil {
		// The chain write went through; surface the mismatch loudly but do
		// not pretend the settlement failed.
		s.logger.ErrorContext(ctx, "status update failed after settlement",
			slog.String("market_id", marketID),
			slog.String("tx_hash", txHash),
			slog.String("error", err.Error()),
		)
	}

	detail["market_id"] = marketID
	detail["pool"] = market.PoolAddress
	detail["tx_hash"] = txHash
	s.logAudit(ctx, event, detail)
	s.notify(ctx, event, market.Title, fmt.Sprintf("%s (tx %s)", event, txHash))

	s.poller.Refresh(market.PoolAddress)

	s.logger.InfoContext(ctx, "settlement submitted",
		slog.String("market_id", marketID),
		slog.String("event", event),
		slog.String("tx_hash", txHash),
	)
	return txHash, nil
}

func (s *AdminService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AdminService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
