package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrBetExists        = errors.New("wallet already has a bet on this market")
	ErrBettingClosed    = errors.New("betting is closed for this market")
	ErrWalletRequired   = errors.New("wallet connection required")
	ErrAlreadyClaimed   = errors.New("bet already claimed")
	ErrChainUnavailable = errors.New("chain read unavailable")
	ErrNoWinningPot     = errors.New("nobody bet on the winning side")
	ErrInvalidMarket    = errors.New("invalid market parameters")
	ErrLockHeld         = errors.New("lock already held")
	ErrUnauthorized     = errors.New("unauthorized")
)
