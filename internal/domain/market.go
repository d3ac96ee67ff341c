package domain

import "time"

// MarketStatus is the administrative lifecycle status of a market as stored
// off-chain. The values match the database enum used by the Bella Napoli
// frontend and are never translated at the store boundary.
type MarketStatus string

const (
	MarketStatusPending   MarketStatus = "in_attesa"  // escrow contract not yet deployed
	MarketStatusActive    MarketStatus = "attiva"
	MarketStatusPaused    MarketStatus = "in_pausa"
	MarketStatusResolved  MarketStatus = "risolta"
	MarketStatusCancelled MarketStatus = "cancellata"
)

// Valid reports whether s is one of the five known statuses.
func (s MarketStatus) Valid() bool {
	switch s {
	case MarketStatusPending, MarketStatusActive, MarketStatusPaused,
		MarketStatusResolved, MarketStatusCancelled:
		return true
	}
	return false
}

// Market is the off-chain record for one prediction question. PoolAddress is
// empty until an escrow contract has been deployed for the market.
//
// Invariant: ClosingBid >= ClosingDate. ClosingDate is the last moment new
// bets are accepted under normal operation; ClosingBid is the hard deadline
// after which the market is considered ended even if unresolved.
type Market struct {
	ID          string       `json:"id"`
	Slug        string       `json:"slug"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	ImageURL    string       `json:"image_url"`
	PoolAddress string       `json:"pool_address"`
	ClosingDate time.Time    `json:"closing_date"`
	ClosingBid  time.Time    `json:"closing_bid"`
	Status      MarketStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPool reports whether an escrow contract exists for this market.
func (m Market) HasPool() bool {
	return m.PoolAddress != ""
}
