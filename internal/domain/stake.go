package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stake is the accumulated amount one account has wagered on one side of a
// market. Created on the first bet for its (market, account, side) key,
// incremented on repeats, and consumed implicitly at claim time.
type Stake struct {
	MarketID  int64          `json:"market_id"`
	Account   common.Address `json:"account"`
	Side      Side           `json:"side"`
	Amount    *big.Int       `json:"amount"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StakePair is the read-model for getUserStakes: both sides for one account.
type StakePair struct {
	MarketID int64          `json:"market_id"`
	Account  common.Address `json:"account"`
	Yes      *big.Int       `json:"yes"`
	No       *big.Int       `json:"no"`
}

// Claim records a completed payout. At most one exists per (market, account);
// its presence is what makes a second claim fail.
type Claim struct {
	MarketID  int64          `json:"market_id"`
	Account   common.Address `json:"account"`
	Payout    *big.Int       `json:"payout"`
	Fee       *big.Int       `json:"fee"`
	UserShare *big.Int       `json:"user_share"`
	ClaimedAt time.Time      `json:"claimed_at"`
}

// PayoutQuote is the read-model for payout previews: what a claim would pay
// right now, and whether the account has already claimed.
type PayoutQuote struct {
	MarketID  int64          `json:"market_id"`
	Account   common.Address `json:"account"`
	Payout    *big.Int       `json:"payout"`
	Fee       *big.Int       `json:"fee"`
	UserShare *big.Int       `json:"user_share"`
	Claimed   bool           `json:"claimed"`
}

// TreasurySnapshot captures the treasury configuration and accumulators as
// persisted between restarts. Custodied is the total value currently held by
// the ledger across all markets and uncollected fees.
type TreasurySnapshot struct {
	FeeBps        int64     `json:"fee_bps"`
	MinBet        *big.Int  `json:"min_bet"`
	MaxBet        *big.Int  `json:"max_bet"`
	CollectedFees *big.Int  `json:"collected_fees"`
	Custodied     *big.Int  `json:"custodied"`
	UpdatedAt     time.Time `json:"updated_at"`
}
