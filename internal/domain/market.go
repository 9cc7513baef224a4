package domain

import (
	"math/big"
	"time"
)

// Side identifies which half of a binary market a stake backs.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide validates a side string from an external caller.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	default:
		return "", ErrInvalidSide
	}
}

// MarketStatus is the derived lifecycle state of a market. It is never
// stored; it is computed from the resolved flag and the deadline.
type MarketStatus string

const (
	// MarketStatusOpen: before the deadline, accepting bets.
	MarketStatusOpen MarketStatus = "open"
	// MarketStatusLocked: deadline passed, awaiting resolution.
	MarketStatusLocked MarketStatus = "locked"
	// MarketStatusResolved: outcome fixed, claims permitted. Terminal.
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a snapshot of a binary proposition in the ledger. IDs are
// sequential starting at 1. Question and Deadline are immutable after
// creation; pools grow monotonically until resolution; Resolved and
// OutcomeYes are set exactly once by resolution.
type Market struct {
	ID         int64      `json:"id"`
	Question   string     `json:"question"`
	Deadline   time.Time  `json:"deadline"`
	Resolved   bool       `json:"resolved"`
	OutcomeYes bool       `json:"outcome_yes"`
	YesPool    *big.Int   `json:"yes_pool"`
	NoPool     *big.Int   `json:"no_pool"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Status derives the lifecycle state at the given instant.
func (m Market) Status(at time.Time) MarketStatus {
	switch {
	case m.Resolved:
		return MarketStatusResolved
	case !at.Before(m.Deadline):
		return MarketStatusLocked
	default:
		return MarketStatusOpen
	}
}

// TotalPool returns YesPool + NoPool.
func (m Market) TotalPool() *big.Int {
	return new(big.Int).Add(CloneAmount(m.YesPool), CloneAmount(m.NoPool))
}

// Clone returns a deep copy so callers cannot alias the ledger's pools.
func (m Market) Clone() Market {
	out := m
	out.YesPool = CloneAmount(m.YesPool)
	out.NoPool = CloneAmount(m.NoPool)
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// Odds is a pair of implied percentages. The two values always sum to 100;
// an empty market reports 50/50.
type Odds struct {
	YesPercent int64 `json:"yes_percent"`
	NoPercent  int64 `json:"no_percent"`
}
