// Package mirror keeps a schema-compatible shadow of the ledger's market
// tuple for demo walkthroughs. It simulates the same lifecycle — create,
// bet, resolve, claim — without a custody rail, so a consumer built against
// the engine's market snapshots can be pointed at a mirror and decode the
// same field names and shapes.
package mirror

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

type stakeKey struct {
	marketID int64
	account  common.Address
	side     domain.Side
}

type claimKey struct {
	marketID int64
	account  common.Address
}

// Mirror simulates the market lifecycle in memory. It reuses the domain
// snapshot types, which is what guarantees shape compatibility with the
// ledger-backed read path.
type Mirror struct {
	now func() time.Time

	mu      sync.RWMutex
	markets []*domain.Market
	stakes  map[stakeKey]*big.Int
	claimed map[claimKey]bool
}

// New creates an empty Mirror. A nil now falls back to time.Now.
func New(now func() time.Time) *Mirror {
	if now == nil {
		now = time.Now
	}
	return &Mirror{
		now:     now,
		stakes:  make(map[stakeKey]*big.Int),
		claimed: make(map[claimKey]bool),
	}
}

// CreateMarket adds a simulated market and returns its snapshot.
func (mr *Mirror) CreateMarket(question string, deadline time.Time) (domain.Market, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if !deadline.After(mr.now()) {
		return domain.Market{}, fmt.Errorf("mirror: create market: %w", domain.ErrDeadlinePast)
	}
	m := &domain.Market{
		ID:        int64(len(mr.markets)) + 1,
		Question:  question,
		Deadline:  deadline,
		YesPool:   new(big.Int),
		NoPool:    new(big.Int),
		CreatedAt: mr.now(),
	}
	mr.markets = append(mr.markets, m)
	return m.Clone(), nil
}

// PlaceBet records a simulated stake. No value moves anywhere.
func (mr *Mirror) PlaceBet(account common.Address, marketID int64, side domain.Side, amount *big.Int) error {
	if side != domain.SideYes && side != domain.SideNo {
		return fmt.Errorf("mirror: place bet: %w", domain.ErrInvalidSide)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mirror: place bet: %w", domain.ErrInvalidAmount)
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	m, err := mr.marketLocked(marketID)
	if err != nil {
		return fmt.Errorf("mirror: place bet: %w", err)
	}
	if m.Resolved {
		return fmt.Errorf("mirror: place bet: %w", domain.ErrAlreadyResolved)
	}
	if !mr.now().Before(m.Deadline) {
		return fmt.Errorf("mirror: place bet: %w", domain.ErrAlreadyEnded)
	}

	if side == domain.SideYes {
		m.YesPool.Add(m.YesPool, amount)
	} else {
		m.NoPool.Add(m.NoPool, amount)
	}
	key := stakeKey{marketID: marketID, account: account, side: side}
	if prev, ok := mr.stakes[key]; ok {
		prev.Add(prev, amount)
	} else {
		mr.stakes[key] = new(big.Int).Set(amount)
	}
	return nil
}

// Resolve fixes a simulated outcome, once.
func (mr *Mirror) Resolve(marketID int64, outcomeYes bool) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	m, err := mr.marketLocked(marketID)
	if err != nil {
		return fmt.Errorf("mirror: resolve: %w", err)
	}
	if m.Resolved {
		return fmt.Errorf("mirror: resolve: %w", domain.ErrAlreadyResolved)
	}
	now := mr.now()
	if now.Before(m.Deadline) {
		return fmt.Errorf("mirror: resolve: %w", domain.ErrNotYetEnded)
	}
	m.Resolved = true
	m.OutcomeYes = outcomeYes
	m.ResolvedAt = &now
	return nil
}

// Claim simulates a proportional payout and marks the claim flag, mirroring
// the engine's floor-division math without moving value.
func (mr *Mirror) Claim(account common.Address, marketID int64) (*big.Int, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	m, err := mr.marketLocked(marketID)
	if err != nil {
		return nil, fmt.Errorf("mirror: claim: %w", err)
	}
	if !m.Resolved {
		return nil, fmt.Errorf("mirror: claim: %w", domain.ErrNotYetEnded)
	}
	ck := claimKey{marketID: marketID, account: account}
	if mr.claimed[ck] {
		return nil, fmt.Errorf("mirror: claim: %w", domain.ErrAlreadyClaimed)
	}

	winningSide := domain.SideNo
	winningPool := m.NoPool
	if m.OutcomeYes {
		winningSide = domain.SideYes
		winningPool = m.YesPool
	}
	stake := mr.stakes[stakeKey{marketID: marketID, account: account, side: winningSide}]
	if winningPool.Sign() == 0 || stake == nil || stake.Sign() == 0 {
		return nil, fmt.Errorf("mirror: claim: %w", domain.ErrZeroPayout)
	}

	total := new(big.Int).Add(m.YesPool, m.NoPool)
	payout := new(big.Int).Mul(stake, total)
	payout.Quo(payout, winningPool)

	mr.claimed[ck] = true
	return payout, nil
}

// GetMarket returns a snapshot of a simulated market.
func (mr *Mirror) GetMarket(id int64) (domain.Market, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	m, err := mr.marketLocked(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("mirror: get market: %w", err)
	}
	return m.Clone(), nil
}

// Markets returns snapshots of every simulated market, ordered by id.
func (mr *Mirror) Markets() []domain.Market {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	out := make([]domain.Market, len(mr.markets))
	for i, m := range mr.markets {
		out[i] = m.Clone()
	}
	return out
}

func (mr *Mirror) marketLocked(id int64) (*domain.Market, error) {
	if id < 1 || id > int64(len(mr.markets)) {
		return nil, domain.ErrNotFound
	}
	return mr.markets[id-1], nil
}
