// Package engine implements the pari-mutuel betting ledger: market registry,
// escrow bookkeeping, one-time resolution, proportional settlement, and the
// protocol fee treasury. All arithmetic is integer (big.Int); all operations
// are all-or-nothing; the only external effects are calls into the Custody
// collaborator, which are assumed adversarial and possibly reentrant.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

const (
	// maxFeeBps is the hard ceiling for the protocol fee (10%).
	maxFeeBps = 1000
	// feeDenominator converts basis points to a fraction.
	feeDenominator = 10_000
)

// Params configures a new Ledger.
type Params struct {
	Owner   common.Address
	Custody domain.Custody
	FeeBps  int64
	MinBet  *big.Int // nil or zero: no lower bound
	MaxBet  *big.Int // nil or zero: no upper bound
	Now     func() time.Time
}

type stakeKey struct {
	marketID int64
	account  common.Address
	side     domain.Side
}

type claimKey struct {
	marketID int64
	account  common.Address
}

// Ledger is the authoritative in-memory state of every market, stake, claim
// flag, and the fee accumulator. Markets live in an arena indexed by their
// sequential identifier; stakes and claim flags live in separate maps keyed
// by composite keys, with no aliasing between the stores.
type Ledger struct {
	guard   *AccessGuard
	custody domain.Custody
	now     func() time.Time

	mu        sync.RWMutex
	markets   []*domain.Market
	stakes    map[stakeKey]*big.Int
	claimed   map[claimKey]bool
	feeBps    int64
	minBet    *big.Int
	maxBet    *big.Int
	fees      *big.Int // accumulated, unwithdrawn protocol fees
	custodied *big.Int // total value currently held in escrow
}

// New creates an empty Ledger.
func New(p Params) (*Ledger, error) {
	if p.Custody == nil {
		return nil, fmt.Errorf("engine: custody is required")
	}
	if p.FeeBps < 0 || p.FeeBps > maxFeeBps {
		return nil, fmt.Errorf("engine: fee %d bps: %w", p.FeeBps, domain.ErrFeeTooHigh)
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		guard:     NewAccessGuard(p.Owner),
		custody:   p.Custody,
		now:       now,
		stakes:    make(map[stakeKey]*big.Int),
		claimed:   make(map[claimKey]bool),
		feeBps:    p.FeeBps,
		minBet:    domain.CloneAmount(p.MinBet),
		maxBet:    domain.CloneAmount(p.MaxBet),
		fees:      new(big.Int),
		custodied: new(big.Int),
	}, nil
}

// Owner returns the fixed owner identity.
func (l *Ledger) Owner() common.Address {
	return l.guard.Owner()
}

// CreateMarket registers a new proposition and returns its sequential id.
// The deadline must be strictly in the future; question and deadline are
// immutable afterward.
func (l *Ledger) CreateMarket(question string, deadline time.Time) (domain.Market, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !deadline.After(now) {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", domain.ErrDeadlinePast)
	}

	m := &domain.Market{
		ID:        int64(len(l.markets)) + 1,
		Question:  question,
		Deadline:  deadline,
		YesPool:   new(big.Int),
		NoPool:    new(big.Int),
		CreatedAt: now,
	}
	l.markets = append(l.markets, m)
	return m.Clone(), nil
}

// PlaceBet escrows amount from the caller and credits it to one side of an
// open market. The custody pull happens after validation and before any
// state change; if the later commit re-validation fails (the market resolved
// or ended while the pull was in flight), the pulled amount is refunded so
// the operation remains all-or-nothing.
func (l *Ledger) PlaceBet(ctx context.Context, caller common.Address, marketID int64, side domain.Side, amount *big.Int) (domain.Market, error) {
	release, err := l.guard.Enter()
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: place bet market %d: %w", marketID, err)
	}
	defer release()

	if side != domain.SideYes && side != domain.SideNo {
		return domain.Market{}, fmt.Errorf("engine: place bet market %d: %w", marketID, domain.ErrInvalidSide)
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.Market{}, fmt.Errorf("engine: place bet market %d: %w", marketID, domain.ErrInvalidAmount)
	}

	l.mu.RLock()
	err = l.validateBetLocked(marketID, amount)
	l.mu.RUnlock()
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: place bet market %d: %w", marketID, err)
	}

	// Custody transfer outside the state lock: the pull may call back into
	// arbitrary code, and the guard (not the mutex) is what rejects
	// reentrancy.
	if err := l.custody.Pull(ctx, caller, amount); err != nil {
		return domain.Market{}, fmt.Errorf("engine: place bet market %d: custody pull: %w", marketID, err)
	}

	l.mu.Lock()
	// The clock advanced during the pull; the deadline may have passed or
	// an owner resolution may have landed. Re-validate before committing.
	if err := l.validateBetLocked(marketID, amount); err != nil {
		l.mu.Unlock()
		if pushErr := l.custody.Push(ctx, caller, amount); pushErr != nil {
			return domain.Market{}, fmt.Errorf("engine: place bet market %d: refund after %v: %w", marketID, err, pushErr)
		}
		return domain.Market{}, fmt.Errorf("engine: place bet market %d: %w", marketID, err)
	}

	m := l.markets[marketID-1]
	if side == domain.SideYes {
		m.YesPool.Add(m.YesPool, amount)
	} else {
		m.NoPool.Add(m.NoPool, amount)
	}
	key := stakeKey{marketID: marketID, account: caller, side: side}
	if prev, ok := l.stakes[key]; ok {
		prev.Add(prev, amount)
	} else {
		l.stakes[key] = new(big.Int).Set(amount)
	}
	l.custodied.Add(l.custodied, amount)
	snap := m.Clone()
	l.mu.Unlock()

	return snap, nil
}

// validateBetLocked checks every precondition for a bet. Callers hold l.mu.
func (l *Ledger) validateBetLocked(marketID int64, amount *big.Int) error {
	m, err := l.marketLocked(marketID)
	if err != nil {
		return err
	}
	if m.Resolved {
		return domain.ErrAlreadyResolved
	}
	if !l.now().Before(m.Deadline) {
		return domain.ErrAlreadyEnded
	}
	if l.minBet.Sign() > 0 && amount.Cmp(l.minBet) < 0 {
		return domain.ErrBelowMinimum
	}
	if l.maxBet.Sign() > 0 && amount.Cmp(l.maxBet) > 0 {
		return domain.ErrAboveMaximum
	}
	return nil
}

// marketLocked returns the live market record. Callers hold l.mu.
func (l *Ledger) marketLocked(id int64) (*domain.Market, error) {
	if id < 1 || id > int64(len(l.markets)) {
		return nil, domain.ErrNotFound
	}
	return l.markets[id-1], nil
}

// GetMarket returns an immutable snapshot of a market.
func (l *Ledger) GetMarket(id int64) (domain.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.marketLocked(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: get market %d: %w", id, err)
	}
	return m.Clone(), nil
}

// Markets returns snapshots of every market, ordered by id (1..count).
func (l *Ledger) Markets() []domain.Market {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Market, len(l.markets))
	for i, m := range l.markets {
		out[i] = m.Clone()
	}
	return out
}

// MarketCount returns the number of markets created so far.
func (l *Ledger) MarketCount() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.markets))
}

// GetOdds returns the implied percentages for a market. An empty market is
// 50/50; otherwise yes = floor(yesPool*100/total) and no = 100-yes, so the
// pair always sums to exactly 100.
func (l *Ledger) GetOdds(id int64) (domain.Odds, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.marketLocked(id)
	if err != nil {
		return domain.Odds{}, fmt.Errorf("engine: get odds %d: %w", id, err)
	}

	total := new(big.Int).Add(m.YesPool, m.NoPool)
	if total.Sign() == 0 {
		return domain.Odds{YesPercent: 50, NoPercent: 50}, nil
	}
	yes := new(big.Int).Mul(m.YesPool, big.NewInt(100))
	yes.Quo(yes, total)
	yp := yes.Int64()
	return domain.Odds{YesPercent: yp, NoPercent: 100 - yp}, nil
}

// GetUserStakes returns the caller's accumulated stake on each side.
func (l *Ledger) GetUserStakes(id int64, account common.Address) (domain.StakePair, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.marketLocked(id); err != nil {
		return domain.StakePair{}, fmt.Errorf("engine: get stakes %d: %w", id, err)
	}
	return domain.StakePair{
		MarketID: id,
		Account:  account,
		Yes:      domain.CloneAmount(l.stakes[stakeKey{marketID: id, account: account, side: domain.SideYes}]),
		No:       domain.CloneAmount(l.stakes[stakeKey{marketID: id, account: account, side: domain.SideNo}]),
	}, nil
}

// Custodied returns the total value currently held in escrow, including
// uncollected fees and rounding dust.
func (l *Ledger) Custodied() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneAmount(l.custodied)
}

// Restore replaces the ledger state from persisted records. It is called
// once at startup, before the ledger is exposed to callers.
func (l *Ledger) Restore(markets []domain.Market, stakes []domain.Stake, claims []domain.Claim, treasury domain.TreasurySnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	arena := make([]*domain.Market, len(markets))
	for _, m := range markets {
		if m.ID < 1 || m.ID > int64(len(markets)) {
			return fmt.Errorf("engine: restore: market id %d outside arena of %d", m.ID, len(markets))
		}
		if arena[m.ID-1] != nil {
			return fmt.Errorf("engine: restore: duplicate market id %d", m.ID)
		}
		clone := m.Clone()
		arena[m.ID-1] = &clone
	}
	for i, m := range arena {
		if m == nil {
			return fmt.Errorf("engine: restore: missing market id %d", i+1)
		}
	}

	l.markets = arena
	l.stakes = make(map[stakeKey]*big.Int, len(stakes))
	for _, s := range stakes {
		l.stakes[stakeKey{marketID: s.MarketID, account: s.Account, side: s.Side}] = domain.CloneAmount(s.Amount)
	}
	l.claimed = make(map[claimKey]bool, len(claims))
	for _, c := range claims {
		l.claimed[claimKey{marketID: c.MarketID, account: c.Account}] = true
	}

	if treasury.FeeBps < 0 || treasury.FeeBps > maxFeeBps {
		return fmt.Errorf("engine: restore: fee %d bps: %w", treasury.FeeBps, domain.ErrFeeTooHigh)
	}
	l.feeBps = treasury.FeeBps
	l.minBet = domain.CloneAmount(treasury.MinBet)
	l.maxBet = domain.CloneAmount(treasury.MaxBet)
	l.fees = domain.CloneAmount(treasury.CollectedFees)
	l.custodied = domain.CloneAmount(treasury.Custodied)
	return nil
}
