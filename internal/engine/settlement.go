package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// Resolve fixes the outcome of a market. Owner only; the deadline must have
// passed and the market must not already be resolved. The outcome is
// permanent: a retry fails with ErrAlreadyResolved.
func (l *Ledger) Resolve(caller common.Address, marketID int64, outcomeYes bool) (domain.Market, error) {
	if err := l.guard.RequireOwner(caller); err != nil {
		return domain.Market{}, fmt.Errorf("engine: resolve market %d: %w", marketID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.marketLocked(marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: resolve market %d: %w", marketID, err)
	}
	if m.Resolved {
		return domain.Market{}, fmt.Errorf("engine: resolve market %d: %w", marketID, domain.ErrAlreadyResolved)
	}
	now := l.now()
	if now.Before(m.Deadline) {
		return domain.Market{}, fmt.Errorf("engine: resolve market %d: %w", marketID, domain.ErrNotYetEnded)
	}

	m.Resolved = true
	m.OutcomeYes = outcomeYes
	m.ResolvedAt = &now
	return m.Clone(), nil
}

// CalculatePayout returns the gross pari-mutuel payout owed to account:
// floor(stake * totalPool / winningPool), or zero when the market is
// unresolved, the account holds no winning stake, or the winning pool is
// empty. Floor division leaves rounding dust in custody; it is never swept.
func (l *Ledger) CalculatePayout(marketID int64, account common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.payoutLocked(marketID, account)
}

// CalculatePayoutAfterFee returns the payout net of the current protocol
// fee: payout - floor(payout * feeBps / 10000).
func (l *Ledger) CalculatePayoutAfterFee(marketID int64, account common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	payout, err := l.payoutLocked(marketID, account)
	if err != nil {
		return nil, err
	}
	fee := l.feeOf(payout)
	return payout.Sub(payout, fee), nil
}

func (l *Ledger) payoutLocked(marketID int64, account common.Address) (*big.Int, error) {
	m, err := l.marketLocked(marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: payout market %d: %w", marketID, err)
	}
	if !m.Resolved {
		return new(big.Int), nil
	}

	winningSide := domain.SideNo
	winningPool := m.NoPool
	if m.OutcomeYes {
		winningSide = domain.SideYes
		winningPool = m.YesPool
	}
	if winningPool.Sign() == 0 {
		return new(big.Int), nil
	}

	stake := l.stakes[stakeKey{marketID: marketID, account: account, side: winningSide}]
	if stake == nil || stake.Sign() == 0 {
		return new(big.Int), nil
	}

	total := new(big.Int).Add(m.YesPool, m.NoPool)
	payout := new(big.Int).Mul(stake, total)
	return payout.Quo(payout, winningPool), nil
}

// feeOf computes floor(payout * feeBps / 10000). Callers hold l.mu.
func (l *Ledger) feeOf(payout *big.Int) *big.Int {
	fee := new(big.Int).Mul(payout, big.NewInt(l.feeBps))
	return fee.Quo(fee, big.NewInt(feeDenominator))
}

// Claim pays out the caller's winnings for a resolved market, at most once
// per (market, account). The claim flag is set and the fee accrued before
// the external push (checks-effects-interactions, together with the
// reentrancy guard); a failed push rolls both back so a failed claim leaves
// no state behind.
func (l *Ledger) Claim(ctx context.Context, caller common.Address, marketID int64) (domain.Claim, error) {
	release, err := l.guard.Enter()
	if err != nil {
		return domain.Claim{}, fmt.Errorf("engine: claim market %d: %w", marketID, err)
	}
	defer release()

	l.mu.Lock()
	m, err := l.marketLocked(marketID)
	if err != nil {
		l.mu.Unlock()
		return domain.Claim{}, fmt.Errorf("engine: claim market %d: %w", marketID, err)
	}
	if !m.Resolved {
		l.mu.Unlock()
		return domain.Claim{}, fmt.Errorf("engine: claim market %d: %w", marketID, domain.ErrNotYetEnded)
	}
	ck := claimKey{marketID: marketID, account: caller}
	if l.claimed[ck] {
		l.mu.Unlock()
		return domain.Claim{}, fmt.Errorf("engine: claim market %d: %w", marketID, domain.ErrAlreadyClaimed)
	}

	payout, err := l.payoutLocked(marketID, caller)
	if err != nil {
		l.mu.Unlock()
		return domain.Claim{}, err
	}
	if payout.Sign() == 0 {
		l.mu.Unlock()
		return domain.Claim{}, fmt.Errorf("engine: claim market %d: %w", marketID, domain.ErrZeroPayout)
	}

	fee := l.feeOf(payout)
	userShare := new(big.Int).Sub(payout, fee)

	// Effects before interaction: mark claimed, accrue the fee, and release
	// the user share from custody accounting. The fee itself stays
	// custodied until the owner withdraws it.
	l.claimed[ck] = true
	l.fees.Add(l.fees, fee)
	l.custodied.Sub(l.custodied, userShare)
	claimedAt := l.now()
	l.mu.Unlock()

	if err := l.custody.Push(ctx, caller, userShare); err != nil {
		l.mu.Lock()
		delete(l.claimed, ck)
		l.fees.Sub(l.fees, fee)
		l.custodied.Add(l.custodied, userShare)
		l.mu.Unlock()
		return domain.Claim{}, fmt.Errorf("engine: claim market %d: custody push: %w", marketID, err)
	}

	return domain.Claim{
		MarketID:  marketID,
		Account:   caller,
		Payout:    payout,
		Fee:       fee,
		UserShare: userShare,
		ClaimedAt: claimedAt,
	}, nil
}

// HasClaimed reports whether account has already claimed on a market.
func (l *Ledger) HasClaimed(marketID int64, account common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.claimed[claimKey{marketID: marketID, account: account}]
}
