package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// CollectedFees returns the protocol fees accrued and not yet withdrawn.
func (l *Ledger) CollectedFees() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneAmount(l.fees)
}

// FeeBps returns the current protocol fee in basis points.
func (l *Ledger) FeeBps() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.feeBps
}

// BetLimits returns the configured minimum and maximum bet. A zero maximum
// means the upper bound is disabled.
func (l *Ledger) BetLimits() (min, max *big.Int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CloneAmount(l.minBet), domain.CloneAmount(l.maxBet)
}

// Treasury returns the current treasury snapshot for persistence.
func (l *Ledger) Treasury() domain.TreasurySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.TreasurySnapshot{
		FeeBps:        l.feeBps,
		MinBet:        domain.CloneAmount(l.minBet),
		MaxBet:        domain.CloneAmount(l.maxBet),
		CollectedFees: domain.CloneAmount(l.fees),
		Custodied:     domain.CloneAmount(l.custodied),
		UpdatedAt:     l.now(),
	}
}

// WithdrawFees drains the entire fee accumulator to the given account.
// Owner only; fails with ErrZeroPayout when nothing has accrued. The
// accumulator is zeroed before the external push and restored if it fails.
func (l *Ledger) WithdrawFees(ctx context.Context, caller, to common.Address) (*big.Int, error) {
	if err := l.guard.RequireOwner(caller); err != nil {
		return nil, fmt.Errorf("engine: withdraw fees: %w", err)
	}
	release, err := l.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("engine: withdraw fees: %w", err)
	}
	defer release()

	l.mu.Lock()
	if l.fees.Sign() == 0 {
		l.mu.Unlock()
		return nil, fmt.Errorf("engine: withdraw fees: %w", domain.ErrZeroPayout)
	}
	amount := new(big.Int).Set(l.fees)
	l.fees.SetInt64(0)
	l.custodied.Sub(l.custodied, amount)
	l.mu.Unlock()

	if err := l.custody.Push(ctx, to, amount); err != nil {
		l.mu.Lock()
		l.fees.Set(amount)
		l.custodied.Add(l.custodied, amount)
		l.mu.Unlock()
		return nil, fmt.Errorf("engine: withdraw fees: custody push: %w", err)
	}
	return amount, nil
}

// SetFee updates the protocol fee. Owner only; values above the 1000 bps
// ceiling are rejected.
func (l *Ledger) SetFee(caller common.Address, bps int64) error {
	if err := l.guard.RequireOwner(caller); err != nil {
		return fmt.Errorf("engine: set fee: %w", err)
	}
	if bps < 0 || bps > maxFeeBps {
		return fmt.Errorf("engine: set fee %d bps: %w", bps, domain.ErrFeeTooHigh)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeBps = bps
	return nil
}

// SetBetLimits updates the stake bounds. Owner only. A nil or zero max
// disables the upper bound; no other validation is applied.
func (l *Ledger) SetBetLimits(caller common.Address, min, max *big.Int) error {
	if err := l.guard.RequireOwner(caller); err != nil {
		return fmt.Errorf("engine: set bet limits: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.minBet = domain.CloneAmount(min)
	l.maxBet = domain.CloneAmount(max)
	return nil
}
