// Package custody provides value-custody collaborators for the ledger. The
// Vault is an in-memory implementation backed by per-account balances; it is
// the custody used by the demo and test deployments, where no real token
// rail is attached.
package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// Vault is an in-memory custody: account balances plus an escrow counter.
type Vault struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	escrowed *big.Int
}

// NewVault creates an empty Vault.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[common.Address]*big.Int),
		escrowed: new(big.Int),
	}
}

// Credit adds amount to an account's spendable balance (faucet-style, used
// to seed demo accounts).
func (v *Vault) Credit(account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[account] == nil {
		v.balances[account] = new(big.Int)
	}
	v.balances[account].Add(v.balances[account], amount)
}

// BalanceOf returns an account's spendable balance.
func (v *Vault) BalanceOf(account common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return domain.CloneAmount(v.balances[account])
}

// Restore replaces the vault's state with persisted balances and the escrow
// total carried over from the ledger. It must run before the vault serves
// transfers; balances that are nil or negative are dropped.
func (v *Vault) Restore(balances map[common.Address]*big.Int, escrowed *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.balances = make(map[common.Address]*big.Int, len(balances))
	for account, bal := range balances {
		if bal == nil || bal.Sign() < 0 {
			continue
		}
		v.balances[account] = new(big.Int).Set(bal)
	}
	v.escrowed = domain.CloneAmount(escrowed)
}

// Escrowed returns the total value currently held in escrow.
func (v *Vault) Escrowed() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return domain.CloneAmount(v.escrowed)
}

// Pull moves amount from the account's balance into escrow. The transfer is
// all-or-nothing: an underfunded account fails with ErrInsufficientFunds and
// nothing moves.
func (v *Vault) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: pull from %s: %w", from, domain.ErrInvalidAmount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("custody: pull %s from %s: %w", amount, from, domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	v.escrowed.Add(v.escrowed, amount)
	return nil
}

// Push releases amount from escrow to the account's balance.
func (v *Vault) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: push to %s: %w", to, domain.ErrInvalidAmount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[to] == nil {
		v.balances[to] = new(big.Int)
	}
	v.balances[to].Add(v.balances[to], amount)
	v.escrowed.Sub(v.escrowed, amount)
	return nil
}

// Compile-time interface check.
var _ domain.Custody = (*Vault)(nil)
