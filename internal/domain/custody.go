package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Custody moves value between external accounts and the ledger's escrow.
// Implementations may call back into arbitrary code (a token transfer hook,
// a payment gateway webhook), so the engine treats every call as potentially
// reentrant and adversarial.
type Custody interface {
	// Pull escrows amount from the account. It must either transfer the
	// full amount or return an error leaving the account untouched.
	Pull(ctx context.Context, from common.Address, amount *big.Int) error

	// Push releases amount from escrow to the account.
	Push(ctx context.Context, to common.Address, amount *big.Int) error
}
