package engine

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// AccessGuard combines the single-owner authorization check with a
// call-in-progress lock. The owner is fixed at construction. The lock wraps
// every balance-mutating entry point: while one is executing, a nested call
// from a custody callback (or a concurrent caller) fails immediately with
// ErrReentrantCall instead of executing or blocking. The engine assumes
// serialized execution; rejected callers resubmit.
type AccessGuard struct {
	owner common.Address
	busy  atomic.Bool
}

// NewAccessGuard creates a guard with the given fixed owner identity.
func NewAccessGuard(owner common.Address) *AccessGuard {
	return &AccessGuard{owner: owner}
}

// Owner returns the fixed owner identity.
func (g *AccessGuard) Owner() common.Address {
	return g.owner
}

// RequireOwner fails with ErrUnauthorized unless caller is the owner.
func (g *AccessGuard) RequireOwner(caller common.Address) error {
	if caller != g.owner {
		return domain.ErrUnauthorized
	}
	return nil
}

// Enter takes the call-in-progress lock. On success it returns a release
// function that is safe to call more than once.
func (g *AccessGuard) Enter() (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrReentrantCall
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.busy.Store(false)
	}, nil
}
