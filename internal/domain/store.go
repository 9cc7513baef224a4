package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market snapshots.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id int64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListAll(ctx context.Context) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// StakeStore persists per-(market, account, side) stake records.
type StakeStore interface {
	Upsert(ctx context.Context, stake Stake) error
	Get(ctx context.Context, marketID int64, account common.Address, side Side) (Stake, error)
	ListByMarket(ctx context.Context, marketID int64) ([]Stake, error)
	ListAll(ctx context.Context) ([]Stake, error)
}

// ClaimStore persists completed claims. Insert must fail for a duplicate
// (market, account) pair so persistence backs up the in-memory claim flag.
type ClaimStore interface {
	Insert(ctx context.Context, claim Claim) error
	Exists(ctx context.Context, marketID int64, account common.Address) (bool, error)
	ListByMarket(ctx context.Context, marketID int64) ([]Claim, error)
	ListAll(ctx context.Context) ([]Claim, error)
}

// BalanceStore persists custody vault balances so spendable funds survive a
// restart together with the ledger state they back.
type BalanceStore interface {
	Upsert(ctx context.Context, account common.Address, balance *big.Int) error
	Get(ctx context.Context, account common.Address) (*big.Int, error)
	ListAll(ctx context.Context) (map[common.Address]*big.Int, error)
}

// TreasuryStore persists the single treasury row.
type TreasuryStore interface {
	Get(ctx context.Context) (TreasurySnapshot, error)
	Put(ctx context.Context, snap TreasurySnapshot) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
