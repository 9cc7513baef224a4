package domain

import (
	"context"
	"time"
)

// MarketCache is a read-through cache for market snapshots.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id int64) (Market, error)
	Invalidate(ctx context.Context, id int64) error
}

// LockManager provides distributed mutual exclusion, used to serialize
// mutations per market across service replicas.
type LockManager interface {
	// Acquire obtains the lock for key, returning an unlock function.
	// Returns ErrLockHeld when another party holds the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus is a lightweight publish/subscribe fabric for ledger events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter enforces request quotas per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter stores immutable objects (settlement archives).
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
