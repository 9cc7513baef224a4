package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Rows mirror
// the in-memory vault's spendable balances; escrowed value lives in the
// treasury row, not here.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Upsert writes an account's spendable balance, replacing any previous row.
func (s *BalanceStore) Upsert(ctx context.Context, account common.Address, balance *big.Int) error {
	const query = `
		INSERT INTO vault_balances (account, balance, updated_at)
		VALUES ($1, $2::numeric, $3)
		ON CONFLICT (account) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		addrKey(account), amountString(balance), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: upsert balance account=%s: %w", account.Hex(), err)
	}
	return nil
}

// Get returns an account's persisted balance, or domain.ErrNotFound when no
// deposit has ever been recorded for it.
func (s *BalanceStore) Get(ctx context.Context, account common.Address) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM vault_balances WHERE account = $1`,
		addrKey(account)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get balance account=%s: %w", account.Hex(), err)
	}
	return parseAmount(raw)
}

// ListAll returns every persisted balance keyed by account.
func (s *BalanceStore) ListAll(ctx context.Context) (map[common.Address]*big.Int, error) {
	rows, err := s.pool.Query(ctx, `SELECT account, balance::text FROM vault_balances`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[common.Address]*big.Int)
	for rows.Next() {
		var account, raw string
		if err := rows.Scan(&account, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		balances[common.HexToAddress(account)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list balances rows: %w", err)
	}
	return balances, nil
}
