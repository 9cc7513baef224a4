package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a new StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

// addrKey normalizes an address for storage. Addresses are stored lowercase
// so lookups are case-insensitive.
func addrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// Upsert writes the accumulated stake for one (market, account, side) key.
func (s *StakeStore) Upsert(ctx context.Context, st domain.Stake) error {
	const query = `
		INSERT INTO stakes (market_id, account, side, amount, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (market_id, account, side) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		st.MarketID, addrKey(st.Account), string(st.Side),
		amountString(st.Amount), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert stake market=%d account=%s: %w",
			st.MarketID, st.Account.Hex(), err)
	}
	return nil
}

const stakeCols = `market_id, account, side, amount::text, updated_at`

func scanStake(row pgx.Row) (domain.Stake, error) {
	var st domain.Stake
	var account, side, amount string
	if err := row.Scan(&st.MarketID, &account, &side, &amount, &st.UpdatedAt); err != nil {
		return domain.Stake{}, err
	}
	st.Account = common.HexToAddress(account)
	st.Side = domain.Side(side)
	var err error
	if st.Amount, err = parseAmount(amount); err != nil {
		return domain.Stake{}, err
	}
	return st, nil
}

// Get retrieves the stake for one (market, account, side) key.
func (s *StakeStore) Get(ctx context.Context, marketID int64, account common.Address, side domain.Side) (domain.Stake, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stakeCols+` FROM stakes WHERE market_id = $1 AND account = $2 AND side = $3`,
		marketID, addrKey(account), string(side))
	st, err := scanStake(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stake{}, domain.ErrNotFound
		}
		return domain.Stake{}, fmt.Errorf("postgres: get stake market=%d account=%s: %w",
			marketID, account.Hex(), err)
	}
	return st, nil
}

// ListByMarket returns every stake in one market.
func (s *StakeStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Stake, error) {
	return s.queryStakes(ctx,
		`SELECT `+stakeCols+` FROM stakes WHERE market_id = $1 ORDER BY account, side`, marketID)
}

// ListAll returns every stake across all markets.
func (s *StakeStore) ListAll(ctx context.Context) ([]domain.Stake, error) {
	return s.queryStakes(ctx,
		`SELECT `+stakeCols+` FROM stakes ORDER BY market_id, account, side`)
}

func (s *StakeStore) queryStakes(ctx context.Context, query string, args ...any) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes: %w", err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stakes rows: %w", err)
	}
	return stakes, nil
}
