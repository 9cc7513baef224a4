package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// ClaimStore implements domain.ClaimStore using PostgreSQL. The primary key
// on (market_id, account) enforces at most one claim per account per market
// at the storage layer too.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a new ClaimStore backed by the given connection pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Insert records a completed claim. A duplicate (market, account) pair
// returns domain.ErrAlreadyClaimed.
func (s *ClaimStore) Insert(ctx context.Context, c domain.Claim) error {
	const query = `
		INSERT INTO claims (market_id, account, payout, fee, user_share, claimed_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)`

	_, err := s.pool.Exec(ctx, query,
		c.MarketID, addrKey(c.Account),
		amountString(c.Payout), amountString(c.Fee), amountString(c.UserShare),
		c.ClaimedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyClaimed
		}
		return fmt.Errorf("postgres: insert claim market=%d account=%s: %w",
			c.MarketID, c.Account.Hex(), err)
	}
	return nil
}

// Exists reports whether the account has already claimed in the market.
func (s *ClaimStore) Exists(ctx context.Context, marketID int64, account common.Address) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM claims WHERE market_id = $1 AND account = $2)`,
		marketID, addrKey(account)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: claim exists market=%d account=%s: %w",
			marketID, account.Hex(), err)
	}
	return exists, nil
}

const claimCols = `market_id, account, payout::text, fee::text, user_share::text, claimed_at`

func scanClaim(row pgx.Row) (domain.Claim, error) {
	var c domain.Claim
	var account, payout, fee, share string
	if err := row.Scan(&c.MarketID, &account, &payout, &fee, &share, &c.ClaimedAt); err != nil {
		return domain.Claim{}, err
	}
	c.Account = common.HexToAddress(account)
	var err error
	if c.Payout, err = parseAmount(payout); err != nil {
		return domain.Claim{}, err
	}
	if c.Fee, err = parseAmount(fee); err != nil {
		return domain.Claim{}, err
	}
	if c.UserShare, err = parseAmount(share); err != nil {
		return domain.Claim{}, err
	}
	return c, nil
}

// ListByMarket returns every claim in one market.
func (s *ClaimStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimCols+` FROM claims WHERE market_id = $1 ORDER BY account`, marketID)
}

// ListAll returns every claim across all markets.
func (s *ClaimStore) ListAll(ctx context.Context) ([]domain.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimCols+` FROM claims ORDER BY market_id, account`)
}

func (s *ClaimStore) queryClaims(ctx context.Context, query string, args ...any) ([]domain.Claim, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claims rows: %w", err)
	}
	return claims, nil
}
