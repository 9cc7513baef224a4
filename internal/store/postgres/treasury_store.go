package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// TreasuryStore implements domain.TreasuryStore using PostgreSQL. The table
// holds a single row keyed by id = 1.
type TreasuryStore struct {
	pool *pgxpool.Pool
}

// NewTreasuryStore creates a new TreasuryStore backed by the given connection pool.
func NewTreasuryStore(pool *pgxpool.Pool) *TreasuryStore {
	return &TreasuryStore{pool: pool}
}

// Get returns the persisted treasury snapshot, or domain.ErrNotFound if the
// service has never written one.
func (s *TreasuryStore) Get(ctx context.Context) (domain.TreasurySnapshot, error) {
	const query = `
		SELECT fee_bps, min_bet::text, max_bet::text,
		       collected_fees::text, custodied::text, updated_at
		FROM treasury WHERE id = 1`

	var snap domain.TreasurySnapshot
	var minBet, maxBet, fees, custodied string
	err := s.pool.QueryRow(ctx, query).Scan(
		&snap.FeeBps, &minBet, &maxBet, &fees, &custodied, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TreasurySnapshot{}, domain.ErrNotFound
		}
		return domain.TreasurySnapshot{}, fmt.Errorf("postgres: get treasury: %w", err)
	}

	if snap.MinBet, err = parseAmount(minBet); err != nil {
		return domain.TreasurySnapshot{}, err
	}
	if snap.MaxBet, err = parseAmount(maxBet); err != nil {
		return domain.TreasurySnapshot{}, err
	}
	if snap.CollectedFees, err = parseAmount(fees); err != nil {
		return domain.TreasurySnapshot{}, err
	}
	if snap.Custodied, err = parseAmount(custodied); err != nil {
		return domain.TreasurySnapshot{}, err
	}
	return snap, nil
}

// Put writes the treasury snapshot, replacing any previous one.
func (s *TreasuryStore) Put(ctx context.Context, snap domain.TreasurySnapshot) error {
	const query = `
		INSERT INTO treasury (id, fee_bps, min_bet, max_bet, collected_fees, custodied, updated_at)
		VALUES (1, $1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6)
		ON CONFLICT (id) DO UPDATE SET
			fee_bps        = EXCLUDED.fee_bps,
			min_bet        = EXCLUDED.min_bet,
			max_bet        = EXCLUDED.max_bet,
			collected_fees = EXCLUDED.collected_fees,
			custodied      = EXCLUDED.custodied,
			updated_at     = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		snap.FeeBps,
		amountString(snap.MinBet), amountString(snap.MaxBet),
		amountString(snap.CollectedFees), amountString(snap.Custodied),
		snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put treasury: %w", err)
	}
	return nil
}
