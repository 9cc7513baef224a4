// Package service coordinates the betting engine with its surrounding
// infrastructure: persistence, caching, distributed locking, event
// publication, notifications, resolution receipts, and settlement archival.
// The engine remains the single authority on ledger state; everything here is
// write-through bookkeeping and fan-out around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/crypto"
	"github.com/alanyoungcy/wagerpool/internal/domain"
	"github.com/alanyoungcy/wagerpool/internal/engine"
)

// marketLockTTL bounds how long a per-market lock is held if the holder dies.
const marketLockTTL = 10 * time.Second

// Archiver writes a resolved market's settlement records to blob storage.
type Archiver interface {
	ArchiveMarket(ctx context.Context, market domain.Market) (int64, error)
}

// Notifier forwards ledger events to external channels.
type Notifier interface {
	NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error
}

// Vault is the custody collaborator's funding surface. The engine moves value
// through custody Pull/Push only; the service uses this wider view to credit
// deposits, read balances, and rebuild the vault at startup.
type Vault interface {
	Credit(account common.Address, amount *big.Int)
	BalanceOf(account common.Address) *big.Int
	Restore(balances map[common.Address]*big.Int, escrowed *big.Int)
}

// Stores groups the persistence backends. Any field may be nil, in which case
// the corresponding write-through and rehydration are skipped (demo mode runs
// fully in memory).
type Stores struct {
	Markets  domain.MarketStore
	Stakes   domain.StakeStore
	Claims   domain.ClaimStore
	Treasury domain.TreasuryStore
	Balances domain.BalanceStore
	Audit    domain.AuditStore
}

// Params configures a new LedgerService. Ledger and Logger are required;
// everything else is optional infrastructure.
type Params struct {
	Ledger   *engine.Ledger
	Vault    Vault
	Stores   Stores
	Cache    domain.MarketCache
	Locks    domain.LockManager
	Bus      domain.SignalBus
	Notifier Notifier
	Signer   *crypto.Signer
	Archiver Archiver
	Logger   *slog.Logger
}

// LedgerService implements the handler-facing market, bet, settlement, and
// treasury operations on top of the engine.
type LedgerService struct {
	ledger   *engine.Ledger
	vault    Vault
	stores   Stores
	cache    domain.MarketCache
	locks    domain.LockManager
	bus      domain.SignalBus
	notifier Notifier
	signer   *crypto.Signer
	archiver Archiver
	logger   *slog.Logger
}

// New creates a LedgerService.
func New(p Params) (*LedgerService, error) {
	if p.Ledger == nil {
		return nil, fmt.Errorf("service: ledger is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		ledger:   p.Ledger,
		vault:    p.Vault,
		stores:   p.Stores,
		cache:    p.Cache,
		locks:    p.Locks,
		bus:      p.Bus,
		notifier: p.Notifier,
		signer:   p.Signer,
		archiver: p.Archiver,
		logger:   logger.With(slog.String("component", "service")),
	}, nil
}

// Rehydrate loads persisted state into the engine and the custody vault. It
// must run before the service is exposed to callers. A completely empty store
// is a fresh start, not an error; each store that is not configured is simply
// skipped.
func (s *LedgerService) Rehydrate(ctx context.Context) error {
	if err := s.rehydrateLedger(ctx); err != nil {
		return err
	}
	return s.rehydrateVault(ctx)
}

func (s *LedgerService) rehydrateLedger(ctx context.Context) error {
	if s.stores.Markets == nil {
		return nil
	}

	markets, err := s.stores.Markets.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("service: rehydrate: load markets: %w", err)
	}

	treasury := s.ledger.Treasury()
	persisted := false
	if s.stores.Treasury != nil {
		snap, err := s.stores.Treasury.Get(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return fmt.Errorf("service: rehydrate: load treasury: %w", err)
		default:
			treasury = snap
			persisted = true
		}
	}
	if len(markets) == 0 && !persisted {
		// Nothing persisted yet; keep the configured defaults.
		return nil
	}

	var stakes []domain.Stake
	if s.stores.Stakes != nil {
		if stakes, err = s.stores.Stakes.ListAll(ctx); err != nil {
			return fmt.Errorf("service: rehydrate: load stakes: %w", err)
		}
	}
	var claims []domain.Claim
	if s.stores.Claims != nil {
		if claims, err = s.stores.Claims.ListAll(ctx); err != nil {
			return fmt.Errorf("service: rehydrate: load claims: %w", err)
		}
	}

	if err := s.ledger.Restore(markets, stakes, claims, treasury); err != nil {
		return fmt.Errorf("service: rehydrate: %w", err)
	}

	s.logger.Info("state rehydrated",
		slog.Int("markets", len(markets)),
		slog.Int("stakes", len(stakes)),
		slog.Int("claims", len(claims)),
	)
	return nil
}

// rehydrateVault rebuilds the custody vault from persisted balances. The
// escrow counter is seeded from the ledger's custodied total so that pulls
// and pushes stay conserved across a restart.
func (s *LedgerService) rehydrateVault(ctx context.Context) error {
	if s.vault == nil || s.stores.Balances == nil {
		return nil
	}

	balances, err := s.stores.Balances.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("service: rehydrate: load balances: %w", err)
	}
	custodied := s.ledger.Custodied()
	if len(balances) == 0 && custodied.Sign() == 0 {
		return nil
	}

	s.vault.Restore(balances, custodied)
	s.logger.Info("vault rehydrated",
		slog.Int("accounts", len(balances)),
		slog.String("escrowed", domain.FormatAmount(custodied)),
	)
	return nil
}

// CreateMarket opens a new market and persists it.
func (s *LedgerService) CreateMarket(ctx context.Context, question string, deadline time.Time) (domain.Market, error) {
	m, err := s.ledger.CreateMarket(question, deadline)
	if err != nil {
		return domain.Market{}, err
	}

	s.persistMarket(ctx, m)
	s.cacheMarket(ctx, m)
	s.audit(ctx, "market.create", map[string]any{
		"market_id": m.ID,
		"question":  m.Question,
		"deadline":  m.Deadline,
	})
	s.emit(ctx, domain.LedgerEvent{
		Type:     domain.EventMarketCreated,
		MarketID: m.ID,
		Question: m.Question,
		Deadline: m.Deadline.Format(time.RFC3339),
	})
	return m, nil
}

// GetMarket returns a market snapshot, preferring the cache.
func (s *LedgerService) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.ledger.GetMarket(id)
	if err != nil {
		return domain.Market{}, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

// ListMarkets returns markets ordered by id with pagination applied.
func (s *LedgerService) ListMarkets(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	all := s.ledger.Markets()

	if opts.Offset >= len(all) {
		return []domain.Market{}, nil
	}
	out := all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// CountMarkets returns the number of markets in the ledger.
func (s *LedgerService) CountMarkets(context.Context) (int64, error) {
	return s.ledger.MarketCount(), nil
}

// GetOdds returns the implied percentages for a market.
func (s *LedgerService) GetOdds(_ context.Context, id int64) (domain.Odds, error) {
	return s.ledger.GetOdds(id)
}

// Deposit credits external funds to an account's custody balance and persists
// the new balance. Funds must be deposited before they can be staked.
func (s *LedgerService) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("service: deposit: no custody vault attached")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("service: deposit: %w", domain.ErrInvalidAmount)
	}

	s.vault.Credit(account, amount)
	balance := s.vault.BalanceOf(account)

	s.persistBalance(ctx, account)
	s.audit(ctx, "custody.deposit", map[string]any{
		"account": account.Hex(),
		"amount":  domain.FormatAmount(amount),
		"balance": domain.FormatAmount(balance),
	})
	s.emit(ctx, domain.LedgerEvent{
		Type:    domain.EventDeposit,
		Account: account.Hex(),
		Amount:  domain.FormatAmount(amount),
	})
	return balance, nil
}

// Balance returns an account's spendable custody balance.
func (s *LedgerService) Balance(_ context.Context, account common.Address) (*big.Int, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("service: balance: no custody vault attached")
	}
	return s.vault.BalanceOf(account), nil
}

// PlaceBet escrows a stake on one side of a market and persists the updated
// market, stake, and treasury records.
func (s *LedgerService) PlaceBet(ctx context.Context, marketID int64, account common.Address, side domain.Side, amount *big.Int) (domain.Market, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	m, err := s.ledger.PlaceBet(ctx, account, marketID, side, amount)
	if err != nil {
		return domain.Market{}, err
	}

	s.persistMarket(ctx, m)
	s.persistStakeSide(ctx, marketID, account, side)
	s.persistTreasury(ctx)
	s.persistBalance(ctx, account)
	s.cacheMarket(ctx, m)
	s.emit(ctx, domain.LedgerEvent{
		Type:     domain.EventBetPlaced,
		MarketID: marketID,
		Question: m.Question,
		Account:  account.Hex(),
		Side:     string(side),
		Amount:   domain.FormatAmount(amount),
	})
	return m, nil
}

// UserStakes returns the caller's accumulated stake on each side of a market.
func (s *LedgerService) UserStakes(_ context.Context, marketID int64, account common.Address) (domain.StakePair, error) {
	return s.ledger.GetUserStakes(marketID, account)
}

// Resolve fixes a market's outcome, signs a resolution receipt, persists and
// archives the settled market, and publishes the resolution event.
func (s *LedgerService) Resolve(ctx context.Context, marketID int64, outcomeYes bool) (domain.Market, crypto.Receipt, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, crypto.Receipt{}, err
	}
	defer unlock()

	m, err := s.ledger.Resolve(s.ledger.Owner(), marketID, outcomeYes)
	if err != nil {
		return domain.Market{}, crypto.Receipt{}, err
	}

	var receipt crypto.Receipt
	if s.signer != nil {
		resolvedAt := m.CreatedAt
		if m.ResolvedAt != nil {
			resolvedAt = *m.ResolvedAt
		}
		receipt, err = s.signer.SignResolution(marketID, outcomeYes, resolvedAt)
		if err != nil {
			// The outcome is already fixed; a missing receipt is an
			// operational problem, not a resolution failure.
			s.logger.ErrorContext(ctx, "receipt signing failed",
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.persistMarket(ctx, m)
	s.invalidateMarket(ctx, marketID)
	s.audit(ctx, "market.resolve", map[string]any{
		"market_id":   marketID,
		"outcome_yes": outcomeYes,
		"hash":        receipt.Hash,
		"signature":   receipt.Signature,
		"signer":      receipt.Signer,
	})
	s.archiveMarket(ctx, m)
	s.emit(ctx, domain.LedgerEvent{
		Type:       domain.EventMarketResolved,
		MarketID:   marketID,
		Question:   m.Question,
		OutcomeYes: outcomeYes,
	})
	return m, receipt, nil
}

// Claim pays out an account's winnings for a resolved market and persists the
// claim record.
func (s *LedgerService) Claim(ctx context.Context, marketID int64, account common.Address) (domain.Claim, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Claim{}, err
	}
	defer unlock()

	c, err := s.ledger.Claim(ctx, account, marketID)
	if err != nil {
		return domain.Claim{}, err
	}

	s.persistClaim(ctx, c)
	s.persistTreasury(ctx)
	s.persistBalance(ctx, account)
	s.emit(ctx, domain.LedgerEvent{
		Type:     domain.EventClaimPaid,
		MarketID: marketID,
		Account:  account.Hex(),
		Amount:   domain.FormatAmount(c.UserShare),
		Fee:      domain.FormatAmount(c.Fee),
	})
	return c, nil
}

// PayoutQuote previews what a claim would pay right now, without mutating
// anything.
func (s *LedgerService) PayoutQuote(_ context.Context, marketID int64, account common.Address) (domain.PayoutQuote, error) {
	payout, err := s.ledger.CalculatePayout(marketID, account)
	if err != nil {
		return domain.PayoutQuote{}, err
	}
	userShare, err := s.ledger.CalculatePayoutAfterFee(marketID, account)
	if err != nil {
		return domain.PayoutQuote{}, err
	}
	fee := new(big.Int).Sub(payout, userShare)

	return domain.PayoutQuote{
		MarketID:  marketID,
		Account:   account,
		Payout:    payout,
		Fee:       fee,
		UserShare: userShare,
		Claimed:   s.ledger.HasClaimed(marketID, account),
	}, nil
}

// Treasury returns the current treasury snapshot.
func (s *LedgerService) Treasury(context.Context) (domain.TreasurySnapshot, error) {
	return s.ledger.Treasury(), nil
}

// WithdrawFees drains the fee accumulator to the given address.
func (s *LedgerService) WithdrawFees(ctx context.Context, to common.Address) (*big.Int, error) {
	amount, err := s.ledger.WithdrawFees(ctx, s.ledger.Owner(), to)
	if err != nil {
		return nil, err
	}

	s.persistTreasury(ctx)
	s.persistBalance(ctx, to)
	s.audit(ctx, "treasury.withdraw", map[string]any{
		"to":     to.Hex(),
		"amount": domain.FormatAmount(amount),
	})
	s.emit(ctx, domain.LedgerEvent{
		Type:    domain.EventFeesWithdrawn,
		Account: to.Hex(),
		Amount:  domain.FormatAmount(amount),
	})
	return amount, nil
}

// SetFee updates the protocol fee rate.
func (s *LedgerService) SetFee(ctx context.Context, bps int64) error {
	if err := s.ledger.SetFee(s.ledger.Owner(), bps); err != nil {
		return err
	}
	s.persistTreasury(ctx)
	s.audit(ctx, "treasury.set_fee", map[string]any{"fee_bps": bps})
	return nil
}

// SetBetLimits updates the per-bet stake bounds.
func (s *LedgerService) SetBetLimits(ctx context.Context, minBet, maxBet *big.Int) error {
	if err := s.ledger.SetBetLimits(s.ledger.Owner(), minBet, maxBet); err != nil {
		return err
	}
	s.persistTreasury(ctx)
	s.audit(ctx, "treasury.set_limits", map[string]any{
		"min_bet": domain.FormatAmount(minBet),
		"max_bet": domain.FormatAmount(maxBet),
	})
	return nil
}

// AuditLog returns persisted audit entries, newest first.
func (s *LedgerService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.stores.Audit == nil {
		return []domain.AuditEntry{}, nil
	}
	return s.stores.Audit.List(ctx, opts)
}

// lockMarket serializes mutations per market across replicas. Without a lock
// manager the engine's own guard and mutex still serialize the local process.
func (s *LedgerService) lockMarket(ctx context.Context, marketID int64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	return s.locks.Acquire(ctx, fmt.Sprintf("market:%d", marketID), marketLockTTL)
}

// persistMarket writes through a market snapshot. Persistence failures are
// logged but never fail the operation; the engine already committed.
func (s *LedgerService) persistMarket(ctx context.Context, m domain.Market) {
	if s.stores.Markets == nil {
		return
	}
	if err := s.stores.Markets.Upsert(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market write-through failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

// persistStakeSide writes through the caller's accumulated stake on one side.
func (s *LedgerService) persistStakeSide(ctx context.Context, marketID int64, account common.Address, side domain.Side) {
	if s.stores.Stakes == nil {
		return
	}
	pair, err := s.ledger.GetUserStakes(marketID, account)
	if err != nil {
		s.logger.WarnContext(ctx, "stake write-through failed",
			slog.Int64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	amount := pair.Yes
	if side == domain.SideNo {
		amount = pair.No
	}
	err = s.stores.Stakes.Upsert(ctx, domain.Stake{
		MarketID:  marketID,
		Account:   account,
		Side:      side,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "stake write-through failed",
			slog.Int64("market_id", marketID),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// persistBalance writes through an account's spendable custody balance.
func (s *LedgerService) persistBalance(ctx context.Context, account common.Address) {
	if s.vault == nil || s.stores.Balances == nil {
		return
	}
	if err := s.stores.Balances.Upsert(ctx, account, s.vault.BalanceOf(account)); err != nil {
		s.logger.WarnContext(ctx, "balance write-through failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *LedgerService) persistClaim(ctx context.Context, c domain.Claim) {
	if s.stores.Claims == nil {
		return
	}
	if err := s.stores.Claims.Insert(ctx, c); err != nil {
		s.logger.WarnContext(ctx, "claim write-through failed",
			slog.Int64("market_id", c.MarketID),
			slog.String("account", c.Account.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *LedgerService) persistTreasury(ctx context.Context) {
	if s.stores.Treasury == nil {
		return
	}
	if err := s.stores.Treasury.Put(ctx, s.ledger.Treasury()); err != nil {
		s.logger.WarnContext(ctx, "treasury write-through failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *LedgerService) cacheMarket(ctx context.Context, m domain.Market) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market cache set failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *LedgerService) invalidateMarket(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market cache invalidation failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *LedgerService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.stores.Audit == nil {
		return
	}
	if err := s.stores.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// archiveMarket writes the settled market's records to blob storage.
func (s *LedgerService) archiveMarket(ctx context.Context, m domain.Market) {
	if s.archiver == nil {
		return
	}
	lines, err := s.archiver.ArchiveMarket(ctx, m)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement archival failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("settlement archived",
		slog.Int64("market_id", m.ID),
		slog.Int64("lines", lines),
	)
}

// emit publishes a ledger event on the signal bus and forwards it to the
// notifier. Both are best-effort.
func (s *LedgerService) emit(ctx context.Context, ev domain.LedgerEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	if s.bus != nil {
		payload, err := ev.Encode()
		if err == nil {
			err = s.bus.Publish(ctx, domain.EventChannel, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				slog.String("type", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "notification failed",
				slog.String("type", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}
