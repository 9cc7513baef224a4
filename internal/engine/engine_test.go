package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

// fakeClock is a manually advanced clock shared with the ledger under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeCustody is an in-memory custody with failure injection and callback
// hooks, so tests can simulate adversarial reentrant transfer code.
type fakeCustody struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	escrowed *big.Int
	pullErr  error
	pushErr  error
	onPull   func(ctx context.Context)
	onPush   func(ctx context.Context)
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{
		balances: make(map[common.Address]*big.Int),
		escrowed: new(big.Int),
	}
}

func (c *fakeCustody) credit(acct common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[acct] == nil {
		c.balances[acct] = new(big.Int)
	}
	c.balances[acct].Add(c.balances[acct], amount)
}

func (c *fakeCustody) balanceOf(acct common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneAmount(c.balances[acct])
}

func (c *fakeCustody) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	if c.onPull != nil {
		c.onPull(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pullErr != nil {
		return c.pullErr
	}
	bal := c.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	bal.Sub(bal, amount)
	c.escrowed.Add(c.escrowed, amount)
	return nil
}

func (c *fakeCustody) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	if c.onPush != nil {
		c.onPush(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		return c.pushErr
	}
	if c.balances[to] == nil {
		c.balances[to] = new(big.Int)
	}
	c.balances[to].Add(c.balances[to], amount)
	c.escrowed.Sub(c.escrowed, amount)
	return nil
}

// newTestLedger builds a ledger with a 200 bps fee, a 1-unit minimum bet, no
// maximum, and everyone funded with 1,000,000 whole units.
func newTestLedger(t *testing.T) (*Ledger, *fakeCustody, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	custody := newFakeCustody()
	for _, acct := range []common.Address{alice, bob, carol} {
		custody.credit(acct, domain.NewAmount(1_000_000))
	}
	l, err := New(Params{
		Owner:   owner,
		Custody: custody,
		FeeBps:  200,
		MinBet:  domain.Units(1),
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, custody, clock
}

func mustCreate(t *testing.T, l *Ledger, clock *fakeClock, d time.Duration) domain.Market {
	t.Helper()
	m, err := l.CreateMarket("Will it rain tomorrow?", clock.Now().Add(d))
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func mustBet(t *testing.T, l *Ledger, acct common.Address, id int64, side domain.Side, amount *big.Int) {
	t.Helper()
	if _, err := l.PlaceBet(context.Background(), acct, id, side, amount); err != nil {
		t.Fatalf("PlaceBet(%s, %s, %s): %v", acct, side, amount, err)
	}
}

func TestCreateMarket(t *testing.T) {
	l, _, clock := newTestLedger(t)

	m := mustCreate(t, l, clock, time.Hour)
	if m.ID != 1 {
		t.Errorf("first market ID = %d, want 1", m.ID)
	}
	if m.YesPool.Sign() != 0 || m.NoPool.Sign() != 0 {
		t.Errorf("new market pools = %s/%s, want 0/0", m.YesPool, m.NoPool)
	}
	if got := m.Status(clock.Now()); got != domain.MarketStatusOpen {
		t.Errorf("status = %s, want open", got)
	}

	m2 := mustCreate(t, l, clock, 2*time.Hour)
	if m2.ID != 2 {
		t.Errorf("second market ID = %d, want 2", m2.ID)
	}
}

func TestCreateMarketPastDeadline(t *testing.T) {
	l, _, clock := newTestLedger(t)

	for _, d := range []time.Duration{0, -time.Second, -time.Hour} {
		if _, err := l.CreateMarket("too late", clock.Now().Add(d)); !errors.Is(err, domain.ErrDeadlinePast) {
			t.Errorf("CreateMarket(deadline now%+v) err = %v, want ErrDeadlinePast", d, err)
		}
	}
	// No state change: the market counter is untouched.
	if got := l.MarketCount(); got != 0 {
		t.Errorf("MarketCount after failed creates = %d, want 0", got)
	}
}

func TestPlaceBetAccumulatesPools(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(700))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(300))
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(50))

	got, err := l.GetMarket(m.ID)
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if want := domain.NewAmount(750); got.YesPool.Cmp(want) != 0 {
		t.Errorf("YesPool = %s, want %s", got.YesPool, want)
	}
	if want := domain.NewAmount(300); got.NoPool.Cmp(want) != 0 {
		t.Errorf("NoPool = %s, want %s", got.NoPool, want)
	}

	// yesPool + noPool equals the sum of everything placeBet accepted, and
	// matches both ledger custody accounting and the custody's own escrow.
	total := got.TotalPool()
	if want := domain.NewAmount(1050); total.Cmp(want) != 0 {
		t.Errorf("TotalPool = %s, want %s", total, want)
	}
	if c := l.Custodied(); c.Cmp(total) != 0 {
		t.Errorf("Custodied = %s, want %s", c, total)
	}
	custody.mu.Lock()
	escrow := domain.CloneAmount(custody.escrowed)
	custody.mu.Unlock()
	if escrow.Cmp(total) != 0 {
		t.Errorf("custody escrow = %s, want %s", escrow, total)
	}

	stakes, err := l.GetUserStakes(m.ID, alice)
	if err != nil {
		t.Fatalf("GetUserStakes: %v", err)
	}
	if want := domain.NewAmount(750); stakes.Yes.Cmp(want) != 0 {
		t.Errorf("alice yes stake = %s, want %s", stakes.Yes, want)
	}
	if stakes.No.Sign() != 0 {
		t.Errorf("alice no stake = %s, want 0", stakes.No)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	if err := l.SetBetLimits(owner, domain.NewAmount(1), domain.NewAmount(100)); err != nil {
		t.Fatalf("SetBetLimits: %v", err)
	}

	ctx := context.Background()
	tests := []struct {
		name   string
		id     int64
		side   domain.Side
		amount *big.Int
		want   error
	}{
		{"unknown market", 99, domain.SideYes, domain.NewAmount(5), domain.ErrNotFound},
		{"bad side", m.ID, domain.Side("maybe"), domain.NewAmount(5), domain.ErrInvalidSide},
		{"nil amount", m.ID, domain.SideYes, nil, domain.ErrInvalidAmount},
		{"zero amount", m.ID, domain.SideYes, new(big.Int), domain.ErrInvalidAmount},
		{"below minimum", m.ID, domain.SideYes, domain.Units(10), domain.ErrBelowMinimum},
		{"above maximum", m.ID, domain.SideYes, domain.NewAmount(101), domain.ErrAboveMaximum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.PlaceBet(ctx, alice, tt.id, tt.side, tt.amount); !errors.Is(err, tt.want) {
				t.Errorf("PlaceBet err = %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing was accepted, so the pools stay empty.
	got, _ := l.GetMarket(m.ID)
	if got.TotalPool().Sign() != 0 {
		t.Errorf("TotalPool after rejected bets = %s, want 0", got.TotalPool())
	}
}

func TestPlaceBetMaxZeroDisablesCeiling(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	// Default max is zero: an arbitrarily large bet passes.
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(999_999))
}

func TestPlaceBetAfterDeadline(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	clock.Advance(time.Hour) // exactly at the deadline: betting is closed
	if _, err := l.PlaceBet(context.Background(), alice, m.ID, domain.SideYes, domain.NewAmount(5)); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Errorf("PlaceBet at deadline err = %v, want ErrAlreadyEnded", err)
	}

	clock.Advance(time.Minute)
	if _, err := l.PlaceBet(context.Background(), alice, m.ID, domain.SideYes, domain.NewAmount(5)); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Errorf("PlaceBet past deadline err = %v, want ErrAlreadyEnded", err)
	}
}

func TestPlaceBetPullFailureLeavesStateUntouched(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	custody.pullErr = errors.New("transfer reverted")
	if _, err := l.PlaceBet(context.Background(), alice, m.ID, domain.SideYes, domain.NewAmount(5)); err == nil {
		t.Fatal("PlaceBet succeeded despite custody pull failure")
	}

	got, _ := l.GetMarket(m.ID)
	if got.TotalPool().Sign() != 0 {
		t.Errorf("TotalPool = %s, want 0", got.TotalPool())
	}
	if l.Custodied().Sign() != 0 {
		t.Errorf("Custodied = %s, want 0", l.Custodied())
	}
}

func TestPlaceBetRefundsWhenDeadlinePassesMidPull(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	// The deadline passes while the custody pull is in flight; the bet must
	// be refunded in full.
	custody.onPull = func(context.Context) { clock.Advance(2 * time.Hour) }

	before := custody.balanceOf(alice)
	if _, err := l.PlaceBet(context.Background(), alice, m.ID, domain.SideYes, domain.NewAmount(5)); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("PlaceBet err = %v, want ErrAlreadyEnded", err)
	}
	if after := custody.balanceOf(alice); after.Cmp(before) != 0 {
		t.Errorf("alice balance = %s, want %s (refund)", after, before)
	}
	got, _ := l.GetMarket(m.ID)
	if got.TotalPool().Sign() != 0 {
		t.Errorf("TotalPool = %s, want 0", got.TotalPool())
	}
}

func TestPlaceBetReentrancyRejected(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	var reentrantErr error
	custody.onPull = func(ctx context.Context) {
		custody.onPull = nil // only on the outer call
		_, reentrantErr = l.PlaceBet(ctx, bob, m.ID, domain.SideNo, domain.NewAmount(5))
	}

	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(10))
	if !errors.Is(reentrantErr, domain.ErrReentrantCall) {
		t.Errorf("nested PlaceBet err = %v, want ErrReentrantCall", reentrantErr)
	}

	// Only the outer bet landed.
	got, _ := l.GetMarket(m.ID)
	if want := domain.NewAmount(10); got.TotalPool().Cmp(want) != 0 {
		t.Errorf("TotalPool = %s, want %s", got.TotalPool(), want)
	}
}

func TestGetOdds(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	// Empty market reports 50/50.
	odds, err := l.GetOdds(m.ID)
	if err != nil {
		t.Fatalf("GetOdds: %v", err)
	}
	if odds.YesPercent != 50 || odds.NoPercent != 50 {
		t.Errorf("empty odds = %d/%d, want 50/50", odds.YesPercent, odds.NoPercent)
	}

	tests := []struct {
		yes, no  int64
		wantYes  int64
		wantNo   int64
	}{
		{700, 300, 70, 30},
		{1, 2, 33, 67},  // floor(100/3)=33, no side absorbs the remainder
		{2, 1, 66, 34},
		{1, 0, 100, 0},
		{0, 1, 0, 100},
	}
	for _, tt := range tests {
		mm := mustCreate(t, l, clock, time.Hour)
		if tt.yes > 0 {
			mustBet(t, l, alice, mm.ID, domain.SideYes, domain.NewAmount(tt.yes))
		}
		if tt.no > 0 {
			mustBet(t, l, bob, mm.ID, domain.SideNo, domain.NewAmount(tt.no))
		}
		odds, err := l.GetOdds(mm.ID)
		if err != nil {
			t.Fatalf("GetOdds(%d/%d): %v", tt.yes, tt.no, err)
		}
		if odds.YesPercent != tt.wantYes || odds.NoPercent != tt.wantNo {
			t.Errorf("odds(%d/%d) = %d/%d, want %d/%d",
				tt.yes, tt.no, odds.YesPercent, odds.NoPercent, tt.wantYes, tt.wantNo)
		}
		if odds.YesPercent+odds.NoPercent != 100 {
			t.Errorf("odds(%d/%d) sum = %d, want 100", tt.yes, tt.no, odds.YesPercent+odds.NoPercent)
		}
	}

	if _, err := l.GetOdds(999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetOdds(999) err = %v, want ErrNotFound", err)
	}
}

func TestMarketsEnumeration(t *testing.T) {
	l, _, clock := newTestLedger(t)
	for i := 0; i < 3; i++ {
		mustCreate(t, l, clock, time.Hour)
	}

	markets := l.Markets()
	if len(markets) != 3 {
		t.Fatalf("Markets() len = %d, want 3", len(markets))
	}
	for i, m := range markets {
		if m.ID != int64(i)+1 {
			t.Errorf("markets[%d].ID = %d, want %d", i, m.ID, i+1)
		}
	}
}

func TestSnapshotsDoNotAliasLedgerState(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(10))

	snap, _ := l.GetMarket(m.ID)
	snap.YesPool.SetInt64(0) // mutating the snapshot must not reach the ledger

	got, _ := l.GetMarket(m.ID)
	if want := domain.NewAmount(10); got.YesPool.Cmp(want) != 0 {
		t.Errorf("YesPool after snapshot mutation = %s, want %s", got.YesPool, want)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(700))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(300))

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Rebuild a fresh ledger from the persisted shape.
	markets := l.Markets()
	stakes := []domain.Stake{
		{MarketID: m.ID, Account: alice, Side: domain.SideYes, Amount: domain.NewAmount(700)},
		{MarketID: m.ID, Account: bob, Side: domain.SideNo, Amount: domain.NewAmount(300)},
	}
	treasury := l.Treasury()

	restored, err := New(Params{Owner: owner, Custody: custody, FeeBps: 200, Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := restored.Restore(markets, stakes, nil, treasury); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	payout, err := restored.CalculatePayout(m.ID, alice)
	if err != nil {
		t.Fatalf("CalculatePayout: %v", err)
	}
	want, _ := l.CalculatePayout(m.ID, alice)
	if payout.Cmp(want) != 0 {
		t.Errorf("restored payout = %s, want %s", payout, want)
	}
	if restored.Custodied().Cmp(l.Custodied()) != 0 {
		t.Errorf("restored custody = %s, want %s", restored.Custodied(), l.Custodied())
	}
}

func TestRestoreRejectsBrokenArena(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	_ = custody
	mustCreate(t, l, clock, time.Hour)

	fresh, _ := New(Params{Owner: owner, Custody: newFakeCustody(), Now: clock.Now})
	bad := []domain.Market{{ID: 2, YesPool: new(big.Int), NoPool: new(big.Int)}}
	if err := fresh.Restore(bad, nil, nil, domain.TreasurySnapshot{}); err == nil {
		t.Error("Restore accepted a non-contiguous market arena")
	}
}
