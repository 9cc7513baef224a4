package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// resolvedMarket sets up a worked example: yesPool=700, noPool=300,
// resolved YES, alice holding 100 of the yes pool.
func resolvedMarket(t *testing.T) (*Ledger, *fakeCustody, *fakeClock, domain.Market) {
	t.Helper()
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(100))
	mustBet(t, l, carol, m.ID, domain.SideYes, domain.NewAmount(600))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(300))

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m2, _ := l.GetMarket(m.ID)
	return l, custody, clock, m2
}

func TestResolve(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	t.Run("before deadline", func(t *testing.T) {
		if _, err := l.Resolve(owner, m.ID, true); !errors.Is(err, domain.ErrNotYetEnded) {
			t.Errorf("err = %v, want ErrNotYetEnded", err)
		}
	})

	t.Run("not owner", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		if _, err := l.Resolve(alice, m.ID, true); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown market", func(t *testing.T) {
		if _, err := l.Resolve(owner, 42, true); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("succeeds exactly once", func(t *testing.T) {
		got, err := l.Resolve(owner, m.ID, false)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !got.Resolved || got.OutcomeYes {
			t.Errorf("resolved = %v outcomeYes = %v, want true/false", got.Resolved, got.OutcomeYes)
		}
		if got.Status(clock.Now()) != domain.MarketStatusResolved {
			t.Errorf("status = %s, want resolved", got.Status(clock.Now()))
		}

		// The outcome is permanent: a retry cannot flip it.
		if _, err := l.Resolve(owner, m.ID, true); !errors.Is(err, domain.ErrAlreadyResolved) {
			t.Errorf("second resolve err = %v, want ErrAlreadyResolved", err)
		}
		again, _ := l.GetMarket(m.ID)
		if again.OutcomeYes {
			t.Error("outcome flipped by rejected second resolve")
		}
	})
}

func TestCalculatePayout(t *testing.T) {
	l, _, _, m := resolvedMarket(t)

	// floor(100 * 1000 / 700) = 142.857142... -> 142 whole units.
	payout, err := l.CalculatePayout(m.ID, alice)
	if err != nil {
		t.Fatalf("CalculatePayout: %v", err)
	}
	want, _ := domain.ParseAmount("142.857142")
	if payout.Cmp(want) != 0 {
		t.Errorf("alice payout = %s, want %s", domain.FormatAmount(payout), domain.FormatAmount(want))
	}

	// The loser gets nothing.
	payout, err = l.CalculatePayout(m.ID, bob)
	if err != nil {
		t.Fatalf("CalculatePayout(bob): %v", err)
	}
	if payout.Sign() != 0 {
		t.Errorf("bob payout = %s, want 0", payout)
	}

	// A stranger with no stake gets nothing.
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	payout, _ = l.CalculatePayout(m.ID, stranger)
	if payout.Sign() != 0 {
		t.Errorf("stranger payout = %s, want 0", payout)
	}
}

func TestCalculatePayoutWholeUnits(t *testing.T) {
	// Integer example: yesPool=700, noPool=300, yes-stake=100
	// (in base units so the floors are visible): payout=142, fee 200bps=2,
	// user receives 140.
	l, _, clock := newTestLedger(t)
	if err := l.SetBetLimits(owner, nil, nil); err != nil {
		t.Fatalf("SetBetLimits: %v", err)
	}
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.Units(100))
	mustBet(t, l, carol, m.ID, domain.SideYes, domain.Units(600))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.Units(300))
	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	payout, _ := l.CalculatePayout(m.ID, alice)
	if payout.Cmp(domain.Units(142)) != 0 {
		t.Fatalf("payout = %s, want 142", payout)
	}
	after, _ := l.CalculatePayoutAfterFee(m.ID, alice)
	if after.Cmp(domain.Units(140)) != 0 {
		t.Errorf("payout after fee = %s, want 140", after)
	}

	claim, err := l.Claim(context.Background(), alice, m.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claim.Fee.Cmp(domain.Units(2)) != 0 {
		t.Errorf("fee = %s, want 2", claim.Fee)
	}
	if claim.UserShare.Cmp(domain.Units(140)) != 0 {
		t.Errorf("user share = %s, want 140", claim.UserShare)
	}
}

func TestCalculatePayoutUnresolved(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(100))

	payout, err := l.CalculatePayout(m.ID, alice)
	if err != nil {
		t.Fatalf("CalculatePayout: %v", err)
	}
	if payout.Sign() != 0 {
		t.Errorf("payout before resolution = %s, want 0", payout)
	}
}

func TestCalculatePayoutEmptyWinningPool(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(300))

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil { // YES wins, nobody held yes
		t.Fatalf("Resolve: %v", err)
	}

	payout, _ := l.CalculatePayout(m.ID, bob)
	if payout.Sign() != 0 {
		t.Errorf("payout with empty winning pool = %s, want 0", payout)
	}
}

func TestPayoutsNeverExceedPoolDustStaysPositive(t *testing.T) {
	// Awkward stake sizes force floor-division residue. The sum of all
	// winner payouts must never exceed the total pool, and the shortfall
	// (dust) must never be negative.
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	mustBet(t, l, alice, m.ID, domain.SideYes, domain.Units(333))
	mustBet(t, l, carol, m.ID, domain.SideYes, domain.Units(334))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.Units(1000))

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	mm, _ := l.GetMarket(m.ID)
	total := mm.TotalPool()

	sum := new(big.Int)
	for _, acct := range []common.Address{alice, carol} {
		p, err := l.CalculatePayout(m.ID, acct)
		if err != nil {
			t.Fatalf("CalculatePayout(%s): %v", acct, err)
		}
		sum.Add(sum, p)
	}
	if sum.Cmp(total) > 0 {
		t.Fatalf("sum of payouts %s exceeds pool %s", sum, total)
	}
	if dust := new(big.Int).Sub(total, sum); dust.Sign() < 0 {
		t.Fatalf("dust = %s, want >= 0", dust)
	}
}

func TestClaim(t *testing.T) {
	l, custody, _, m := resolvedMarket(t)

	before := custody.balanceOf(alice)
	claim, err := l.Claim(context.Background(), alice, m.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// payout 142.857142, fee 200 bps = 2.857142, user share exactly 140.
	wantPayout, _ := domain.ParseAmount("142.857142")
	if claim.Payout.Cmp(wantPayout) != 0 {
		t.Errorf("payout = %s, want %s", domain.FormatAmount(claim.Payout), domain.FormatAmount(wantPayout))
	}
	wantShare := new(big.Int).Sub(wantPayout, claim.Fee)
	if claim.UserShare.Cmp(wantShare) != 0 {
		t.Errorf("user share = %s, want %s", claim.UserShare, wantShare)
	}
	if got := new(big.Int).Sub(custody.balanceOf(alice), before); got.Cmp(claim.UserShare) != 0 {
		t.Errorf("alice received %s, want %s", got, claim.UserShare)
	}
	if fees := l.CollectedFees(); fees.Cmp(claim.Fee) != 0 {
		t.Errorf("collected fees = %s, want %s", fees, claim.Fee)
	}

	// Exactly once per (market, account).
	if _, err := l.Claim(context.Background(), alice, m.ID); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	if !l.HasClaimed(m.ID, alice) {
		t.Error("HasClaimed = false after successful claim")
	}
}

func TestClaimFailures(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(100))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(100))

	ctx := context.Background()

	t.Run("unresolved", func(t *testing.T) {
		if _, err := l.Claim(ctx, alice, m.ID); !errors.Is(err, domain.ErrNotYetEnded) {
			t.Errorf("err = %v, want ErrNotYetEnded", err)
		}
	})

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	t.Run("loser", func(t *testing.T) {
		if _, err := l.Claim(ctx, bob, m.ID); !errors.Is(err, domain.ErrZeroPayout) {
			t.Errorf("err = %v, want ErrZeroPayout", err)
		}
	})

	t.Run("unknown market", func(t *testing.T) {
		if _, err := l.Claim(ctx, alice, 42); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestClaimRollsBackOnPushFailure(t *testing.T) {
	l, custody, _, m := resolvedMarket(t)

	custody.pushErr = errors.New("transfer reverted")
	if _, err := l.Claim(context.Background(), alice, m.ID); err == nil {
		t.Fatal("Claim succeeded despite custody push failure")
	}

	// All-or-nothing: the claim flag, fees, and custody are untouched, and
	// a retry succeeds once the transfer works again.
	if l.HasClaimed(m.ID, alice) {
		t.Error("claim flag set after failed claim")
	}
	if l.CollectedFees().Sign() != 0 {
		t.Errorf("collected fees = %s after failed claim, want 0", l.CollectedFees())
	}
	if l.Custodied().Cmp(m.TotalPool()) != 0 {
		t.Errorf("custodied = %s, want %s", l.Custodied(), m.TotalPool())
	}

	custody.pushErr = nil
	if _, err := l.Claim(context.Background(), alice, m.ID); err != nil {
		t.Errorf("retry after push failure: %v", err)
	}
}

func TestClaimReentrancyRejected(t *testing.T) {
	l, custody, _, m := resolvedMarket(t)

	// A malicious recipient re-enters Claim from inside the custody push.
	// The claim flag is already set, but the reentrancy guard fires first.
	var reentrantErr error
	custody.onPush = func(ctx context.Context) {
		custody.onPush = nil
		_, reentrantErr = l.Claim(ctx, alice, m.ID)
	}

	if _, err := l.Claim(context.Background(), alice, m.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !errors.Is(reentrantErr, domain.ErrReentrantCall) {
		t.Errorf("nested claim err = %v, want ErrReentrantCall", reentrantErr)
	}

	// Paid exactly once.
	want, _ := domain.ParseAmount("142.857142")
	fee := new(big.Int).Quo(new(big.Int).Mul(want, big.NewInt(200)), big.NewInt(10_000))
	share := new(big.Int).Sub(want, fee)
	got := new(big.Int).Sub(custody.balanceOf(alice), domain.NewAmount(1_000_000-100))
	if got.Cmp(share) != 0 {
		t.Errorf("alice net received %s, want %s", got, share)
	}
}

func TestConservationAcrossFullLifecycle(t *testing.T) {
	l, custody, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)

	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(700))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(300))

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	claim, err := l.Claim(context.Background(), alice, m.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	withdrawn, err := l.WithdrawFees(context.Background(), owner, owner)
	if err != nil {
		t.Fatalf("WithdrawFees: %v", err)
	}
	if withdrawn.Cmp(claim.Fee) != 0 {
		t.Errorf("withdrawn = %s, want %s", withdrawn, claim.Fee)
	}

	// Whatever is still custodied is exactly the total staked minus what
	// left through the claim and the fee withdrawal; never negative.
	expected := domain.NewAmount(1000)
	expected.Sub(expected, claim.UserShare)
	expected.Sub(expected, withdrawn)
	if got := l.Custodied(); got.Cmp(expected) != 0 {
		t.Errorf("custodied = %s, want %s", got, expected)
	}
	if l.Custodied().Sign() < 0 {
		t.Error("custody went negative")
	}

	custody.mu.Lock()
	escrow := domain.CloneAmount(custody.escrowed)
	custody.mu.Unlock()
	if escrow.Cmp(l.Custodied()) != 0 {
		t.Errorf("custody escrow %s != ledger custodied %s", escrow, l.Custodied())
	}
}
