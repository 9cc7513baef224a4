package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

func TestWithdrawFees(t *testing.T) {
	l, custody, _, m := resolvedMarket(t)

	t.Run("empty accumulator", func(t *testing.T) {
		if _, err := l.WithdrawFees(context.Background(), owner, owner); !errors.Is(err, domain.ErrZeroPayout) {
			t.Errorf("err = %v, want ErrZeroPayout", err)
		}
	})

	claim, err := l.Claim(context.Background(), alice, m.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	t.Run("not owner", func(t *testing.T) {
		if _, err := l.WithdrawFees(context.Background(), alice, alice); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("drains and zeroes", func(t *testing.T) {
		before := custody.balanceOf(owner)
		got, err := l.WithdrawFees(context.Background(), owner, owner)
		if err != nil {
			t.Fatalf("WithdrawFees: %v", err)
		}
		if got.Cmp(claim.Fee) != 0 {
			t.Errorf("withdrawn = %s, want %s", got, claim.Fee)
		}
		if l.CollectedFees().Sign() != 0 {
			t.Errorf("accumulator = %s after withdrawal, want 0", l.CollectedFees())
		}
		if delta := custody.balanceOf(owner).Sub(custody.balanceOf(owner), before); delta.Cmp(claim.Fee) != 0 {
			t.Errorf("owner received %s, want %s", delta, claim.Fee)
		}

		// Now empty again.
		if _, err := l.WithdrawFees(context.Background(), owner, owner); !errors.Is(err, domain.ErrZeroPayout) {
			t.Errorf("second withdrawal err = %v, want ErrZeroPayout", err)
		}
	})
}

func TestWithdrawFeesRollsBackOnPushFailure(t *testing.T) {
	l, custody, _, m := resolvedMarket(t)
	claim, err := l.Claim(context.Background(), alice, m.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	custody.pushErr = errors.New("transfer reverted")
	if _, err := l.WithdrawFees(context.Background(), owner, owner); err == nil {
		t.Fatal("WithdrawFees succeeded despite push failure")
	}
	if l.CollectedFees().Cmp(claim.Fee) != 0 {
		t.Errorf("accumulator = %s after failed withdrawal, want %s", l.CollectedFees(), claim.Fee)
	}
}

func TestSetFee(t *testing.T) {
	l, _, _ := newTestLedger(t)

	tests := []struct {
		name string
		bps  int64
		want error
	}{
		{"zero", 0, nil},
		{"typical", 250, nil},
		{"at ceiling", 1000, nil},
		{"above ceiling", 1001, domain.ErrFeeTooHigh},
		{"negative", -1, domain.ErrFeeTooHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.SetFee(owner, tt.bps)
			if !errors.Is(err, tt.want) {
				t.Fatalf("SetFee(%d) err = %v, want %v", tt.bps, err, tt.want)
			}
			if err == nil && l.FeeBps() != tt.bps {
				t.Errorf("FeeBps = %d, want %d", l.FeeBps(), tt.bps)
			}
		})
	}

	if err := l.SetFee(alice, 100); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("SetFee by non-owner err = %v, want ErrUnauthorized", err)
	}
}

func TestSetBetLimits(t *testing.T) {
	l, _, _ := newTestLedger(t)

	if err := l.SetBetLimits(alice, nil, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("SetBetLimits by non-owner err = %v, want ErrUnauthorized", err)
	}

	if err := l.SetBetLimits(owner, domain.NewAmount(2), domain.NewAmount(500)); err != nil {
		t.Fatalf("SetBetLimits: %v", err)
	}
	min, max := l.BetLimits()
	if min.Cmp(domain.NewAmount(2)) != 0 || max.Cmp(domain.NewAmount(500)) != 0 {
		t.Errorf("limits = %s/%s, want 2/500", domain.FormatAmount(min), domain.FormatAmount(max))
	}
}

func TestFeeChangeAppliesToLaterClaims(t *testing.T) {
	l, _, clock := newTestLedger(t)
	m := mustCreate(t, l, clock, time.Hour)
	mustBet(t, l, alice, m.ID, domain.SideYes, domain.NewAmount(500))
	mustBet(t, l, bob, m.ID, domain.SideNo, domain.NewAmount(500))

	clock.Advance(2 * time.Hour)
	if _, err := l.Resolve(owner, m.ID, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := l.SetFee(owner, 1000); err != nil {
		t.Fatalf("SetFee: %v", err)
	}

	claim, err := l.Claim(context.Background(), alice, m.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	// payout 1000 whole units at 10% fee.
	if claim.Fee.Cmp(domain.NewAmount(100)) != 0 {
		t.Errorf("fee = %s, want 100", domain.FormatAmount(claim.Fee))
	}
}
