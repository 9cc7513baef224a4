package custody

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

var acct = common.HexToAddress("0x0000000000000000000000000000000000000001")

func TestVaultPullPush(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	v.Credit(acct, domain.NewAmount(100))

	if err := v.Pull(ctx, acct, domain.NewAmount(40)); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if got, want := v.BalanceOf(acct), domain.NewAmount(60); got.Cmp(want) != 0 {
		t.Errorf("balance = %s, want %s", got, want)
	}
	if got, want := v.Escrowed(), domain.NewAmount(40); got.Cmp(want) != 0 {
		t.Errorf("escrowed = %s, want %s", got, want)
	}

	if err := v.Push(ctx, acct, domain.NewAmount(40)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got, want := v.BalanceOf(acct), domain.NewAmount(100); got.Cmp(want) != 0 {
		t.Errorf("balance after push = %s, want %s", got, want)
	}
	if v.Escrowed().Sign() != 0 {
		t.Errorf("escrowed after push = %s, want 0", v.Escrowed())
	}
}

func TestVaultPullInsufficient(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	v.Credit(acct, domain.NewAmount(10))
	if err := v.Pull(ctx, acct, domain.NewAmount(11)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("Pull err = %v, want ErrInsufficientFunds", err)
	}
	// Nothing moved.
	if got, want := v.BalanceOf(acct), domain.NewAmount(10); got.Cmp(want) != 0 {
		t.Errorf("balance = %s, want %s", got, want)
	}

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	if err := v.Pull(ctx, unknown, domain.NewAmount(1)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("Pull from unknown err = %v, want ErrInsufficientFunds", err)
	}
}

func TestVaultRestore(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	v.Credit(acct, domain.NewAmount(999))

	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	v.Restore(map[common.Address]*big.Int{
		acct:  domain.NewAmount(60),
		other: nil, // dropped
	}, domain.NewAmount(40))

	if got, want := v.BalanceOf(acct), domain.NewAmount(60); got.Cmp(want) != 0 {
		t.Errorf("balance = %s, want %s", got, want)
	}
	if v.BalanceOf(other).Sign() != 0 {
		t.Errorf("nil balance should be dropped, got %s", v.BalanceOf(other))
	}
	if got, want := v.Escrowed(), domain.NewAmount(40); got.Cmp(want) != 0 {
		t.Errorf("escrowed = %s, want %s", got, want)
	}

	// The restored escrow backs a push without going negative.
	if err := v.Push(ctx, acct, domain.NewAmount(40)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if v.Escrowed().Sign() != 0 {
		t.Errorf("escrowed after push = %s, want 0", v.Escrowed())
	}
}

func TestVaultRejectsNonPositiveAmounts(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	if err := v.Pull(ctx, acct, nil); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Pull(nil) err = %v, want ErrInvalidAmount", err)
	}
	if err := v.Push(ctx, acct, domain.Units(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Push(0) err = %v, want ErrInvalidAmount", err)
	}
}
