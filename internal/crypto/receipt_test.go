package crypto

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := NewSigner(common.Bytes2Hex(ethcrypto.FromECDSA(key)))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestReceiptSignVerify(t *testing.T) {
	s := testSigner(t)
	resolvedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	r, err := s.SignResolution(7, true, resolvedAt)
	if err != nil {
		t.Fatalf("SignResolution: %v", err)
	}
	if r.MarketID != 7 || !r.OutcomeYes {
		t.Errorf("receipt fields = %d/%v, want 7/true", r.MarketID, r.OutcomeYes)
	}
	if r.Signer != s.Address().Hex() {
		t.Errorf("signer = %s, want %s", r.Signer, s.Address().Hex())
	}

	if err := VerifyReceipt(r, s.Address()); err != nil {
		t.Errorf("VerifyReceipt: %v", err)
	}
}

func TestReceiptVerifyRejectsTampering(t *testing.T) {
	s := testSigner(t)
	r, err := s.SignResolution(7, true, time.Now())
	if err != nil {
		t.Fatalf("SignResolution: %v", err)
	}

	t.Run("flipped outcome", func(t *testing.T) {
		bad := r
		bad.OutcomeYes = false
		if err := VerifyReceipt(bad, s.Address()); err == nil {
			t.Error("verification passed with flipped outcome")
		}
	})

	t.Run("wrong owner", func(t *testing.T) {
		other := testSigner(t)
		if err := VerifyReceipt(r, other.Address()); err == nil {
			t.Error("verification passed against the wrong owner")
		}
	})

	t.Run("mangled signature", func(t *testing.T) {
		bad := r
		bad.Signature = "0x00"
		if err := VerifyReceipt(bad, s.Address()); err == nil {
			t.Error("verification passed with mangled signature")
		}
	})
}
