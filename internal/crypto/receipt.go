package crypto

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// receiptDomain separates resolution receipts from any other signed payload.
const receiptDomain = "wagerpool/resolution/v1"

// Receipt is an owner-signed attestation that a market was resolved to a
// specific outcome at a specific time. Consumers can verify it against the
// published owner address without talking to the service.
type Receipt struct {
	MarketID   int64     `json:"market_id"`
	OutcomeYes bool      `json:"outcome_yes"`
	ResolvedAt time.Time `json:"resolved_at"`
	Hash       string    `json:"hash"`      // 0x-prefixed keccak256 digest
	Signature  string    `json:"signature"` // 0x-prefixed 65-byte signature
	Signer     string    `json:"signer"`    // owner address
}

// Signer signs resolution receipts with the owner key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signing (owner) address.
func (s *Signer) Address() common.Address {
	return s.address
}

// receiptDigest computes keccak256(domain ‖ marketID ‖ outcome ‖ unixtime).
func receiptDigest(marketID int64, outcomeYes bool, resolvedAt time.Time) []byte {
	buf := make([]byte, 0, len(receiptDomain)+17)
	buf = append(buf, receiptDomain...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(marketID))
	if outcomeYes {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(resolvedAt.Unix()))
	return ethcrypto.Keccak256(buf)
}

// SignResolution produces a Receipt for the given resolution.
func (s *Signer) SignResolution(marketID int64, outcomeYes bool, resolvedAt time.Time) (Receipt, error) {
	digest := receiptDigest(marketID, outcomeYes, resolvedAt)
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return Receipt{}, fmt.Errorf("crypto: signing receipt for market %d: %w", marketID, err)
	}
	return Receipt{
		MarketID:   marketID,
		OutcomeYes: outcomeYes,
		ResolvedAt: resolvedAt,
		Hash:       hexutil.Encode(digest),
		Signature:  hexutil.Encode(sig),
		Signer:     s.address.Hex(),
	}, nil
}

// VerifyReceipt checks that the receipt's signature recovers to the expected
// owner address over the receipt's own fields.
func VerifyReceipt(r Receipt, owner common.Address) error {
	digest := receiptDigest(r.MarketID, r.OutcomeYes, r.ResolvedAt)
	if r.Hash != hexutil.Encode(digest) {
		return errors.New("crypto: receipt hash does not match its fields")
	}
	sig, err := hexutil.Decode(r.Signature)
	if err != nil {
		return fmt.Errorf("crypto: decoding signature: %w", err)
	}
	if len(sig) != 65 {
		return fmt.Errorf("crypto: signature length %d, want 65", len(sig))
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("crypto: recovering signer: %w", err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != owner {
		return errors.New("crypto: receipt not signed by owner")
	}
	return nil
}
