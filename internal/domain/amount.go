package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// AmountScale is the number of decimal places in fixed-point amounts. All
// amounts in the ledger are integers denominated in 10^-6 units (USDC-style).
const AmountScale = 6

var scaleFactor = big.NewInt(1_000_000)

// NewAmount returns an amount of n whole units (n * 10^6 base units).
func NewAmount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), scaleFactor)
}

// Units returns an amount of n base units.
func Units(n int64) *big.Int {
	return big.NewInt(n)
}

// ParseAmount parses a decimal string like "12.5" or "0.000001" into base
// units. At most AmountScale fractional digits are accepted; negative
// amounts are rejected.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrInvalidAmount)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > AmountScale {
		return nil, fmt.Errorf("parse amount %q: more than %d decimal places: %w", s, AmountScale, ErrInvalidAmount)
	}
	if whole == "" {
		whole = "0"
	}
	// Right-pad the fraction to exactly AmountScale digits.
	frac += strings.Repeat("0", AmountScale-len(frac))

	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrInvalidAmount)
	}
	return n, nil
}

// FormatAmount renders base units as a decimal string with up to AmountScale
// fractional digits, trimming trailing zeros ("12.5", not "12.500000").
func FormatAmount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(n, scaleFactor, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%06d", r), "0")
	return q.String() + "." + frac
}

// CloneAmount returns a defensive copy of n, treating nil as zero.
func CloneAmount(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
