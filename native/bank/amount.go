package bank

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision shared by principal, collateral,
// interest and fees.
const Decimals = 6

// Unit is one whole token expressed in base units.
var Unit = big.NewInt(1_000_000)

// Units converts a whole-token amount into base units.
func Units(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), Unit)
}

// ParseAmount converts a human decimal string (e.g. "12.5") into base units.
// Amounts with more than six fractional digits or a negative sign are
// rejected.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("bank: amount required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("bank: parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("bank: amount %q must not be negative", value)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("bank: amount %q exceeds %d decimal places", value, Decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders base units as a fixed six-decimal string.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return decimal.Zero.StringFixed(Decimals)
	}
	return decimal.NewFromBigInt(amount, -Decimals).StringFixed(Decimals)
}
