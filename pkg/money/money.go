// Package money implements exact fixed-point arithmetic for a 6-decimal
// stablecoin. Amounts travel as strings ("12.500000") and are computed over
// scaled big integers (value x 10^6); no float ever touches an amount.
package money

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"agentpay/pkg/apperror"
)

// Decimals is the token's declared decimal count.
const Decimals = 6

var (
	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

	// centsScale converts 6-decimal raw units to 2-decimal minor units.
	centsScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals-2), nil)

	amountPattern = regexp.MustCompile(`^\d+(\.\d{1,6})?$`)
)

// Parse converts an amount string into raw scaled units.
// Rejects anything not matching ^\d+(\.\d{1,6})?$.
func Parse(amount string) (*big.Int, error) {
	if !amountPattern.MatchString(amount) {
		return nil, apperror.Validation(fmt.Sprintf("invalid amount: %q", amount))
	}

	whole, frac, _ := strings.Cut(amount, ".")
	frac = frac + strings.Repeat("0", Decimals-len(frac))

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("invalid amount: %q", amount))
	}
	f, ok := new(big.Int).SetString(frac, 10)
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("invalid amount: %q", amount))
	}

	return w.Mul(w, scale).Add(w, f), nil
}

// Format renders raw scaled units as a string with the full 6-digit fraction.
func Format(raw *big.Int) string {
	whole, frac := new(big.Int).QuoRem(raw, scale, new(big.Int))
	return fmt.Sprintf("%s.%06d", whole.String(), frac)
}

// Multiply computes unitPrice x quantity without precision loss.
func Multiply(unitPrice string, quantity int) (string, error) {
	if quantity < 1 {
		return "", apperror.Validation(fmt.Sprintf("invalid quantity: %d", quantity))
	}
	raw, err := Parse(unitPrice)
	if err != nil {
		return "", err
	}
	return Format(raw.Mul(raw, big.NewInt(int64(quantity)))), nil
}

// Add returns a + b.
func Add(a, b string) (string, error) {
	ra, err := Parse(a)
	if err != nil {
		return "", err
	}
	rb, err := Parse(b)
	if err != nil {
		return "", err
	}
	return Format(ra.Add(ra, rb)), nil
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func Compare(a, b string) (int, error) {
	ra, err := Parse(a)
	if err != nil {
		return 0, err
	}
	rb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return ra.Cmp(rb), nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func IsPositive(amount string) (bool, error) {
	raw, err := Parse(amount)
	if err != nil {
		return false, err
	}
	return raw.Sign() > 0, nil
}

// ToCents converts an amount to 2-decimal minor units (cents), rounding the
// sub-cent remainder half up. Used for the card-network payment intent.
func ToCents(amount string) (int64, error) {
	raw, err := Parse(amount)
	if err != nil {
		return 0, err
	}
	cents, rem := new(big.Int).QuoRem(raw, centsScale, new(big.Int))
	half := new(big.Int).Div(centsScale, big.NewInt(2))
	if rem.Cmp(half) >= 0 {
		cents.Add(cents, big.NewInt(1))
	}
	if !cents.IsInt64() {
		return 0, apperror.Validation(fmt.Sprintf("amount out of range: %q", amount))
	}
	return cents.Int64(), nil
}
