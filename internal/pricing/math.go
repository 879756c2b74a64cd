package pricing

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Sentinel errors for share arithmetic
var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrMathOverflow   = errors.New("math overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Share and amount quantities are whole numbers confined to the signed
// 128-bit range. decimal.Decimal never wraps, so the range check stands in
// for the checked arithmetic a fixed-width representation would need.
var maxInt128 = decimal.NewFromBigInt(
	new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)

func checkRange(d decimal.Decimal) error {
	if d.Abs().GreaterThan(maxInt128) {
		return ErrMathOverflow
	}
	return nil
}

// MulDivFloor computes floor(a*b/c) with the multiplication performed before
// the division, exactly.
func MulDivFloor(a, b, c decimal.Decimal) (decimal.Decimal, error) {
	if c.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	prod := a.Mul(b)
	if err := checkRange(prod); err != nil {
		return decimal.Zero, err
	}
	q, _ := prod.QuoRem(c, 0)
	return q, nil
}

// MulDivCeil computes ceil(a*b/c) for non-negative operands.
func MulDivCeil(a, b, c decimal.Decimal) (decimal.Decimal, error) {
	if c.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	prod := a.Mul(b)
	if err := checkRange(prod); err != nil {
		return decimal.Zero, err
	}
	q, r := prod.QuoRem(c, 0)
	if r.IsZero() {
		return q, nil
	}
	q = q.Add(decimal.New(1, 0))
	if err := checkRange(q); err != nil {
		return decimal.Zero, err
	}
	return q, nil
}

// CheckedAdd returns a+b, rejecting results outside the 128-bit range.
func CheckedAdd(a, b decimal.Decimal) (decimal.Decimal, error) {
	sum := a.Add(b)
	if err := checkRange(sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// CheckedSub returns a-b, rejecting results outside the 128-bit range.
func CheckedSub(a, b decimal.Decimal) (decimal.Decimal, error) {
	diff := a.Sub(b)
	if err := checkRange(diff); err != nil {
		return decimal.Zero, err
	}
	return diff, nil
}
