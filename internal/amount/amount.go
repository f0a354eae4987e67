package amount

import (
	"errors"
	"math"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
)

// BasisPointsDenominator is the number of basis points in one whole.
const BasisPointsDenominator = 10_000

// MaxStorable is the largest amount the ledger can hold in a signed 64-bit
// column.
const MaxStorable = math.MaxInt64

var ErrOverflow = errors.New("amount overflows ledger range")

// MulDiv returns floor(a * b / d) using a 128-bit intermediate product.
// The result must fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, errors.New("division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// Interest returns floor(principal * bps / 10000).
func Interest(principal uint64, bps uint32) (uint64, error) {
	return MulDiv(principal, uint64(bps), BasisPointsDenominator)
}

// RequiredRepayment returns principal plus interest, failing if the result
// cannot be stored.
func RequiredRepayment(principal uint64, bps uint32) (uint64, error) {
	interest, err := Interest(principal, bps)
	if err != nil {
		return 0, err
	}
	return Add(principal, interest)
}

// Add returns a + b, failing if the sum exceeds MaxStorable.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 || sum > MaxStorable {
		return 0, ErrOverflow
	}
	return sum, nil
}

// InterestPercent renders basis points as a percentage with two decimals,
// e.g. 550 -> "5.50".
func InterestPercent(bps uint32) string {
	return decimal.New(int64(bps), -2).StringFixed(2)
}

// Format renders a smallest-unit amount in whole units with the given number
// of decimals, e.g. Format(1_050_000, 6) -> "1.050000".
func Format(v uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -decimals).StringFixed(decimals)
}
