// Package safemath provides bounded uint64 arithmetic that reports wraparound
// instead of silently truncating. All ledger balance and reserve math goes
// through here.
package safemath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Add returns a + b, or ErrOverflow if the sum does not fit in 64 bits.
func Add(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum.Uint64(), nil
}

// Sub returns a - b, or ErrUnderflow if b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return a - b, nil
}

// Mul returns a * b, or ErrOverflow if the product does not fit in 64 bits.
// The product is formed in 256 bits so the check never depends on wraparound.
func Mul(a, b uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !product.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return product.Uint64(), nil
}

// DivFloor returns floor(a / b), or ErrDivisionByZero when b is zero.
func DivFloor(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
	}
	return a / b, nil
}

// MulDivFloor returns floor(a * b / d). Unlike Mul followed by DivFloor it only
// fails when the final quotient overflows, not the intermediate product.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: %d * %d / 0", ErrDivisionByZero, a, b)
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(d))
	if !quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, a, b, d)
	}
	return quotient.Uint64(), nil
}
