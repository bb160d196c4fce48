/*
Package engine contains the numeric and state-machine core of the credit
platform: rate derivation, installment calculation (French method), schedule
generation, the payment waterfall with late-interest accrual, and the credit
lifecycle state machine.

The package is pure computation. It performs no I/O, holds no global state,
and is safe for concurrent use; persistence and orchestration live in the
lending package.

KEY CONCEPTS IN THIS FILE (money.go):
  - MoneyContext: explicit decimal-arithmetic configuration (working
    precision, half-up rounding) threaded into every monetary calculation.
  - Whole-unit quantization: amounts are Colombian pesos with no cents;
    every installment component is rounded half-up to a whole unit.

DESIGN PRINCIPLES:
  1. No ambient state: precision and rounding are values passed in, never
     process-wide defaults.
  2. Decimals everywhere: binary floating point never touches money.
  3. Half-up ties: matches the rounding the business formulas were
     calibrated against.

SEE ALSO:
  - pmt.go: installment calculator using this context
  - schedule.go: schedule builder
  - waterfall.go: payment application
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY CONTEXT - Explicit decimal arithmetic configuration
// =============================================================================

// MoneyContext carries the arithmetic configuration for monetary math.
// Division and exponentiation keep Precision digits after the decimal point;
// every quantization rounds half away from zero (half-up for the positive
// amounts this domain deals in).
type MoneyContext struct {
	// Precision is the number of decimal digits kept by intermediate
	// divisions and exponentiations before final quantization.
	Precision int32
}

// DefaultMoney is the context used across the platform: 28 digits of working
// precision, mirroring the regulatory calculation sheets the formulas come from.
func DefaultMoney() MoneyContext {
	return MoneyContext{Precision: 28}
}

// RoundUnit quantizes d to a whole currency unit, ties rounding up.
func (mc MoneyContext) RoundUnit(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Quantize rounds d to the given number of decimal places, ties rounding up.
// Used for rate fields (4 places) rather than money (whole units).
func (mc MoneyContext) Quantize(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Div divides a by b at the context's working precision.
func (mc MoneyContext) Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, mc.Precision)
}

// Pow raises base to exp at the context's working precision. Fractional and
// negative exponents are supported (both appear in the rate formulas).
func (mc MoneyContext) Pow(base, exp decimal.Decimal) (decimal.Decimal, error) {
	return base.PowWithPrecision(exp, mc.Precision)
}

// PercentToFraction converts a percentage rate field (1.88 meaning 1.88%)
// into the fraction used by the amortization formulas (0.0188).
func (mc MoneyContext) PercentToFraction(pct decimal.Decimal) decimal.Decimal {
	return mc.Div(pct, decimal.NewFromInt(100))
}

// MaxZero clamps negative amounts to zero. Rounding can push a computed
// capital component slightly negative; the schedule treats that as zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
