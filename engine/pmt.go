/*
pmt.go - Level installment calculator (French amortization method)

PURPOSE:
  Computes the constant monthly installment for a principal, a monthly rate,
  and a term. This is the single primitive the schedule builder composes for
  the base-only and base-plus-aval scenarios.

FORMULA:
  rate == 0:  installment = P / n
  otherwise:  installment = P * r / (1 - (1 + r)^(-n))

  Result is quantized to a whole currency unit, ties up. All intermediate
  arithmetic runs at the MoneyContext working precision.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PMT returns the level installment for principal at the given monthly rate
// fraction (0.0188 for 1.88%) over n periods, rounded to a whole unit.
func PMT(mc MoneyContext, principal, rate decimal.Decimal, n int) (decimal.Decimal, error) {
	if n <= 0 {
		return decimal.Zero, fmt.Errorf("pmt: term must be positive, got %d", n)
	}

	if rate.IsZero() {
		return mc.RoundUnit(mc.Div(principal, decimal.NewFromInt(int64(n)))), nil
	}

	one := decimal.NewFromInt(1)
	discount, err := mc.Pow(one.Add(rate), decimal.NewFromInt(int64(-n)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("pmt: %w", err)
	}

	installment := mc.Div(principal.Mul(rate), one.Sub(discount))
	return mc.RoundUnit(installment), nil
}
