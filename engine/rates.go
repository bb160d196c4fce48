/*
rates.go - Interest rate configuration and derivation

PURPOSE:
  A RateConfig captures one calendar month's regulatory and commercial rates:
  the annual usury ceiling, the monthly base rate derived from it, the aval
  (guarantee fee) rates per credit profile, IVA, and the late-interest rate.

  Credits never read a RateConfig after approval: the four effective rates
  are copied onto the credit as an immutable snapshot the moment it is
  approved, so later rate changes never move an existing loan.

DERIVATION:
  The monthly base rate comes from the annual usury ceiling by equivalent
  monthly compounding:

      monthly% = ((1 + usury%/100)^(1/12) - 1) * 100

  quantized to 4 decimal places, ties up. It is computed once at config
  creation and only when not supplied explicitly, then immutable.

SEE ALSO:
  - lending/rates.go: resolver against the store (exact month, then most
    recent active fallback)
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditType distinguishes payroll-deduction loans from personal loans.
type CreditType string

const (
	// CreditLibranza is a payroll-deduction credit collected via the
	// employer's payroll on the company's payment day.
	CreditLibranza CreditType = "LIBRANZA"
	// CreditNatural is a personal credit paid directly by the customer.
	CreditNatural CreditType = "NATURAL"
)

// Valid reports whether t is a known credit type.
func (t CreditType) Valid() bool {
	return t == CreditLibranza || t == CreditNatural
}

// highAmountThreshold splits the aval rate bands for personal credits.
var highAmountThreshold = decimal.NewFromInt(5_000_000)

// RateConfig holds the effective rates for one (year, month) period.
// All rate fields are percentages (1.88 means 1.88% monthly).
type RateConfig struct {
	ID    string
	Year  int
	Month time.Month

	// UsuryRate is the regulatory annual ceiling, e.g. 25.01.
	UsuryRate decimal.Decimal
	// BaseRate is the derived monthly base rate, 4 decimal places.
	// Immutable once set.
	BaseRate decimal.Decimal

	AvalRateLibranza decimal.Decimal
	AvalRateHigh     decimal.Decimal
	AvalRateLow      decimal.Decimal

	IVARate  decimal.Decimal
	LateRate decimal.Decimal

	Active        bool
	EffectiveDate time.Time
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
}

// DeriveBaseRate computes the monthly base rate from the usury ceiling.
// It is a no-op when BaseRate was supplied by the administrator.
func (rc *RateConfig) DeriveBaseRate(mc MoneyContext) error {
	if !rc.BaseRate.IsZero() || rc.UsuryRate.IsZero() {
		return nil
	}

	one := decimal.NewFromInt(1)
	annual := mc.PercentToFraction(rc.UsuryRate)
	exponent := mc.Div(one, decimal.NewFromInt(12))

	monthly, err := mc.Pow(one.Add(annual), exponent)
	if err != nil {
		return err
	}

	pct := monthly.Sub(one).Mul(decimal.NewFromInt(100))
	rc.BaseRate = mc.Quantize(pct, 4)
	return nil
}

// AvalRateFor selects the aval rate for a credit profile: payroll-deduction
// credits use the libranza rate; personal credits above 5,000,000 use the
// high-amount rate, the rest the low-amount rate.
func (rc RateConfig) AvalRateFor(creditType CreditType, approvedAmount decimal.Decimal) decimal.Decimal {
	if creditType == CreditLibranza {
		return rc.AvalRateLibranza
	}
	if approvedAmount.GreaterThan(highAmountThreshold) {
		return rc.AvalRateHigh
	}
	return rc.AvalRateLow
}
