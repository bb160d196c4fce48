/*
schedule.go - Amortization schedule builder

PURPOSE:
  Turns approved credit terms (principal, term, rates, dates) into the full
  ordered list of installments. Called exactly once per disbursement;
  regeneration is delete-all-and-recreate.

ALGORITHM:
  1. Monthly breakdown: the base installment is PMT at the base rate; the
     installment including the guarantee is PMT at the aval rate. The aval
     rate is the business's TOTAL rate, not an increment added to the base
     rate - every revision of the business formula encodes it this way, so
     it is intentional, not a summing bug. The monthly aval is the
     difference of the two installments, IVA applies on the aval only.
  2. First period - 15-day rule: disbursed on or before the 15th, the first
     period ends at the end of that month; later, at the end of the next
     month. First-period interest is prorated by actual days over a 30-day
     month, and the first total due is reduced by the interest the customer
     is NOT charged relative to a full 30 days, keeping the first
     installment consistent with the level monthly total.
  3. Periods 2..N span month-end to month-end. On the final period the
     capital is forced to the entire remaining balance (plug figure), so the
     schedule amortizes exactly despite whole-unit rounding along the way.
  4. Payment deadline: payroll-deduction credits are collected on the
     company's payment day in the month after the due date (clamped to the
     month's length); everything else is due on the due date itself.

FAILURE:
  Missing principal, term, or any rate fails with ErrIncompleteCreditTerms
  before anything is computed.
*/
package engine

import (
	"github.com/shopspring/decimal"
	"time"
)

// =============================================================================
// INPUTS AND BREAKDOWN
// =============================================================================

// ScheduleInput carries everything the builder needs. Rates are percentages
// exactly as snapshotted on the credit (1.88 for 1.88%).
type ScheduleInput struct {
	CreditID  string
	Principal decimal.Decimal
	TermMonths int

	BaseRate decimal.Decimal
	AvalRate decimal.Decimal
	IVARate  decimal.Decimal
	LateRate decimal.Decimal

	CreditType       CreditType
	DisbursementDate time.Time

	// CompanyPaymentDay is the employer's payroll day for libranza credits;
	// zero when unknown or not applicable.
	CompanyPaymentDay int
}

// validate reports the missing fields of an incomplete input.
func (in ScheduleInput) validate() error {
	var missing []string
	if !in.Principal.IsPositive() {
		missing = append(missing, "approved amount")
	}
	if in.TermMonths <= 0 {
		missing = append(missing, "approved term")
	}
	if in.BaseRate.IsZero() {
		missing = append(missing, "base rate")
	}
	if in.AvalRate.IsZero() {
		missing = append(missing, "aval rate")
	}
	if in.IVARate.IsZero() {
		missing = append(missing, "iva rate")
	}
	if len(missing) > 0 {
		return &IncompleteTermsError{Missing: missing}
	}
	return nil
}

// MonthlyBreakdown is the level monthly installment split into components.
type MonthlyBreakdown struct {
	Base    decimal.Decimal // capital + base interest
	Aval    decimal.Decimal
	IVAAval decimal.Decimal
	Total   decimal.Decimal
}

// ComputeBreakdown derives the monthly component amounts from the credit
// terms. See the file header for why the aval rate is used as a total rate.
func ComputeBreakdown(mc MoneyContext, in ScheduleInput) (MonthlyBreakdown, error) {
	if err := in.validate(); err != nil {
		return MonthlyBreakdown{}, err
	}

	baseFraction := mc.PercentToFraction(in.BaseRate)
	avalFraction := mc.PercentToFraction(in.AvalRate)
	ivaFraction := mc.PercentToFraction(in.IVARate)

	payBase, err := PMT(mc, in.Principal, baseFraction, in.TermMonths)
	if err != nil {
		return MonthlyBreakdown{}, err
	}
	payWithAval, err := PMT(mc, in.Principal, avalFraction, in.TermMonths)
	if err != nil {
		return MonthlyBreakdown{}, err
	}

	aval := mc.RoundUnit(payWithAval.Sub(payBase))
	ivaAval := mc.RoundUnit(aval.Mul(ivaFraction))
	total := mc.RoundUnit(payBase.Add(aval).Add(ivaAval))

	return MonthlyBreakdown{Base: payBase, Aval: aval, IVAAval: ivaAval, Total: total}, nil
}

// =============================================================================
// SCHEDULE BUILDER
// =============================================================================

// BuildSchedule produces the ordered installment list for the input terms.
// It performs no persistence; the lending service writes the result within
// a single store transaction.
func BuildSchedule(mc MoneyContext, in ScheduleInput) ([]Installment, error) {
	breakdown, err := ComputeBreakdown(mc, in)
	if err != nil {
		return nil, err
	}

	baseFraction := mc.PercentToFraction(in.BaseRate)
	balance := mc.RoundUnit(in.Principal)
	start := DateOnly(in.DisbursementDate)
	thirty := decimal.NewFromInt(30)

	installments := make([]Installment, 0, in.TermMonths)

	// First period: 15-day rule.
	var firstEnd time.Time
	if start.Day() <= 15 {
		firstEnd = EndOfMonth(start)
	} else {
		firstEnd = EndOfNextMonth(start)
	}
	firstDays := DaysBetween(start, firstEnd)

	interestFirst := mc.RoundUnit(balance.Mul(baseFraction).Mul(decimal.NewFromInt(int64(firstDays))).DivRound(thirty, mc.Precision))
	interestFull30 := mc.RoundUnit(balance.Mul(baseFraction))
	remainderInterest := mc.RoundUnit(interestFull30.Sub(interestFirst))

	// Charging fewer than 30 days of interest, the first total due drops by
	// the interest not charged so the installment stays aligned with the
	// level monthly total.
	firstTotalDue := breakdown.Total.Sub(remainderInterest)

	capitalFirst := mc.RoundUnit(firstTotalDue.Sub(breakdown.Aval).Sub(breakdown.IVAAval).Sub(interestFirst))
	capitalFirst = MaxZero(capitalFirst)
	capitalFirst = MinDecimal(capitalFirst, balance)

	balanceBefore := balance
	balance = mc.RoundUnit(balance.Sub(capitalFirst))
	firstTotal := mc.RoundUnit(capitalFirst.Add(breakdown.Aval).Add(breakdown.IVAAval).Add(interestFirst))

	installments = append(installments, Installment{
		CreditID:          in.CreditID,
		Number:            1,
		DueDate:           firstEnd,
		PaymentDeadline:   paymentDeadline(in, firstEnd),
		PeriodDays:        firstDays,
		ScheduledCapital:  capitalFirst,
		ScheduledInterest: interestFirst,
		ScheduledAval:     breakdown.Aval,
		ScheduledIVAAval:  breakdown.IVAAval,
		ScheduledTotal:    firstTotal,
		LateRate:          in.LateRate,
		BalanceBefore:     balanceBefore,
		Status:            InstallmentPending,
	})

	// Periods 2..N.
	prevEnd := firstEnd
	for k := 2; k <= in.TermMonths; k++ {
		periodStart := prevEnd.AddDate(0, 0, 1)
		periodEnd := EndOfNextMonth(prevEnd)
		days := DaysBetween(periodStart, periodEnd)

		balanceBefore = balance
		interest := mc.RoundUnit(balance.Mul(baseFraction).Mul(decimal.NewFromInt(int64(days))).DivRound(thirty, mc.Precision))

		capital := mc.RoundUnit(breakdown.Total.Sub(breakdown.Aval).Sub(breakdown.IVAAval).Sub(interest))
		capital = MaxZero(capital)
		if k == in.TermMonths {
			// Plug figure: the last period clears whatever rounding left.
			capital = balance
		}

		balance = mc.RoundUnit(balance.Sub(capital))
		total := mc.RoundUnit(capital.Add(interest).Add(breakdown.Aval).Add(breakdown.IVAAval))

		installments = append(installments, Installment{
			CreditID:          in.CreditID,
			Number:            k,
			DueDate:           periodEnd,
			PaymentDeadline:   paymentDeadline(in, periodEnd),
			PeriodDays:        days,
			ScheduledCapital:  capital,
			ScheduledInterest: interest,
			ScheduledAval:     breakdown.Aval,
			ScheduledIVAAval:  breakdown.IVAAval,
			ScheduledTotal:    total,
			LateRate:          in.LateRate,
			BalanceBefore:     balanceBefore,
			Status:            InstallmentPending,
		})

		prevEnd = periodEnd
	}

	return installments, nil
}

// paymentDeadline applies the company payment-day rule for libranza credits.
func paymentDeadline(in ScheduleInput, dueDate time.Time) time.Time {
	if in.CreditType != CreditLibranza || in.CompanyPaymentDay <= 0 {
		return dueDate
	}
	return DayInNextMonth(dueDate, in.CompanyPaymentDay)
}

// =============================================================================
// SCHEDULE TOTALS
// =============================================================================

// ScheduleTotals aggregates the scheduled components across installments.
// By construction the capital total equals the approved principal exactly.
type ScheduleTotals struct {
	Capital  decimal.Decimal
	Interest decimal.Decimal
	Aval     decimal.Decimal
	IVAAval  decimal.Decimal
	Amount   decimal.Decimal
}

// SumSchedule computes credit-level totals over a generated schedule.
func SumSchedule(installments []Installment) ScheduleTotals {
	var t ScheduleTotals
	for i := range installments {
		t.Capital = t.Capital.Add(installments[i].ScheduledCapital)
		t.Interest = t.Interest.Add(installments[i].ScheduledInterest)
		t.Aval = t.Aval.Add(installments[i].ScheduledAval)
		t.IVAAval = t.IVAAval.Add(installments[i].ScheduledIVAAval)
		t.Amount = t.Amount.Add(installments[i].ScheduledTotal)
	}
	return t
}
