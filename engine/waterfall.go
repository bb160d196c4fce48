/*
waterfall.go - Late interest accrual and the payment waterfall

PURPOSE:
  Applies incoming cash to an installment's unpaid components in strict
  priority order, and computes late interest on overdue balances.

WATERFALL ORDER (fixed):
  1. late interest
  2. interest
  3. aval
  4. IVA on aval
  5. capital

  Each step takes min(component remainder, remaining cash). Capital is last
  and accepts any positive remainder, so no cash is ever silently dropped;
  the allocation always sums exactly to the amount received.

LATE INTEREST:
  Simple (non-compounding) daily interest on the unpaid scheduled
  components:

      late = round(remainingScheduled * (lateRate%/100/30) * daysLate)

  The accrual always covers the full window from the deadline to the
  as-of date, so each application replaces the previously applied amount
  rather than stacking a second window on top of it; re-applying never
  charges the same overdue day twice. Unpaid applied late interest stays
  in the installment's remaining total for collection, but is excluded
  from the accrual base since the next application supersedes it.

  LateInterestAsOf is a pure preview; callers may run it any number of
  times. Applying it to the installment's debt is a separate, explicit
  administrative action - never automatic.
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LATE INTEREST
// =============================================================================

// LateInterestAsOf computes the late interest owed on the installment for
// the full overdue window ending at the given date. Zero on or before the
// effective deadline. The base is what remains unpaid of the scheduled
// components; a previously applied amount is superseded by the next
// application, so it never accrues on itself. Mutates nothing.
func LateInterestAsOf(mc MoneyContext, in *Installment, asOf time.Time) decimal.Decimal {
	daysLate := in.DaysOverdue(asOf)
	if daysLate <= 0 {
		return decimal.Zero
	}

	dailyRate := mc.Div(mc.PercentToFraction(in.LateRate), decimal.NewFromInt(30))
	base := in.RemainingTotal().Sub(in.RemainingLateInterest())
	accrued := base.Mul(dailyRate).Mul(decimal.NewFromInt(int64(daysLate)))
	return mc.RoundUnit(accrued)
}

// ApplyLateInterest recomputes late interest as of the given date and, when
// positive, sets it as the installment's applied amount, stamping both
// dates. Re-applying replaces the prior amount with the fresh full-window
// accrual, so overlapping overdue days are never billed twice. Returns the
// computed amount (zero when nothing accrued).
func ApplyLateInterest(mc MoneyContext, in *Installment, asOf time.Time) decimal.Decimal {
	amount := LateInterestAsOf(mc, in, asOf)

	at := DateOnly(asOf)
	in.LateInterestCalculated = amount
	in.LateCalculatedAt = &at

	if amount.IsPositive() {
		in.LateInterestApplied = amount
		in.LateAppliedAt = &at
		in.RefreshStatus(asOf)
	}
	return amount
}

// =============================================================================
// PAYMENT APPLICATION
// =============================================================================

// Allocation is the five-way split of one cash receipt across installment
// components. Its fields always sum exactly to the amount applied.
type Allocation struct {
	LateInterest decimal.Decimal
	Interest     decimal.Decimal
	Aval         decimal.Decimal
	IVAAval      decimal.Decimal
	Capital      decimal.Decimal
}

// Total returns the sum of all allocated components.
func (a Allocation) Total() decimal.Decimal {
	return a.LateInterest.Add(a.Interest).Add(a.Aval).Add(a.IVAAval).Add(a.Capital)
}

func (a Allocation) String() string {
	return fmt.Sprintf("late=%s interest=%s aval=%s iva=%s capital=%s",
		a.LateInterest, a.Interest, a.Aval, a.IVAAval, a.Capital)
}

// ApplyPayment distributes amount across the installment's unpaid components
// in waterfall order, incrementing the paid fields and re-deriving status.
// The returned allocation records how the cash was split; its total equals
// amount exactly. Any cash beyond the installment's remaining total lands in
// the capital bucket, which is reported rather than discarded.
func ApplyPayment(mc MoneyContext, in *Installment, amount decimal.Decimal, paidAt time.Time) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, ErrInvalidPaymentAmount
	}

	cash := amount
	var alloc Allocation

	take := func(remaining decimal.Decimal) decimal.Decimal {
		applied := MinDecimal(remaining, cash)
		cash = cash.Sub(applied)
		return applied
	}

	alloc.LateInterest = take(in.RemainingLateInterest())
	alloc.Interest = take(in.RemainingInterest())
	alloc.Aval = take(in.RemainingAval())
	alloc.IVAAval = take(in.RemainingIVAAval())
	alloc.Capital = take(in.RemainingCapital())

	// Capital is the terminal bucket: overpayment beyond the scheduled
	// capital stays there so the breakdown still sums to the amount received.
	if cash.IsPositive() {
		alloc.Capital = alloc.Capital.Add(cash)
		cash = decimal.Zero
	}

	in.PaidLateInterest = in.PaidLateInterest.Add(alloc.LateInterest)
	in.PaidInterest = in.PaidInterest.Add(alloc.Interest)
	in.PaidAval = in.PaidAval.Add(alloc.Aval)
	in.PaidIVAAval = in.PaidIVAAval.Add(alloc.IVAAval)
	in.PaidCapital = in.PaidCapital.Add(alloc.Capital)
	in.PaidTotal = in.PaidTotal.Add(amount)

	at := DateOnly(paidAt)
	in.PaymentDate = &at
	in.RefreshStatus(paidAt)

	return alloc, nil
}
