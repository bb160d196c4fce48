/*
installment.go - Installment record and status derivation

PURPOSE:
  An Installment is one scheduled payment period of a credit. The five
  scheduled component amounts are fixed when the schedule is generated; the
  paid component amounts accumulate monotonically as cash arrives through
  the waterfall (see waterfall.go).

CRITICAL INVARIANTS:
  1. Scheduled amounts are immutable after creation.
  2. Paid amounts never decrease.
  3. remaining(component) = scheduled - paid, never negative.
  4. Status is a pure function of the current amounts and the as-of date,
     re-derived after every mutation - never stored ahead of the facts.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INSTALLMENT STATUS
// =============================================================================

// InstallmentStatus is the collection state of a single installment.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPartial InstallmentStatus = "PARTIAL"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
	InstallmentPaid    InstallmentStatus = "PAID"
)

// PaidTolerance absorbs whole-unit rounding drift when deciding whether an
// installment is fully paid.
var PaidTolerance = decimal.NewFromInt(10)

// =============================================================================
// INSTALLMENT
// =============================================================================

type Installment struct {
	ID       string
	CreditID string
	Number   int

	// DueDate is the period end. PaymentDeadline may fall later for
	// payroll-deduction credits (the company's payment day next month).
	DueDate         time.Time
	PaymentDeadline time.Time
	PeriodDays      int

	// Scheduled amounts, fixed at generation time.
	ScheduledCapital  decimal.Decimal
	ScheduledInterest decimal.Decimal
	ScheduledAval     decimal.Decimal
	ScheduledIVAAval  decimal.Decimal
	ScheduledTotal    decimal.Decimal

	// Paid amounts, monotonically non-decreasing.
	PaidCapital      decimal.Decimal
	PaidInterest     decimal.Decimal
	PaidAval         decimal.Decimal
	PaidIVAAval      decimal.Decimal
	PaidLateInterest decimal.Decimal
	PaidTotal        decimal.Decimal

	// Late interest. LateRate is the monthly percentage snapshotted from the
	// credit; Calculated is the last preview result; Applied is the amount
	// actually added to the installment's debt by an explicit admin action.
	LateRate               decimal.Decimal
	LateInterestCalculated decimal.Decimal
	LateInterestApplied    decimal.Decimal
	LateCalculatedAt       *time.Time
	LateAppliedAt          *time.Time

	// BalanceBefore is the credit's outstanding capital entering the period.
	BalanceBefore decimal.Decimal

	Status      InstallmentStatus
	PaymentDate *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveDeadline is the date overdue days count from: the payment
// deadline when set, otherwise the due date.
func (in *Installment) EffectiveDeadline() time.Time {
	if !in.PaymentDeadline.IsZero() {
		return in.PaymentDeadline
	}
	return in.DueDate
}

// DaysOverdue returns how many days past the effective deadline asOf is,
// zero when on time.
func (in *Installment) DaysOverdue(asOf time.Time) int {
	days := DaysBetween(in.EffectiveDeadline(), asOf)
	if days < 0 {
		return 0
	}
	return days
}

// TotalDue is the scheduled total plus any applied late interest.
func (in *Installment) TotalDue() decimal.Decimal {
	return in.ScheduledTotal.Add(in.LateInterestApplied)
}

// Remaining component amounts. Clamped at zero so a tolerance-absorbed
// overpayment never reports a negative remainder.

func (in *Installment) RemainingLateInterest() decimal.Decimal {
	return MaxZero(in.LateInterestApplied.Sub(in.PaidLateInterest))
}

func (in *Installment) RemainingInterest() decimal.Decimal {
	return MaxZero(in.ScheduledInterest.Sub(in.PaidInterest))
}

func (in *Installment) RemainingAval() decimal.Decimal {
	return MaxZero(in.ScheduledAval.Sub(in.PaidAval))
}

func (in *Installment) RemainingIVAAval() decimal.Decimal {
	return MaxZero(in.ScheduledIVAAval.Sub(in.PaidIVAAval))
}

func (in *Installment) RemainingCapital() decimal.Decimal {
	return MaxZero(in.ScheduledCapital.Sub(in.PaidCapital))
}

// RemainingTotal is everything still owed on the installment, including
// applied-but-unpaid late interest. This is the figure to collect, not the
// late-interest accrual base; see LateInterestAsOf.
func (in *Installment) RemainingTotal() decimal.Decimal {
	return in.RemainingLateInterest().
		Add(in.RemainingInterest()).
		Add(in.RemainingAval()).
		Add(in.RemainingIVAAval()).
		Add(in.RemainingCapital())
}

// DeriveStatus computes the installment status from the current amounts:
// PAID within tolerance of the total due, PARTIAL when anything was paid,
// OVERDUE past the effective deadline, otherwise PENDING.
func (in *Installment) DeriveStatus(asOf time.Time) InstallmentStatus {
	if in.PaidTotal.GreaterThanOrEqual(in.TotalDue().Sub(PaidTolerance)) {
		return InstallmentPaid
	}
	if in.PaidTotal.IsPositive() {
		return InstallmentPartial
	}
	if in.DaysOverdue(asOf) > 0 {
		return InstallmentOverdue
	}
	return InstallmentPending
}

// RefreshStatus re-derives and stores the status, reporting whether it changed.
func (in *Installment) RefreshStatus(asOf time.Time) bool {
	next := in.DeriveStatus(asOf)
	if next == in.Status {
		return false
	}
	in.Status = next
	return true
}
