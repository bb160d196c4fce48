/*
status.go - Credit lifecycle state machine

PURPOSE:
  The credit status is a closed enum with a total derivation function over
  the payment ledger's aggregate overdue state. Workflow transitions
  (approve, reject, disburse, cancel) are explicit operations in the lending
  service; the collection statuses (ACTIVE, PAST_DUE, DEFAULTED, PAID_OFF)
  are re-derived after every ledger mutation.

DERIVATION, in priority order:
  1. balance <= 0                -> PAID_OFF (terminal)
  2. max overdue days >= 30      -> DEFAULTED
  3. max overdue days 1..29      -> PAST_DUE
  4. fully current               -> ACTIVE

  A DEFAULTED credit whose installments are brought current returns to
  ACTIVE without manual intervention.
*/
package engine

import "time"

// CreditStatus is the lifecycle state of a credit.
type CreditStatus string

const (
	CreditPending   CreditStatus = "PENDING"
	CreditApproved  CreditStatus = "APPROVED"
	CreditRejected  CreditStatus = "REJECTED"
	CreditDisbursed CreditStatus = "DISBURSED"
	CreditActive    CreditStatus = "ACTIVE"
	CreditPastDue   CreditStatus = "PAST_DUE"
	CreditDefaulted CreditStatus = "DEFAULTED"
	CreditPaidOff   CreditStatus = "PAID_OFF"
	CreditCancelled CreditStatus = "CANCELLED"
)

// DefaultThresholdDays is the overdue-day count at which a credit defaults.
const DefaultThresholdDays = 30

// Valid reports whether s is a known status.
func (s CreditStatus) Valid() bool {
	switch s {
	case CreditPending, CreditApproved, CreditRejected, CreditDisbursed,
		CreditActive, CreditPastDue, CreditDefaulted, CreditPaidOff, CreditCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s CreditStatus) Terminal() bool {
	return s == CreditPaidOff || s == CreditRejected || s == CreditCancelled
}

// Collecting reports whether the credit has an outstanding schedule whose
// status should track the ledger.
func (s CreditStatus) Collecting() bool {
	switch s {
	case CreditDisbursed, CreditActive, CreditPastDue, CreditDefaulted:
		return true
	}
	return false
}

// DeriveCreditStatus is the total derivation function over the ledger
// aggregate: balanceCleared is true when the outstanding capital is <= 0,
// maxOverdueDays is the maximum days overdue across non-paid installments.
func DeriveCreditStatus(balanceCleared bool, maxOverdueDays int) CreditStatus {
	switch {
	case balanceCleared:
		return CreditPaidOff
	case maxOverdueDays >= DefaultThresholdDays:
		return CreditDefaulted
	case maxOverdueDays > 0:
		return CreditPastDue
	default:
		return CreditActive
	}
}

// MaxOverdueDays returns the maximum days overdue across installments that
// are not fully paid as of the given date.
func MaxOverdueDays(installments []Installment, asOf time.Time) int {
	max := 0
	for i := range installments {
		in := &installments[i]
		if in.DeriveStatus(asOf) == InstallmentPaid {
			continue
		}
		if d := in.DaysOverdue(asOf); d > max {
			max = d
		}
	}
	return max
}
