/*
Package lending orchestrates the credit engine against the relational store:
customer/company records, the credit application workflow (create, approve,
reject, disburse), schedule generation, payment recording, and late-interest
administration.

KEY CONCEPTS IN THIS FILE (types.go):
  - Credit: the loan aggregate; rates are snapshotted at approval and never
    re-derived, balance tracks outstanding capital only.
  - PaymentTransaction: immutable audit record of one cash receipt and its
    waterfall split. Append-only, never updated or deleted.
  - Customer/Company: thin collaborator records the engine needs (aval-rate
    selection, company payment-day deadlines).

SEE ALSO:
  - service.go: the operations exposed to the administrative layer
  - store.go:   persistence contracts
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/libramoneda/credit-engine/engine"
)

// PaymentFrequency is how often installments fall due. Schedules are
// generated monthly; the field is carried for reporting parity with the
// intake forms.
type PaymentFrequency string

const (
	FrequencyMonthly  PaymentFrequency = "MONTHLY"
	FrequencyBiweekly PaymentFrequency = "BIWEEKLY"
	FrequencyWeekly   PaymentFrequency = "WEEKLY"
)

// =============================================================================
// CUSTOMER / COMPANY
// =============================================================================

type Customer struct {
	ID                   string
	IdentificationType   string
	IdentificationNumber string
	FirstName            string
	LastName             string
	Phone                string
	Email                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Company is an employer with a payroll agreement. PaymentDay drives the
// payment-deadline rule for libranza credits.
type Company struct {
	ID           string
	NIT          string
	BusinessName string
	TradeName    string
	PaymentDay   int
	ContactName  string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// CREDIT
// =============================================================================

type Credit struct {
	ID     string
	Number string // CR-<year>-NNNNN, unique, assigned at creation

	CustomerID string
	CompanyID  string // required for libranza credits
	Type       engine.CreditType
	Frequency  PaymentFrequency

	RequestedAmount decimal.Decimal
	RequestedTerm   int
	ApprovedAmount  decimal.Decimal
	ApprovedTerm    int

	// Rate snapshot, copied from a RateConfig at approval. Percentages.
	// Immutable afterwards; later config changes never move this credit.
	RateConfigID string
	BaseRate     decimal.Decimal
	AvalRate     decimal.Decimal
	IVARate      decimal.Decimal
	LateRate     decimal.Decimal

	// Monthly breakdown, computed at approval.
	MonthlyPaymentBase decimal.Decimal
	MonthlyAval        decimal.Decimal
	MonthlyIVAAval     decimal.Decimal
	MonthlyPayment     decimal.Decimal

	// Credit-level totals, summed over the generated schedule.
	TotalAmount   decimal.Decimal
	TotalInterest decimal.Decimal
	TotalAval     decimal.Decimal
	TotalIVAAval  decimal.Decimal

	DisbursementDate   *time.Time
	DisbursementMethod string

	Status  engine.CreditStatus
	Balance decimal.Decimal // outstanding capital only

	SalesAdvisor    string
	ApprovedBy      string
	ApprovedAt      *time.Time
	ApprovalNotes   string
	RejectedBy      string
	RejectedAt      *time.Time
	RejectionReason string

	Purpose string
	Notes   string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FinalAmount is the approved amount once set, else the requested amount.
func (c *Credit) FinalAmount() decimal.Decimal {
	if c.ApprovedAmount.IsPositive() {
		return c.ApprovedAmount
	}
	return c.RequestedAmount
}

// FinalTerm is the approved term once set, else the requested term.
func (c *Credit) FinalTerm() int {
	if c.ApprovedTerm > 0 {
		return c.ApprovedTerm
	}
	return c.RequestedTerm
}

// hasCompleteTerms reports whether the credit carries everything the
// schedule builder needs.
func (c *Credit) hasCompleteTerms() bool {
	return c.ApprovedAmount.IsPositive() && c.ApprovedTerm > 0 &&
		!c.BaseRate.IsZero() && !c.AvalRate.IsZero() && !c.IVARate.IsZero()
}

// =============================================================================
// PAYMENT TRANSACTION - Immutable cash receipt record
// =============================================================================

// PaymentTransaction records one cash receipt and how the waterfall split
// it. Append-only: never updated, never deleted. IDs are ULIDs so the audit
// trail sorts chronologically by ID.
type PaymentTransaction struct {
	ID                string
	CreditID          string
	InstallmentID     string
	InstallmentNumber int

	Amount    decimal.Decimal
	PaidAt    time.Time
	Method    string
	Reference string

	// Applied breakdown; sums exactly to Amount.
	Applied engine.Allocation

	RecordedBy string
	Notes      string
	CreatedAt  time.Time
}

// =============================================================================
// CREDIT SUMMARY - Read-only ledger aggregates
// =============================================================================

// CreditSummary aggregates a credit's ledger for display: overdue exposure
// and collection progress.
type CreditSummary struct {
	CreditNumber       string
	Status             engine.CreditStatus
	Balance            decimal.Decimal
	InstallmentCount   int
	PaidInstallments   int
	MaxDaysOverdue     int
	TotalOverdueAmount decimal.Decimal
	TotalPaid          decimal.Decimal
}

// Summarize computes the ledger aggregates for a credit as of a date.
func Summarize(c *Credit, installments []engine.Installment, asOf time.Time) CreditSummary {
	s := CreditSummary{
		CreditNumber:     c.Number,
		Status:           c.Status,
		Balance:          c.Balance,
		InstallmentCount: len(installments),
	}
	for i := range installments {
		in := &installments[i]
		s.TotalPaid = s.TotalPaid.Add(in.PaidTotal)
		if in.DeriveStatus(asOf) == engine.InstallmentPaid {
			s.PaidInstallments++
			continue
		}
		if d := in.DaysOverdue(asOf); d > 0 {
			if d > s.MaxDaysOverdue {
				s.MaxDaysOverdue = d
			}
			s.TotalOverdueAmount = s.TotalOverdueAmount.Add(in.RemainingTotal())
		}
	}
	return s
}
