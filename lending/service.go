/*
service.go - The operations exposed to the administrative layer

PURPOSE:
  Every lifecycle mutation is an explicit, named operation with
  pre/post-conditions - nothing is inferred from field diffs on save:

    CreateCredit        PENDING application with a CR-<year>-NNNNN number
    ApproveCredit       snapshot rates, compute the monthly breakdown
    RejectCredit        terminal rejection
    DisburseCredit      initialize balance, generate the schedule once
    RegenerateSchedule  destructive recompute (only before any payment)
    RecordPayment       atomic waterfall application + audit transaction
    PreviewLateInterest read-only accrual preview
    ApplyLateInterest   explicit manual accrual
    RefreshCreditStatus re-derive lifecycle status from the ledger

ATOMICITY:
  RecordPayment, DisburseCredit, and RegenerateSchedule run inside a single
  store transaction: the transaction record, installment updates, credit
  balance, and status recompute persist together or not at all. Concurrent
  writers against the same rows are serialized by optimistic version checks
  (engine.ErrConcurrentModification - retryable).
*/
package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/libramoneda/credit-engine/engine"
)

// minRequestedAmount is the smallest loan the platform underwrites (COP).
var minRequestedAmount = decimal.NewFromInt(100_000)

// Service wires the engine to the store. Money and Now are injectable for
// tests; both have sensible defaults from NewService.
type Service struct {
	Store Store
	Money engine.MoneyContext
	Log   *logrus.Logger
	Now   func() time.Time
}

func NewService(store Store, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		Store: store,
		Money: engine.DefaultMoney(),
		Log:   log,
		Now:   time.Now,
	}
}

// =============================================================================
// CUSTOMERS AND COMPANIES
// =============================================================================

func (s *Service) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	if c.IdentificationNumber == "" || c.FirstName == "" {
		return nil, fmt.Errorf("customer: identification and first name required")
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.Now()
	c.UpdatedAt = c.CreatedAt
	if err := s.Store.SaveCustomer(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) CreateCompany(ctx context.Context, c Company) (*Company, error) {
	if c.NIT == "" || c.BusinessName == "" {
		return nil, fmt.Errorf("company: NIT and business name required")
	}
	if c.PaymentDay < 1 || c.PaymentDay > 31 {
		return nil, fmt.Errorf("company: payment day must be 1-31, got %d", c.PaymentDay)
	}
	c.ID = uuid.NewString()
	c.Active = true
	c.CreatedAt = s.Now()
	c.UpdatedAt = c.CreatedAt
	if err := s.Store.SaveCompany(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// CREDIT APPLICATION
// =============================================================================

// CreditApplication is the intake for a new credit.
type CreditApplication struct {
	CustomerID      string
	CompanyID       string
	Type            engine.CreditType
	Frequency       PaymentFrequency
	RequestedAmount decimal.Decimal
	RequestedTerm   int
	Purpose         string
	SalesAdvisor    string
	Notes           string
}

// CreateCredit registers a PENDING application and assigns its number.
// Numbers are CR-<year>-NNNNN, sequence per calendar year, derived from the
// maximum existing number; the unique constraint backstops races.
func (s *Service) CreateCredit(ctx context.Context, app CreditApplication) (*Credit, error) {
	if !app.Type.Valid() {
		return nil, fmt.Errorf("credit: unknown credit type %q", app.Type)
	}
	if app.RequestedAmount.LessThan(minRequestedAmount) {
		return nil, fmt.Errorf("credit: requested amount below minimum %s", minRequestedAmount)
	}
	if app.RequestedTerm <= 0 {
		return nil, fmt.Errorf("credit: requested term must be positive")
	}
	if app.Type == engine.CreditLibranza && app.CompanyID == "" {
		return nil, fmt.Errorf("credit: libranza credits require a company")
	}
	if app.Frequency == "" {
		app.Frequency = FrequencyMonthly
	}

	if customer, err := s.Store.GetCustomer(ctx, app.CustomerID); err != nil {
		return nil, err
	} else if customer == nil {
		return nil, fmt.Errorf("credit: customer %s: %w", app.CustomerID, engine.ErrNotFound)
	}
	if app.CompanyID != "" {
		if company, err := s.Store.GetCompany(ctx, app.CompanyID); err != nil {
			return nil, err
		} else if company == nil {
			return nil, fmt.Errorf("credit: company %s: %w", app.CompanyID, engine.ErrNotFound)
		}
	}

	now := s.Now()
	credit := &Credit{
		ID:              uuid.NewString(),
		CustomerID:      app.CustomerID,
		CompanyID:       app.CompanyID,
		Type:            app.Type,
		Frequency:       app.Frequency,
		RequestedAmount: app.RequestedAmount,
		RequestedTerm:   app.RequestedTerm,
		Purpose:         app.Purpose,
		SalesAdvisor:    app.SalesAdvisor,
		Notes:           app.Notes,
		Status:          engine.CreditPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		seq, err := tx.MaxCreditSequence(ctx, now.Year())
		if err != nil {
			return err
		}
		credit.Number = fmt.Sprintf("CR-%d-%05d", now.Year(), seq+1)
		return tx.SaveCredit(ctx, credit)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{"credit": credit.Number, "type": credit.Type}).Info("credit application created")
	return credit, nil
}

// =============================================================================
// APPROVAL WORKFLOW
// =============================================================================

// ApprovalInput fixes the terms a credit is approved at.
type ApprovalInput struct {
	Amount     decimal.Decimal
	Term       int
	ApprovedBy string
	Notes      string
}

// ApproveCredit snapshots the effective rates from the configuration in
// force at approval time and computes the monthly breakdown. The snapshot
// is never re-derived afterwards.
func (s *Service) ApproveCredit(ctx context.Context, number string, input ApprovalInput) (*Credit, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	if credit.Status != engine.CreditPending {
		return nil, &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "approve"}
	}

	if input.Amount.IsZero() {
		input.Amount = credit.RequestedAmount
	}
	if input.Term == 0 {
		input.Term = credit.RequestedTerm
	}

	now := s.Now()
	rc, err := s.ResolveRate(ctx, now)
	if err != nil {
		return nil, err
	}

	credit.ApprovedAmount = input.Amount
	credit.ApprovedTerm = input.Term
	credit.RateConfigID = rc.ID
	credit.BaseRate = rc.BaseRate
	credit.AvalRate = rc.AvalRateFor(credit.Type, input.Amount)
	credit.IVARate = rc.IVARate
	credit.LateRate = rc.LateRate

	breakdown, err := engine.ComputeBreakdown(s.Money, s.scheduleInput(credit, 0))
	if err != nil {
		return nil, err
	}
	credit.MonthlyPaymentBase = breakdown.Base
	credit.MonthlyAval = breakdown.Aval
	credit.MonthlyIVAAval = breakdown.IVAAval
	credit.MonthlyPayment = breakdown.Total

	credit.Status = engine.CreditApproved
	credit.ApprovedBy = input.ApprovedBy
	credit.ApprovedAt = &now
	credit.ApprovalNotes = input.Notes

	if err := s.Store.UpdateCredit(ctx, credit); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"credit":    credit.Number,
		"amount":    credit.ApprovedAmount.String(),
		"term":      credit.ApprovedTerm,
		"base_rate": credit.BaseRate.String(),
		"aval_rate": credit.AvalRate.String(),
	}).Info("credit approved")
	return credit, nil
}

// RejectCredit is terminal for the application.
func (s *Service) RejectCredit(ctx context.Context, number, rejectedBy, reason string) (*Credit, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	if credit.Status != engine.CreditPending {
		return nil, &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "reject"}
	}

	now := s.Now()
	credit.Status = engine.CreditRejected
	credit.RejectedBy = rejectedBy
	credit.RejectedAt = &now
	credit.RejectionReason = reason

	if err := s.Store.UpdateCredit(ctx, credit); err != nil {
		return nil, err
	}
	s.Log.WithField("credit", credit.Number).Info("credit rejected")
	return credit, nil
}

// CancelCredit cancels an application or an approved credit before money
// moves. Disbursed credits cannot be cancelled.
func (s *Service) CancelCredit(ctx context.Context, number, reason string) (*Credit, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	if credit.Status != engine.CreditPending && credit.Status != engine.CreditApproved {
		return nil, &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "cancel"}
	}

	credit.Status = engine.CreditCancelled
	if reason != "" {
		credit.Notes = reason
	}
	if err := s.Store.UpdateCredit(ctx, credit); err != nil {
		return nil, err
	}
	s.Log.WithField("credit", credit.Number).Info("credit cancelled")
	return credit, nil
}

// =============================================================================
// DISBURSEMENT AND SCHEDULE
// =============================================================================

// DisbursementInput records how and when the principal was paid out.
type DisbursementInput struct {
	Date   time.Time
	Method string
}

// DisburseCredit initializes the outstanding balance and generates the
// amortization schedule, exactly once. Credit update and schedule insert
// commit atomically.
func (s *Service) DisburseCredit(ctx context.Context, number string, input DisbursementInput) (*Credit, error) {
	var credit *Credit
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		credit, err = s.creditByNumber(ctx, tx, number)
		if err != nil {
			return err
		}
		if credit.Status != engine.CreditApproved {
			return &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "disburse"}
		}

		existing, err := tx.InstallmentsByCredit(ctx, credit.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "disburse (schedule exists)"}
		}

		if input.Date.IsZero() {
			input.Date = s.Now()
		}
		date := engine.DateOnly(input.Date)
		credit.DisbursementDate = &date
		credit.DisbursementMethod = input.Method
		credit.Balance = credit.ApprovedAmount
		credit.Status = engine.CreditDisbursed

		return s.generateSchedule(ctx, tx, credit)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"credit":  credit.Number,
		"balance": credit.Balance.String(),
		"term":    credit.ApprovedTerm,
	}).Info("credit disbursed, schedule generated")
	return credit, nil
}

// RegenerateSchedule deletes and rebuilds the schedule from the recorded
// disbursement date. Refused once any payment has been recorded: the
// schedule is then collection history, not a draft.
func (s *Service) RegenerateSchedule(ctx context.Context, number string) (*Credit, error) {
	var credit *Credit
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		credit, err = s.creditByNumber(ctx, tx, number)
		if err != nil {
			return err
		}
		if !credit.Status.Collecting() || credit.DisbursementDate == nil {
			return &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "regenerate schedule"}
		}

		paid, err := tx.CountTransactionsByCredit(ctx, credit.ID)
		if err != nil {
			return err
		}
		if paid > 0 {
			return fmt.Errorf("credit %s: %d payments recorded: %w", number, paid, engine.ErrInvalidTransition)
		}

		if err := tx.DeleteInstallmentsByCredit(ctx, credit.ID); err != nil {
			return err
		}

		// No payments exist, so the balance rewinds to the principal.
		credit.Balance = credit.ApprovedAmount

		breakdown, err := engine.ComputeBreakdown(s.Money, s.scheduleInput(credit, 0))
		if err != nil {
			return err
		}
		credit.MonthlyPaymentBase = breakdown.Base
		credit.MonthlyAval = breakdown.Aval
		credit.MonthlyIVAAval = breakdown.IVAAval
		credit.MonthlyPayment = breakdown.Total

		return s.generateSchedule(ctx, tx, credit)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithField("credit", credit.Number).Info("schedule regenerated")
	return credit, nil
}

// generateSchedule builds and persists the installments and the
// credit-level totals. Caller provides the transactional store.
func (s *Service) generateSchedule(ctx context.Context, tx Store, credit *Credit) error {
	if !credit.hasCompleteTerms() {
		return &engine.IncompleteTermsError{Missing: []string{"approved amount, term, or rates"}}
	}

	paymentDay := 0
	if credit.Type == engine.CreditLibranza && credit.CompanyID != "" {
		company, err := tx.GetCompany(ctx, credit.CompanyID)
		if err != nil {
			return err
		}
		if company != nil {
			paymentDay = company.PaymentDay
		}
	}

	installments, err := engine.BuildSchedule(s.Money, s.scheduleInput(credit, paymentDay))
	if err != nil {
		return err
	}

	now := s.Now()
	for i := range installments {
		installments[i].ID = uuid.NewString()
		installments[i].CreatedAt = now
		installments[i].UpdatedAt = now
	}

	totals := engine.SumSchedule(installments)
	credit.TotalAmount = totals.Amount
	credit.TotalInterest = totals.Interest
	credit.TotalAval = totals.Aval
	credit.TotalIVAAval = totals.IVAAval

	if err := tx.SaveInstallments(ctx, installments); err != nil {
		return err
	}
	return tx.UpdateCredit(ctx, credit)
}

func (s *Service) scheduleInput(credit *Credit, paymentDay int) engine.ScheduleInput {
	disbursed := s.Now()
	if credit.DisbursementDate != nil {
		disbursed = *credit.DisbursementDate
	}
	return engine.ScheduleInput{
		CreditID:          credit.ID,
		Principal:         credit.ApprovedAmount,
		TermMonths:        credit.ApprovedTerm,
		BaseRate:          credit.BaseRate,
		AvalRate:          credit.AvalRate,
		IVARate:           credit.IVARate,
		LateRate:          credit.LateRate,
		CreditType:        credit.Type,
		DisbursementDate:  disbursed,
		CompanyPaymentDay: paymentDay,
	}
}

// =============================================================================
// PAYMENT RECORDING
// =============================================================================

// RecordPaymentInput describes one cash receipt.
type RecordPaymentInput struct {
	Amount     decimal.Decimal
	Date       time.Time
	Method     string
	Reference  string
	RecordedBy string
	Notes      string
}

// RecordPayment applies cash to an installment through the waterfall and
// emits the immutable transaction record. Everything - transaction record,
// installment update, credit balance, status recompute - commits in one
// store transaction.
func (s *Service) RecordPayment(ctx context.Context, number string, installmentNumber int, input RecordPaymentInput) (*PaymentTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, engine.ErrInvalidPaymentAmount
	}
	if input.Date.IsZero() {
		input.Date = s.Now()
	}

	var record *PaymentTransaction
	err := s.Store.WithTx(ctx, func(tx Store) error {
		credit, err := s.creditByNumber(ctx, tx, number)
		if err != nil {
			return err
		}
		if !credit.Status.Collecting() {
			return &engine.TransitionError{CreditNumber: number, From: credit.Status, Operation: "record payment"}
		}

		installments, err := tx.InstallmentsByCredit(ctx, credit.ID)
		if err != nil {
			return err
		}
		if len(installments) == 0 {
			return fmt.Errorf("credit %s: %w", number, engine.ErrInconsistentScheduleState)
		}

		var target *engine.Installment
		for i := range installments {
			if installments[i].Number == installmentNumber {
				target = &installments[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("credit %s installment %d: %w", number, installmentNumber, engine.ErrNotFound)
		}

		alloc, err := engine.ApplyPayment(s.Money, target, input.Amount, input.Date)
		if err != nil {
			return err
		}
		if err := tx.UpdateInstallment(ctx, target); err != nil {
			return err
		}

		if alloc.Capital.IsPositive() {
			credit.Balance = credit.Balance.Sub(alloc.Capital)
			if err := tx.UpdateCredit(ctx, credit); err != nil {
				return err
			}
		}

		if _, err := s.refreshStatus(ctx, tx, credit, installments, input.Date); err != nil {
			return err
		}

		record = &PaymentTransaction{
			ID:                ulid.Make().String(),
			CreditID:          credit.ID,
			InstallmentID:     target.ID,
			InstallmentNumber: target.Number,
			Amount:            input.Amount,
			PaidAt:            engine.DateOnly(input.Date),
			Method:            input.Method,
			Reference:         input.Reference,
			Applied:           alloc,
			RecordedBy:        input.RecordedBy,
			Notes:             input.Notes,
			CreatedAt:         s.Now(),
		}
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"credit":      number,
		"installment": installmentNumber,
		"amount":      input.Amount.String(),
		"applied":     record.Applied.String(),
	}).Info("payment recorded")
	return record, nil
}

// =============================================================================
// LATE INTEREST
// =============================================================================

// PreviewLateInterest computes the late interest an installment would owe
// as of the given date. Mutates nothing; safe to call repeatedly.
func (s *Service) PreviewLateInterest(ctx context.Context, number string, installmentNumber int, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() {
		asOf = s.Now()
	}
	installment, err := s.installment(ctx, number, installmentNumber)
	if err != nil {
		return decimal.Zero, err
	}
	return engine.LateInterestAsOf(s.Money, installment, asOf), nil
}

// ApplyLateInterest recomputes and books late interest onto the
// installment's debt. Explicit administrative action; never automatic.
func (s *Service) ApplyLateInterest(ctx context.Context, number string, installmentNumber int, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() {
		asOf = s.Now()
	}

	var applied decimal.Decimal
	err := s.Store.WithTx(ctx, func(tx Store) error {
		credit, err := s.creditByNumber(ctx, tx, number)
		if err != nil {
			return err
		}
		installments, err := tx.InstallmentsByCredit(ctx, credit.ID)
		if err != nil {
			return err
		}

		var target *engine.Installment
		for i := range installments {
			if installments[i].Number == installmentNumber {
				target = &installments[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("credit %s installment %d: %w", number, installmentNumber, engine.ErrNotFound)
		}

		applied = engine.ApplyLateInterest(s.Money, target, asOf)
		if err := tx.UpdateInstallment(ctx, target); err != nil {
			return err
		}
		_, err = s.refreshStatus(ctx, tx, credit, installments, asOf)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	if applied.IsPositive() {
		s.Log.WithFields(logrus.Fields{
			"credit":      number,
			"installment": installmentNumber,
			"amount":      applied.String(),
		}).Info("late interest applied")
	}
	return applied, nil
}

// =============================================================================
// STATUS REFRESH
// =============================================================================

// RefreshCreditStatus re-derives the lifecycle status from the ledger.
// Returns the credit and whether a status write happened; calling it twice
// without intervening mutations performs no second write.
func (s *Service) RefreshCreditStatus(ctx context.Context, number string) (*Credit, bool, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, false, err
	}
	if !credit.Status.Collecting() {
		return credit, false, nil
	}
	installments, err := s.Store.InstallmentsByCredit(ctx, credit.ID)
	if err != nil {
		return nil, false, err
	}
	if len(installments) == 0 {
		return credit, false, nil
	}
	changed, err := s.refreshStatus(ctx, s.Store, credit, installments, s.Now())
	return credit, changed, err
}

// RefreshAllCreditStatuses sweeps every collecting credit. Used by the
// optional scheduler and the admin endpoint.
func (s *Service) RefreshAllCreditStatuses(ctx context.Context) (int, error) {
	credits, err := s.Store.ListCreditsByStatus(ctx,
		engine.CreditDisbursed, engine.CreditActive, engine.CreditPastDue, engine.CreditDefaulted)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range credits {
		_, didChange, err := s.RefreshCreditStatus(ctx, credits[i].Number)
		if err != nil {
			return changed, err
		}
		if didChange {
			changed++
		}
	}
	return changed, nil
}

// refreshStatus derives the status from the in-memory ledger view and
// writes it only when it differs from the stored one.
func (s *Service) refreshStatus(ctx context.Context, tx Store, credit *Credit, installments []engine.Installment, asOf time.Time) (bool, error) {
	if !credit.Status.Collecting() {
		return false, nil
	}

	balanceCleared := !credit.Balance.IsPositive()
	maxOverdue := engine.MaxOverdueDays(installments, asOf)
	next := engine.DeriveCreditStatus(balanceCleared, maxOverdue)
	if next == credit.Status {
		return false, nil
	}

	old := credit.Status
	if err := tx.UpdateCreditStatus(ctx, credit, next); err != nil {
		return false, err
	}
	s.Log.WithFields(logrus.Fields{
		"credit": credit.Number,
		"from":   old,
		"to":     next,
	}).Info("credit status transition")
	return true, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) GetCredit(ctx context.Context, number string) (*Credit, error) {
	return s.creditByNumber(ctx, s.Store, number)
}

func (s *Service) Schedule(ctx context.Context, number string) ([]engine.Installment, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	return s.Store.InstallmentsByCredit(ctx, credit.ID)
}

func (s *Service) Transactions(ctx context.Context, number string) ([]PaymentTransaction, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	return s.Store.TransactionsByCredit(ctx, credit.ID)
}

// Summary aggregates the ledger for display.
func (s *Service) Summary(ctx context.Context, number string) (*CreditSummary, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	installments, err := s.Store.InstallmentsByCredit(ctx, credit.ID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(credit, installments, s.Now())
	return &summary, nil
}

func (s *Service) creditByNumber(ctx context.Context, store Store, number string) (*Credit, error) {
	credit, err := store.GetCreditByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if credit == nil {
		return nil, fmt.Errorf("credit %s: %w", number, engine.ErrNotFound)
	}
	return credit, nil
}

func (s *Service) installment(ctx context.Context, number string, installmentNumber int) (*engine.Installment, error) {
	credit, err := s.creditByNumber(ctx, s.Store, number)
	if err != nil {
		return nil, err
	}
	installment, err := s.Store.GetInstallment(ctx, credit.ID, installmentNumber)
	if err != nil {
		return nil, err
	}
	if installment == nil {
		return nil, fmt.Errorf("credit %s installment %d: %w", number, installmentNumber, engine.ErrNotFound)
	}
	return installment, nil
}
