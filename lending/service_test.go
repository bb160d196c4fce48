package lending_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libramoneda/credit-engine/engine"
	"github.com/libramoneda/credit-engine/lending"
	"github.com/libramoneda/credit-engine/store/sqlite"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

// fixture runs the full service against an in-memory store with a
// controllable clock. Advance the clock by assigning f.now.
type fixture struct {
	svc *lending.Service
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{now: engine.Date(2025, time.January, 10)}
	f.svc = lending.NewService(store, log)
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) seedCustomer(t *testing.T) *lending.Customer {
	t.Helper()
	customer, err := f.svc.CreateCustomer(context.Background(), lending.Customer{
		IdentificationType:   "CC",
		IdentificationNumber: "1012345678",
		FirstName:            "Marta",
		LastName:             "Quintero",
		Email:                "marta.quintero@example.com",
	})
	require.NoError(t, err)
	return customer
}

func (f *fixture) seedCompany(t *testing.T, paymentDay int) *lending.Company {
	t.Helper()
	company, err := f.svc.CreateCompany(context.Background(), lending.Company{
		NIT:          "900123456-7",
		BusinessName: "Transportes Andinos SAS",
		PaymentDay:   paymentDay,
		ContactName:  "Nómina",
	})
	require.NoError(t, err)
	return company
}

// seedRates installs the January 2025 configuration with an explicit 1.88%
// base rate so the schedule amounts below are stable.
func (f *fixture) seedRates(t *testing.T) *engine.RateConfig {
	t.Helper()
	rc, err := f.svc.CreateRateConfig(context.Background(), lending.RateConfigInput{
		Year:      2025,
		Month:     time.January,
		UsuryRate: d("25.01"),
		BaseRate:  d("1.88"),
		CreatedBy: "admin",
	})
	require.NoError(t, err)
	return rc
}

// seedDisbursedCredit walks a 10,000,000 x 12 libranza credit through
// application, approval, and disbursement on January 10.
func (f *fixture) seedDisbursedCredit(t *testing.T) *lending.Credit {
	t.Helper()
	ctx := context.Background()

	customer := f.seedCustomer(t)
	company := f.seedCompany(t, 15)
	f.seedRates(t)

	credit, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
		CustomerID:      customer.ID,
		CompanyID:       company.ID,
		Type:            engine.CreditLibranza,
		RequestedAmount: d("10000000"),
		RequestedTerm:   12,
		SalesAdvisor:    "asesor-1",
	})
	require.NoError(t, err)

	_, err = f.svc.ApproveCredit(ctx, credit.Number, lending.ApprovalInput{ApprovedBy: "analista"})
	require.NoError(t, err)

	credit, err = f.svc.DisburseCredit(ctx, credit.Number, lending.DisbursementInput{
		Date:   engine.Date(2025, time.January, 10),
		Method: "TRANSFER",
	})
	require.NoError(t, err)
	return credit
}

// =============================================================================
// APPLICATION AND NUMBERING
// =============================================================================

func TestCreateCredit_AssignsSequentialNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seedCustomer(t)
	company := f.seedCompany(t, 15)

	app := lending.CreditApplication{
		CustomerID:      customer.ID,
		CompanyID:       company.ID,
		Type:            engine.CreditLibranza,
		RequestedAmount: d("2000000"),
		RequestedTerm:   6,
	}

	first, err := f.svc.CreateCredit(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, "CR-2025-00001", first.Number)
	assert.Equal(t, engine.CreditPending, first.Status)
	assert.Equal(t, lending.FrequencyMonthly, first.Frequency)

	second, err := f.svc.CreateCredit(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, "CR-2025-00002", second.Number)
}

func TestCreateCredit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seedCustomer(t)

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
			CustomerID: customer.ID, Type: "PAYDAY",
			RequestedAmount: d("2000000"), RequestedTerm: 6,
		})
		assert.Error(t, err)
	})

	t.Run("below minimum amount", func(t *testing.T) {
		_, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
			CustomerID: customer.ID, Type: engine.CreditNatural,
			RequestedAmount: d("50000"), RequestedTerm: 6,
		})
		assert.Error(t, err)
	})

	t.Run("libranza without company", func(t *testing.T) {
		_, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
			CustomerID: customer.ID, Type: engine.CreditLibranza,
			RequestedAmount: d("2000000"), RequestedTerm: 6,
		})
		assert.Error(t, err)
	})

	t.Run("unknown customer", func(t *testing.T) {
		_, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
			CustomerID: "nope", Type: engine.CreditNatural,
			RequestedAmount: d("2000000"), RequestedTerm: 6,
		})
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})
}

// =============================================================================
// APPROVAL
// =============================================================================

func TestApproveCredit_SnapshotsRatesAndBreakdown(t *testing.T) {
	// GIVEN: A pending libranza application with January rates in force
	// WHEN: Approving at the requested terms
	// THEN: Rates are snapshotted and the monthly breakdown is computed

	f := newFixture(t)
	ctx := context.Background()
	customer := f.seedCustomer(t)
	company := f.seedCompany(t, 15)
	rc := f.seedRates(t)

	credit, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
		CustomerID: customer.ID, CompanyID: company.ID,
		Type:            engine.CreditLibranza,
		RequestedAmount: d("10000000"), RequestedTerm: 12,
	})
	require.NoError(t, err)

	approved, err := f.svc.ApproveCredit(ctx, credit.Number, lending.ApprovalInput{ApprovedBy: "analista"})
	require.NoError(t, err)

	assert.Equal(t, engine.CreditApproved, approved.Status)
	assert.Equal(t, rc.ID, approved.RateConfigID)
	assert.True(t, d("1.88").Equal(approved.BaseRate))
	assert.True(t, d("7.05").Equal(approved.AvalRate))
	assert.True(t, d("10000000").Equal(approved.ApprovedAmount))
	assert.Equal(t, 12, approved.ApprovedTerm)
	assert.True(t, d("938641").Equal(approved.MonthlyPaymentBase))
	assert.True(t, d("323736").Equal(approved.MonthlyAval))
	assert.True(t, d("61510").Equal(approved.MonthlyIVAAval))
	assert.True(t, d("1323887").Equal(approved.MonthlyPayment))
	require.NotNil(t, approved.ApprovedAt)
}

func TestApproveCredit_NoRateConfig_Fails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seedCustomer(t)

	credit, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
		CustomerID: customer.ID, Type: engine.CreditNatural,
		RequestedAmount: d("2000000"), RequestedTerm: 6,
	})
	require.NoError(t, err)

	_, err = f.svc.ApproveCredit(ctx, credit.Number, lending.ApprovalInput{ApprovedBy: "analista"})
	assert.ErrorIs(t, err, engine.ErrNoActiveRateConfig)
}

func TestApproveCredit_RequiresPending(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)

	_, err := f.svc.ApproveCredit(context.Background(), credit.Number, lending.ApprovalInput{ApprovedBy: "analista"})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)

	var transition *engine.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, engine.CreditDisbursed, transition.From)
}

func TestRejectCredit_IsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seedCustomer(t)
	f.seedRates(t)

	credit, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
		CustomerID: customer.ID, Type: engine.CreditNatural,
		RequestedAmount: d("2000000"), RequestedTerm: 6,
	})
	require.NoError(t, err)

	rejected, err := f.svc.RejectCredit(ctx, credit.Number, "analista", "capacidad de pago insuficiente")
	require.NoError(t, err)
	assert.Equal(t, engine.CreditRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedAt)

	_, err = f.svc.ApproveCredit(ctx, credit.Number, lending.ApprovalInput{ApprovedBy: "analista"})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestCancelCredit_OnlyBeforeDisbursement(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)

	_, err := f.svc.CancelCredit(context.Background(), credit.Number, "cliente desistió")
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

// =============================================================================
// DISBURSEMENT AND SCHEDULE
// =============================================================================

func TestDisburseCredit_GeneratesSchedule(t *testing.T) {
	// GIVEN: An approved 10,000,000 x 12 libranza credit
	// WHEN: Disbursing on January 10
	// THEN: Balance initialized, 12 installments persisted, totals rolled up

	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	assert.Equal(t, engine.CreditDisbursed, credit.Status)
	assert.True(t, d("10000000").Equal(credit.Balance))
	assert.True(t, d("15795941").Equal(credit.TotalAmount))
	assert.True(t, d("1172989").Equal(credit.TotalInterest))
	require.NotNil(t, credit.DisbursementDate)

	schedule, err := f.svc.Schedule(ctx, credit.Number)
	require.NoError(t, err)
	require.Len(t, schedule, 12)

	first := schedule[0]
	assert.Equal(t, engine.Date(2025, time.January, 31), first.DueDate)
	assert.Equal(t, engine.Date(2025, time.February, 15), first.PaymentDeadline)
	assert.True(t, d("1267487").Equal(first.ScheduledTotal))
	assert.True(t, d("3").Equal(first.LateRate.Round(0)), "late rate snapshotted from config")

	last := schedule[11]
	assert.Equal(t, 12, last.Number)
	assert.True(t, d("887650").Equal(last.ScheduledCapital))
}

func TestDisburseCredit_Twice_Fails(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)

	_, err := f.svc.DisburseCredit(context.Background(), credit.Number, lending.DisbursementInput{
		Date: engine.Date(2025, time.January, 11),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestRegenerateSchedule_BeforeAnyPayment(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	regenerated, err := f.svc.RegenerateSchedule(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, d("10000000").Equal(regenerated.Balance))

	schedule, err := f.svc.Schedule(ctx, credit.Number)
	require.NoError(t, err)
	require.Len(t, schedule, 12)
	assert.True(t, d("1267487").Equal(schedule[0].ScheduledTotal))
}

func TestRegenerateSchedule_RefusedAfterPayment(t *testing.T) {
	// GIVEN: A disbursed credit with one recorded payment
	// WHEN: Attempting to regenerate the schedule
	// THEN: Refused; the schedule is collection history

	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	f.now = engine.Date(2025, time.February, 10)
	_, err := f.svc.RecordPayment(ctx, credit.Number, 1, lending.RecordPaymentInput{
		Amount: d("1267487"), Method: "PAYROLL", RecordedBy: "tesorería",
	})
	require.NoError(t, err)

	_, err = f.svc.RegenerateSchedule(ctx, credit.Number)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordPayment_FullInstallment(t *testing.T) {
	// GIVEN: The disbursed reference credit
	// WHEN: Paying installment 1 in full on February 10
	// THEN: Waterfall split recorded, balance drops by the capital portion,
	//       credit moves to ACTIVE

	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	f.now = engine.Date(2025, time.February, 10)
	record, err := f.svc.RecordPayment(ctx, credit.Number, 1, lending.RecordPaymentInput{
		Amount:     d("1267487"),
		Method:     "PAYROLL",
		Reference:  "NOM-2025-02",
		RecordedBy: "tesorería",
	})
	require.NoError(t, err)

	assert.Len(t, record.ID, 26, "transaction IDs are ULIDs")
	assert.Equal(t, 1, record.InstallmentNumber)
	assert.True(t, d("131600").Equal(record.Applied.Interest))
	assert.True(t, d("323736").Equal(record.Applied.Aval))
	assert.True(t, d("61510").Equal(record.Applied.IVAAval))
	assert.True(t, d("750641").Equal(record.Applied.Capital))
	assert.True(t, record.Applied.LateInterest.IsZero())
	assert.True(t, d("1267487").Equal(record.Applied.Total()))

	updated, err := f.svc.GetCredit(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, d("9249359").Equal(updated.Balance))
	assert.Equal(t, engine.CreditActive, updated.Status)

	schedule, err := f.svc.Schedule(ctx, credit.Number)
	require.NoError(t, err)
	assert.Equal(t, engine.InstallmentPaid, schedule[0].Status)

	transactions, err := f.svc.Transactions(ctx, credit.Number)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, record.ID, transactions[0].ID)
}

func TestRecordPayment_Partial(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	f.now = engine.Date(2025, time.February, 10)
	record, err := f.svc.RecordPayment(ctx, credit.Number, 1, lending.RecordPaymentInput{
		Amount: d("500000"), Method: "TRANSFER", RecordedBy: "tesorería",
	})
	require.NoError(t, err)

	// Interest, aval, and IVA absorb 516,846 total; 500,000 does not reach
	// capital, so the balance is untouched.
	assert.True(t, record.Applied.Capital.IsZero())

	updated, err := f.svc.GetCredit(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, d("10000000").Equal(updated.Balance))

	schedule, err := f.svc.Schedule(ctx, credit.Number)
	require.NoError(t, err)
	assert.Equal(t, engine.InstallmentPartial, schedule[0].Status)
}

func TestRecordPayment_Errors(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := f.svc.RecordPayment(ctx, credit.Number, 1, lending.RecordPaymentInput{Amount: d("0")})
		assert.ErrorIs(t, err, engine.ErrInvalidPaymentAmount)
	})

	t.Run("unknown installment", func(t *testing.T) {
		_, err := f.svc.RecordPayment(ctx, credit.Number, 99, lending.RecordPaymentInput{Amount: d("1000")})
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("unknown credit", func(t *testing.T) {
		_, err := f.svc.RecordPayment(ctx, "CR-2025-99999", 1, lending.RecordPaymentInput{Amount: d("1000")})
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})
}

// =============================================================================
// LATE INTEREST
// =============================================================================

func TestLateInterest_PreviewAndApply(t *testing.T) {
	// GIVEN: Installment 1 unpaid 10 days past its February 15 deadline
	// WHEN: Previewing, then applying late interest
	// THEN: Preview matches the accrual; applying books it onto the debt

	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()
	asOf := engine.Date(2025, time.February, 25)

	preview, err := f.svc.PreviewLateInterest(ctx, credit.Number, 1, asOf)
	require.NoError(t, err)
	// 1,267,487 * 0.03/30 * 10 days = 12,675.
	assert.True(t, d("12675").Equal(preview), "got %s", preview)

	// Preview is read-only: a second call returns the same amount.
	again, err := f.svc.PreviewLateInterest(ctx, credit.Number, 1, asOf)
	require.NoError(t, err)
	assert.True(t, preview.Equal(again))

	applied, err := f.svc.ApplyLateInterest(ctx, credit.Number, 1, asOf)
	require.NoError(t, err)
	assert.True(t, d("12675").Equal(applied))

	schedule, err := f.svc.Schedule(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, d("12675").Equal(schedule[0].LateInterestApplied))
	assert.Equal(t, engine.InstallmentOverdue, schedule[0].Status)
}

func TestLateInterest_ReapplyPersistsReplacedAmount(t *testing.T) {
	// GIVEN: Late interest applied at 10 days past the deadline
	// WHEN: Applying again at 20 days
	// THEN: The stored amount is the 20-day accrual, not the two windows
	//       added together

	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	_, err := f.svc.ApplyLateInterest(ctx, credit.Number, 1, engine.Date(2025, time.February, 25))
	require.NoError(t, err)

	// 1,267,487 * 0.03/30 * 20 days = 25,350.
	applied, err := f.svc.ApplyLateInterest(ctx, credit.Number, 1, engine.Date(2025, time.March, 7))
	require.NoError(t, err)
	assert.True(t, d("25350").Equal(applied), "got %s", applied)

	schedule, err := f.svc.Schedule(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, d("25350").Equal(schedule[0].LateInterestApplied))
	assert.True(t, d("25350").Equal(schedule[0].LateInterestCalculated))

	// Re-applying at the same date leaves the stored amount unchanged.
	again, err := f.svc.ApplyLateInterest(ctx, credit.Number, 1, engine.Date(2025, time.March, 7))
	require.NoError(t, err)
	assert.True(t, d("25350").Equal(again))
}

// =============================================================================
// STATUS REFRESH
// =============================================================================

func TestRefreshCreditStatus_OverdueProgression(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	// Ten days past the first deadline (February 15): PAST_DUE.
	f.now = engine.Date(2025, time.February, 25)
	updated, changed, err := f.svc.RefreshCreditStatus(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, engine.CreditPastDue, updated.Status)

	// Second call with no ledger change: no write.
	_, changed, err = f.svc.RefreshCreditStatus(ctx, credit.Number)
	require.NoError(t, err)
	assert.False(t, changed)

	// Thirty days past: DEFAULTED.
	f.now = engine.Date(2025, time.March, 17)
	updated, changed, err = f.svc.RefreshCreditStatus(ctx, credit.Number)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, engine.CreditDefaulted, updated.Status)
}

func TestRefreshCreditStatus_SkipsNonCollecting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seedCustomer(t)

	credit, err := f.svc.CreateCredit(ctx, lending.CreditApplication{
		CustomerID: customer.ID, Type: engine.CreditNatural,
		RequestedAmount: d("2000000"), RequestedTerm: 6,
	})
	require.NoError(t, err)

	updated, changed, err := f.svc.RefreshCreditStatus(ctx, credit.Number)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, engine.CreditPending, updated.Status)
}

func TestRefreshAllCreditStatuses(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	f.now = engine.Date(2025, time.February, 25)
	changed, err := f.svc.RefreshAllCreditStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	updated, err := f.svc.GetCredit(ctx, credit.Number)
	require.NoError(t, err)
	assert.Equal(t, engine.CreditPastDue, updated.Status)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummary_AggregatesLedger(t *testing.T) {
	f := newFixture(t)
	credit := f.seedDisbursedCredit(t)
	ctx := context.Background()

	f.now = engine.Date(2025, time.February, 10)
	_, err := f.svc.RecordPayment(ctx, credit.Number, 1, lending.RecordPaymentInput{
		Amount: d("1267487"), Method: "PAYROLL", RecordedBy: "tesorería",
	})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, credit.Number)
	require.NoError(t, err)

	assert.Equal(t, credit.Number, summary.CreditNumber)
	assert.Equal(t, 12, summary.InstallmentCount)
	assert.Equal(t, 1, summary.PaidInstallments)
	assert.Equal(t, 0, summary.MaxDaysOverdue)
	assert.True(t, d("9249359").Equal(summary.Balance))
	assert.True(t, d("1267487").Equal(summary.TotalPaid))
}
