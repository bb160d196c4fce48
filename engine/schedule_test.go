package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libramoneda/credit-engine/engine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// referenceInput is a libranza credit disbursed early in the month:
// 10,000,000 over 12 months at 1.88% base, 7.05% aval, 19% IVA, with the
// employer paying payroll on the 15th.
func referenceInput() engine.ScheduleInput {
	return engine.ScheduleInput{
		CreditID:          "credit-1",
		Principal:         d("10000000"),
		TermMonths:        12,
		BaseRate:          d("1.88"),
		AvalRate:          d("7.05"),
		IVARate:           d("19"),
		LateRate:          d("3.00"),
		CreditType:        engine.CreditLibranza,
		DisbursementDate:  engine.Date(2025, time.January, 10),
		CompanyPaymentDay: 15,
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s (%v)", want, got, msgAndArgs)
}

// =============================================================================
// MONTHLY BREAKDOWN
// =============================================================================

func TestComputeBreakdown_ReferenceTerms(t *testing.T) {
	// GIVEN: The reference credit terms
	// WHEN: Computing the level monthly breakdown
	// THEN: Base PMT at 1.88%, aval as the PMT difference, IVA on the aval

	breakdown, err := engine.ComputeBreakdown(engine.DefaultMoney(), referenceInput())
	require.NoError(t, err)

	assertAmount(t, "938641", breakdown.Base)
	assertAmount(t, "323736", breakdown.Aval)
	assertAmount(t, "61510", breakdown.IVAAval)
	assertAmount(t, "1323887", breakdown.Total)
}

func TestComputeBreakdown_MissingTerms_Fails(t *testing.T) {
	in := referenceInput()
	in.BaseRate = decimal.Zero
	in.Principal = decimal.Zero

	_, err := engine.ComputeBreakdown(engine.DefaultMoney(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrIncompleteCreditTerms)

	var terms *engine.IncompleteTermsError
	require.ErrorAs(t, err, &terms)
	assert.Contains(t, terms.Missing, "approved amount")
	assert.Contains(t, terms.Missing, "base rate")
}

// =============================================================================
// FULL SCHEDULE
// =============================================================================

func TestBuildSchedule_ReferenceCredit(t *testing.T) {
	// GIVEN: The reference credit disbursed January 10
	// WHEN: Building the schedule
	// THEN: 12 installments, prorated first period, level middle periods,
	//       and a final plug that amortizes the principal exactly

	installments, err := engine.BuildSchedule(engine.DefaultMoney(), referenceInput())
	require.NoError(t, err)
	require.Len(t, installments, 12)

	// First period: disbursed on the 10th (<=15), so it ends January 31
	// after 21 days, with interest prorated 21/30.
	first := installments[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, engine.Date(2025, time.January, 31), first.DueDate)
	assert.Equal(t, 21, first.PeriodDays)
	assertAmount(t, "131600", first.ScheduledInterest)
	assertAmount(t, "750641", first.ScheduledCapital)
	assertAmount(t, "1267487", first.ScheduledTotal)
	assertAmount(t, "10000000", first.BalanceBefore)
	assert.Equal(t, engine.InstallmentPending, first.Status)

	// Middle periods carry the level monthly total.
	second := installments[1]
	assert.Equal(t, engine.Date(2025, time.February, 28), second.DueDate)
	assert.Equal(t, 27, second.PeriodDays)
	assertAmount(t, "156499", second.ScheduledInterest)
	assertAmount(t, "782142", second.ScheduledCapital)
	assertAmount(t, "1323887", second.ScheduledTotal)
	assertAmount(t, "9249359", second.BalanceBefore)

	for k := 1; k <= 10; k++ {
		assertAmount(t, "1323887", installments[k].ScheduledTotal, "period", k+1)
		assertAmount(t, "323736", installments[k].ScheduledAval, "period", k+1)
		assertAmount(t, "61510", installments[k].ScheduledIVAAval, "period", k+1)
	}

	// Final period: capital is the remaining balance, not the level amount.
	last := installments[11]
	assert.Equal(t, engine.Date(2025, time.December, 31), last.DueDate)
	assertAmount(t, "887650", last.ScheduledCapital)
	assertAmount(t, "887650", last.BalanceBefore)
	assertAmount(t, "16688", last.ScheduledInterest)
	assertAmount(t, "1289584", last.ScheduledTotal)
}

func TestBuildSchedule_CapitalAmortizesExactly(t *testing.T) {
	// GIVEN: The reference schedule
	// WHEN: Summing the scheduled components
	// THEN: Capital equals the principal to the unit; no rounding leak

	installments, err := engine.BuildSchedule(engine.DefaultMoney(), referenceInput())
	require.NoError(t, err)

	totals := engine.SumSchedule(installments)
	assertAmount(t, "10000000", totals.Capital)
	assertAmount(t, "1172989", totals.Interest)
	assertAmount(t, "3884832", totals.Aval)
	assertAmount(t, "738120", totals.IVAAval)
	assertAmount(t, "15795941", totals.Amount)
}

func TestBuildSchedule_FifteenDayRule_LateDisbursement(t *testing.T) {
	// GIVEN: A disbursement after the 15th
	// WHEN: Building the schedule
	// THEN: The first period skips to the end of the NEXT month

	in := referenceInput()
	in.DisbursementDate = engine.Date(2025, time.January, 20)

	installments, err := engine.BuildSchedule(engine.DefaultMoney(), in)
	require.NoError(t, err)

	first := installments[0]
	assert.Equal(t, engine.Date(2025, time.February, 28), first.DueDate)
	assert.Equal(t, 39, first.PeriodDays)
	// More than 30 days of interest: the first total EXCEEDS the level total.
	assert.True(t, first.ScheduledTotal.GreaterThan(d("1323887")),
		"long first period should cost more than the level installment, got %s", first.ScheduledTotal)

	// Second period still chains from the first due date.
	assert.Equal(t, engine.Date(2025, time.March, 31), installments[1].DueDate)
}

func TestBuildSchedule_PaymentDeadline_CompanyPaymentDay(t *testing.T) {
	// GIVEN: A libranza credit with a company paying payroll on the 15th
	// WHEN: Building the schedule
	// THEN: Every deadline is the 15th of the month after the due date

	installments, err := engine.BuildSchedule(engine.DefaultMoney(), referenceInput())
	require.NoError(t, err)

	assert.Equal(t, engine.Date(2025, time.February, 15), installments[0].PaymentDeadline)
	assert.Equal(t, engine.Date(2025, time.March, 15), installments[1].PaymentDeadline)
	assert.Equal(t, engine.Date(2026, time.January, 15), installments[11].PaymentDeadline)
}

func TestBuildSchedule_PaymentDeadline_PersonalCredit(t *testing.T) {
	// GIVEN: A personal credit (no payroll agreement)
	// WHEN: Building the schedule
	// THEN: The deadline equals the due date

	in := referenceInput()
	in.CreditType = engine.CreditNatural
	in.CompanyPaymentDay = 0

	installments, err := engine.BuildSchedule(engine.DefaultMoney(), in)
	require.NoError(t, err)

	for i := range installments {
		assert.Equal(t, installments[i].DueDate, installments[i].PaymentDeadline)
	}
}

func TestBuildSchedule_DeadlineClampedToMonthLength(t *testing.T) {
	// GIVEN: A payment day past the end of February
	// WHEN: Building the schedule
	// THEN: The deadline clamps to February's last day

	in := referenceInput()
	in.CompanyPaymentDay = 31

	installments, err := engine.BuildSchedule(engine.DefaultMoney(), in)
	require.NoError(t, err)

	// Due January 31, deadline in February: clamped to the 28th.
	assert.Equal(t, engine.Date(2025, time.February, 28), installments[0].PaymentDeadline)
	// Due February 28, deadline March 31: no clamping needed.
	assert.Equal(t, engine.Date(2025, time.March, 31), installments[1].PaymentDeadline)
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

func TestCalendar_MonthBoundaries(t *testing.T) {
	assert.Equal(t, engine.Date(2024, time.February, 29), engine.EndOfMonth(engine.Date(2024, time.February, 10)))
	assert.Equal(t, engine.Date(2025, time.February, 28), engine.EndOfNextMonth(engine.Date(2025, time.January, 31)))
	assert.Equal(t, 21, engine.DaysBetween(engine.Date(2025, time.January, 10), engine.Date(2025, time.January, 31)))
	assert.Equal(t, engine.Date(2025, time.February, 28), engine.DayInNextMonth(engine.Date(2025, time.January, 31), 31))
}
