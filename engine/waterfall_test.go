package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libramoneda/credit-engine/engine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// unpaidInstallment owes exactly 500,000 split across components, due
// March 31 with a payment deadline of April 15 and a 3% monthly late rate.
func unpaidInstallment() *engine.Installment {
	return &engine.Installment{
		ID:                "inst-1",
		CreditID:          "credit-1",
		Number:            3,
		DueDate:           engine.Date(2025, time.March, 31),
		PaymentDeadline:   engine.Date(2025, time.April, 15),
		PeriodDays:        30,
		ScheduledCapital:  d("400000"),
		ScheduledInterest: d("60000"),
		ScheduledAval:     d("30000"),
		ScheduledIVAAval:  d("10000"),
		ScheduledTotal:    d("500000"),
		LateRate:          d("3.00"),
		BalanceBefore:     d("400000"),
		Status:            engine.InstallmentPending,
	}
}

// =============================================================================
// LATE INTEREST
// =============================================================================

func TestLateInterestAsOf_ZeroBeforeDeadline(t *testing.T) {
	in := unpaidInstallment()
	mc := engine.DefaultMoney()

	// On the due date: deadline extends to April 15, so nothing accrues.
	assert.True(t, engine.LateInterestAsOf(mc, in, engine.Date(2025, time.March, 31)).IsZero())
	// On the deadline itself: still on time.
	assert.True(t, engine.LateInterestAsOf(mc, in, engine.Date(2025, time.April, 15)).IsZero())
}

func TestLateInterestAsOf_TenDaysLate(t *testing.T) {
	// GIVEN: 500,000 outstanding at 3% monthly, 10 days past deadline
	// WHEN: Previewing late interest
	// THEN: 500,000 * 0.03/30 * 10 = 5,000

	in := unpaidInstallment()
	got := engine.LateInterestAsOf(engine.DefaultMoney(), in, engine.Date(2025, time.April, 25))
	assert.True(t, d("5000").Equal(got), "got %s", got)

	// A preview mutates nothing.
	assert.True(t, in.LateInterestCalculated.IsZero())
	assert.Nil(t, in.LateCalculatedAt)
}

func TestApplyLateInterest_AddsToDebt(t *testing.T) {
	in := unpaidInstallment()
	asOf := engine.Date(2025, time.April, 25)

	applied := engine.ApplyLateInterest(engine.DefaultMoney(), in, asOf)

	assert.True(t, d("5000").Equal(applied), "got %s", applied)
	assert.True(t, d("5000").Equal(in.LateInterestApplied))
	assert.True(t, d("5000").Equal(in.LateInterestCalculated))
	require.NotNil(t, in.LateCalculatedAt)
	require.NotNil(t, in.LateAppliedAt)
	assert.Equal(t, asOf, *in.LateAppliedAt)

	// Debt and status reflect the applied amount.
	assert.True(t, d("505000").Equal(in.TotalDue()))
	assert.True(t, d("505000").Equal(in.RemainingTotal()))
	assert.Equal(t, engine.InstallmentOverdue, in.Status)
}

func TestApplyLateInterest_OnTime_StampsZero(t *testing.T) {
	in := unpaidInstallment()
	asOf := engine.Date(2025, time.April, 10)

	applied := engine.ApplyLateInterest(engine.DefaultMoney(), in, asOf)

	// Calculation is always stamped; nothing is added to the debt.
	assert.True(t, applied.IsZero())
	require.NotNil(t, in.LateCalculatedAt)
	assert.Nil(t, in.LateAppliedAt)
	assert.True(t, in.LateInterestApplied.IsZero())
	assert.True(t, d("500000").Equal(in.TotalDue()))
}

func TestApplyLateInterest_ReapplyReplacesPriorAmount(t *testing.T) {
	// GIVEN: Late interest applied at 10 days overdue
	// WHEN: Applying again at 20 days
	// THEN: The applied amount is the full 20-day accrual, not a running sum

	in := unpaidInstallment()
	mc := engine.DefaultMoney()

	first := engine.ApplyLateInterest(mc, in, engine.Date(2025, time.April, 25))
	require.True(t, d("5000").Equal(first), "got %s", first)
	require.True(t, d("505000").Equal(in.RemainingTotal()))

	// 20 days late on 500,000: 500,000 * 0.001 * 20 = 10,000.
	second := engine.ApplyLateInterest(mc, in, engine.Date(2025, time.May, 5))
	assert.True(t, d("10000").Equal(second), "got %s", second)
	assert.True(t, d("10000").Equal(in.LateInterestApplied))
	assert.True(t, d("510000").Equal(in.TotalDue()))
}

func TestApplyLateInterest_SameDateTwice_Unchanged(t *testing.T) {
	in := unpaidInstallment()
	mc := engine.DefaultMoney()
	asOf := engine.Date(2025, time.May, 5)

	engine.ApplyLateInterest(mc, in, asOf)
	require.True(t, d("10000").Equal(in.LateInterestApplied))

	again := engine.ApplyLateInterest(mc, in, asOf)
	assert.True(t, d("10000").Equal(again), "got %s", again)
	assert.True(t, d("10000").Equal(in.LateInterestApplied))
	assert.True(t, d("510000").Equal(in.RemainingTotal()))
}

func TestApplyLateInterest_SteppedAppliesMatchSingleApply(t *testing.T) {
	// The same overdue window costs the same whether late interest was
	// applied once at the end or refreshed along the way.

	mc := engine.DefaultMoney()
	asOf := engine.Date(2025, time.May, 5)

	stepped := unpaidInstallment()
	engine.ApplyLateInterest(mc, stepped, engine.Date(2025, time.April, 25))
	engine.ApplyLateInterest(mc, stepped, asOf)

	direct := unpaidInstallment()
	engine.ApplyLateInterest(mc, direct, asOf)

	assert.True(t, direct.LateInterestApplied.Equal(stepped.LateInterestApplied),
		"stepped %s direct %s", stepped.LateInterestApplied, direct.LateInterestApplied)
	assert.True(t, direct.RemainingTotal().Equal(stepped.RemainingTotal()))
}

func TestApplyLateInterest_PartiallyPaidLate_KeepsCredit(t *testing.T) {
	// GIVEN: 5,000 applied late interest of which 3,000 was collected
	// WHEN: Re-applying at 20 days overdue
	// THEN: The new full-window amount replaces the stamp and the 3,000
	//       already paid still counts against it

	in := unpaidInstallment()
	mc := engine.DefaultMoney()

	engine.ApplyLateInterest(mc, in, engine.Date(2025, time.April, 25))
	alloc, err := engine.ApplyPayment(mc, in, d("3000"), engine.Date(2025, time.April, 26))
	require.NoError(t, err)
	require.True(t, d("3000").Equal(alloc.LateInterest))

	engine.ApplyLateInterest(mc, in, engine.Date(2025, time.May, 5))
	assert.True(t, d("10000").Equal(in.LateInterestApplied))
	assert.True(t, d("7000").Equal(in.RemainingLateInterest()))
}

// =============================================================================
// PAYMENT WATERFALL
// =============================================================================

func TestApplyPayment_WaterfallOrder(t *testing.T) {
	// GIVEN: 100,000 against interest 60,000 + aval 30,000 + iva 10,000 +
	//        capital 400,000
	// WHEN: Applying the payment
	// THEN: Interest, aval, and IVA fill in order; capital gets nothing

	in := unpaidInstallment()
	alloc, err := engine.ApplyPayment(engine.DefaultMoney(), in, d("100000"), engine.Date(2025, time.April, 10))
	require.NoError(t, err)

	assert.True(t, alloc.LateInterest.IsZero())
	assert.True(t, d("60000").Equal(alloc.Interest))
	assert.True(t, d("30000").Equal(alloc.Aval))
	assert.True(t, d("10000").Equal(alloc.IVAAval))
	assert.True(t, alloc.Capital.IsZero())
	assert.True(t, d("100000").Equal(alloc.Total()))

	assert.Equal(t, engine.InstallmentPartial, in.Status)
	assert.True(t, d("400000").Equal(in.RemainingTotal()))
	require.NotNil(t, in.PaymentDate)
	assert.Equal(t, engine.Date(2025, time.April, 10), *in.PaymentDate)
}

func TestApplyPayment_LateInterestFirst(t *testing.T) {
	// GIVEN: An installment with 5,000 applied late interest
	// WHEN: Paying 8,000
	// THEN: Late interest is settled before scheduled interest

	in := unpaidInstallment()
	engine.ApplyLateInterest(engine.DefaultMoney(), in, engine.Date(2025, time.April, 25))

	alloc, err := engine.ApplyPayment(engine.DefaultMoney(), in, d("8000"), engine.Date(2025, time.April, 26))
	require.NoError(t, err)

	assert.True(t, d("5000").Equal(alloc.LateInterest))
	assert.True(t, d("3000").Equal(alloc.Interest))
	assert.True(t, alloc.Capital.IsZero())
}

func TestApplyPayment_FullWithinTolerance_MarksPaid(t *testing.T) {
	// GIVEN: 500,000 due with a 10-unit tolerance
	// WHEN: Paying 499,995
	// THEN: The installment is PAID despite the 5-unit shortfall

	in := unpaidInstallment()
	_, err := engine.ApplyPayment(engine.DefaultMoney(), in, d("499995"), engine.Date(2025, time.April, 10))
	require.NoError(t, err)

	assert.Equal(t, engine.InstallmentPaid, in.Status)
	// The shortfall still shows as remaining capital, never negative.
	assert.True(t, d("5").Equal(in.RemainingCapital()))
}

func TestApplyPayment_Overpayment_LandsInCapital(t *testing.T) {
	in := unpaidInstallment()
	alloc, err := engine.ApplyPayment(engine.DefaultMoney(), in, d("510000"), engine.Date(2025, time.April, 10))
	require.NoError(t, err)

	// 400,000 scheduled capital plus the 10,000 excess.
	assert.True(t, d("410000").Equal(alloc.Capital))
	assert.True(t, d("510000").Equal(alloc.Total()))
	assert.Equal(t, engine.InstallmentPaid, in.Status)
	assert.True(t, in.RemainingTotal().IsZero())
}

func TestApplyPayment_TwoPartials_AccumulatePaid(t *testing.T) {
	in := unpaidInstallment()
	mc := engine.DefaultMoney()

	_, err := engine.ApplyPayment(mc, in, d("300000"), engine.Date(2025, time.April, 5))
	require.NoError(t, err)
	assert.Equal(t, engine.InstallmentPartial, in.Status)

	_, err = engine.ApplyPayment(mc, in, d("200000"), engine.Date(2025, time.April, 12))
	require.NoError(t, err)

	assert.Equal(t, engine.InstallmentPaid, in.Status)
	assert.True(t, d("500000").Equal(in.PaidTotal))
	assert.True(t, d("400000").Equal(in.PaidCapital))
}

func TestApplyPayment_NonPositiveAmount_Fails(t *testing.T) {
	in := unpaidInstallment()
	mc := engine.DefaultMoney()

	_, err := engine.ApplyPayment(mc, in, d("0"), engine.Date(2025, time.April, 10))
	assert.ErrorIs(t, err, engine.ErrInvalidPaymentAmount)

	_, err = engine.ApplyPayment(mc, in, d("-100"), engine.Date(2025, time.April, 10))
	assert.ErrorIs(t, err, engine.ErrInvalidPaymentAmount)

	// A failed payment leaves the installment untouched.
	assert.True(t, in.PaidTotal.IsZero())
	assert.Equal(t, engine.InstallmentPending, in.Status)
}
