package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/billing-engine/billing"
)

// =============================================================================
// PREVIEW
// =============================================================================

func TestGenerator_Preview_StandardCharges(t *testing.T) {
	// GIVEN: A 1000 sqft flat at Rs 2 maintenance + Rs 0.5 sinking fund
	// WHEN: A period is previewed
	// THEN: The subtotal is 2500 and nothing is written

	st := newTestStore(t)
	seedTenant(t, st, testConfig())
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	ledger := billing.NewLedger(st)
	generator := billing.NewGenerator(st, ledger, nil)
	ctx := context.Background()

	previews, err := generator.Preview(ctx, "soc-1", billing.NewPeriod(2026, time.January), nil)
	require.NoError(t, err)
	require.Len(t, previews, 1)

	p := previews[0]
	assert.True(t, money("2500").Equal(p.Subtotal))
	assert.True(t, money("2500").Equal(p.Total))
	assert.True(t, billing.Zero.Equal(p.Tax))
	require.Len(t, p.Charges, 2)
	assert.Equal(t, "Maintenance", p.Charges[0].Name)
	assert.True(t, money("2000").Equal(p.Charges[0].Amount))
	assert.Equal(t, "Sinking Fund", p.Charges[1].Name)
	assert.True(t, money("500").Equal(p.Charges[1].Amount))
	assert.Equal(t, date(2026, time.January, 10), p.DueDate)

	// Preview must leave no trace.
	bill, err := st.BillForPeriod(ctx, "acct-1", billing.NewPeriod(2026, time.January))
	require.NoError(t, err)
	assert.Nil(t, bill)
	entries, err := st.Entries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerator_Preview_PercentageRuleSeesRunningSubtotal(t *testing.T) {
	// GIVEN: A fixed Rs 100 clubhouse rule followed by a 10% levy
	// WHEN: The period is previewed
	// THEN: The levy charges 10% of the subtotal accumulated before it

	cfg := billing.Config{BillDueDay: 10}
	st := newTestStore(t)
	seedTenant(t, st, cfg)
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	ctx := context.Background()

	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-1", TenantID: "soc-1", Name: "Clubhouse",
		Type: billing.CalcFixed, Rate: money("100"), Active: true, Order: 1,
	}))
	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-2", TenantID: "soc-1", Name: "Festival Levy",
		Type: billing.CalcPercentage, Rate: money("10"), Active: true, Order: 2,
	}))

	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)
	previews, err := generator.Preview(ctx, "soc-1", billing.NewPeriod(2026, time.January), nil)
	require.NoError(t, err)
	require.Len(t, previews, 1)

	p := previews[0]
	require.Len(t, p.Charges, 2)
	assert.Equal(t, "Festival Levy", p.Charges[1].Name)
	assert.True(t, money("10").Equal(p.Charges[1].Amount))
	assert.True(t, money("110").Equal(p.Subtotal))
}

func TestGenerator_Preview_PercentageBeforeFixed_ChargesNothing(t *testing.T) {
	// A percentage rule ordered before any other charge sees a zero
	// subtotal and contributes no line.

	cfg := billing.Config{BillDueDay: 10}
	st := newTestStore(t)
	seedTenant(t, st, cfg)
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	ctx := context.Background()

	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-1", TenantID: "soc-1", Name: "Festival Levy",
		Type: billing.CalcPercentage, Rate: money("10"), Active: true, Order: 1,
	}))
	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-2", TenantID: "soc-1", Name: "Clubhouse",
		Type: billing.CalcFixed, Rate: money("100"), Active: true, Order: 2,
	}))

	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)
	previews, err := generator.Preview(context.Background(), "soc-1", billing.NewPeriod(2026, time.January), nil)
	require.NoError(t, err)

	p := previews[0]
	require.Len(t, p.Charges, 1)
	assert.Equal(t, "Clubhouse", p.Charges[0].Name)
	assert.True(t, money("100").Equal(p.Subtotal))
}

// =============================================================================
// COMMIT
// =============================================================================

func TestGenerator_Commit_WritesBillAndDebit(t *testing.T) {
	st := newTestStore(t)
	seedTenant(t, st, testConfig())
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	ledger := billing.NewLedger(st)
	generator := billing.NewGenerator(st, ledger, nil)
	ctx := context.Background()

	bills, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.January), nil, adminActor())
	require.NoError(t, err)
	require.Len(t, bills, 1)

	bill := bills[0]
	assert.True(t, money("2500").Equal(bill.Total))
	assert.Equal(t, billing.StatusUnpaid, bill.Status)
	assert.True(t, bill.Locked)
	assert.Equal(t, date(2026, time.January, 10), bill.DueDate)

	entries, err := st.Entries(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, billing.Debit, entries[0].Direction)
	assert.Equal(t, billing.CategoryMaintenance, entries[0].Category)
	assert.Equal(t, bill.ID, entries[0].BillID)
	assert.Equal(t, date(2026, time.January, 1), entries[0].Date)
	assert.True(t, money("2500").Equal(entries[0].BalanceAfter))
}

func TestGenerator_Commit_AppliesServiceTax(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceTaxRate = money("4")
	st := newTestStore(t)
	seedTenant(t, st, cfg)
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)
	ctx := context.Background()

	bills, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.January), nil, adminActor())
	require.NoError(t, err)

	bill := bills[0]
	assert.True(t, money("100").Equal(bill.Tax), "4%% of 2500")
	assert.True(t, money("2600").Equal(bill.Total))

	// The debit carries subtotal plus tax.
	entries, err := st.Entries(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, money("2600").Equal(entries[0].BalanceAfter))
}

func TestGenerator_Commit_DuplicatePeriodAbortsWholeBatch(t *testing.T) {
	// GIVEN: acct-1 is already billed for January
	// WHEN: A full-tenant January batch runs
	// THEN: The whole batch aborts; acct-2 gets neither bill nor debit

	st := newTestStore(t)
	seedTenant(t, st, testConfig())
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	seedAccount(t, st, "acct-2", "A-302", money("800"), billing.Zero)
	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)
	ctx := context.Background()
	january := billing.NewPeriod(2026, time.January)

	_, err := generator.Commit(ctx, "soc-1", january, []billing.AccountID{"acct-1"}, adminActor())
	require.NoError(t, err)

	_, err = generator.Commit(ctx, "soc-1", january, nil, adminActor())
	var dup *billing.DuplicatePeriodError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, billing.AccountID("acct-1"), dup.AccountID)

	bill, err := st.BillForPeriod(ctx, "acct-2", january)
	require.NoError(t, err)
	assert.Nil(t, bill, "aborted batch must not leave a bill behind")
	entries, err := st.Entries(ctx, "acct-2")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerator_Commit_SelectiveAccounts(t *testing.T) {
	st := newTestStore(t)
	seedTenant(t, st, testConfig())
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	seedAccount(t, st, "acct-2", "A-302", money("800"), billing.Zero)
	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)
	ctx := context.Background()

	bills, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.January), []billing.AccountID{"acct-1"}, adminActor())
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, billing.AccountID("acct-1"), bills[0].AccountID)

	other, err := st.BillForPeriod(ctx, "acct-2", billing.NewPeriod(2026, time.January))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestGenerator_Commit_IncompleteConfigRejected(t *testing.T) {
	st := newTestStore(t)
	seedTenant(t, st, billing.Config{})
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)

	_, err := generator.Commit(context.Background(), "soc-1", billing.NewPeriod(2026, time.January), nil, adminActor())
	assert.ErrorIs(t, err, billing.ErrConfigIncomplete)
}

func TestGenerator_Commit_InactiveAndArchivedRulesSkipped(t *testing.T) {
	cfg := billing.Config{BillDueDay: 10}
	st := newTestStore(t)
	seedTenant(t, st, cfg)
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	ctx := context.Background()

	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-1", TenantID: "soc-1", Name: "Clubhouse",
		Type: billing.CalcFixed, Rate: money("100"), Active: true, Order: 1,
	}))
	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-2", TenantID: "soc-1", Name: "Paused",
		Type: billing.CalcFixed, Rate: money("40"), Active: false, Order: 2,
	}))
	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-3", TenantID: "soc-1", Name: "Retired",
		Type: billing.CalcFixed, Rate: money("60"), Active: true, Deleted: true, Order: 3,
	}))

	generator := billing.NewGenerator(st, billing.NewLedger(st), nil)
	bills, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.January), nil, adminActor())
	require.NoError(t, err)
	assert.True(t, money("100").Equal(bills[0].Subtotal))
}

func TestGenerator_Commit_ShowsPriorInterestOnBill(t *testing.T) {
	// Interest accrued in the previous period surfaces on the bill as an
	// informational line; it is not debited again.

	st := newTestStore(t)
	seedTenant(t, st, testConfig())
	seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)
	ledger := billing.NewLedger(st)
	generator := billing.NewGenerator(st, ledger, nil)
	ctx := context.Background()

	_, err := ledger.Append(ctx, billing.AppendInput{
		TenantID:  "soc-1",
		AccountID: "acct-1",
		Date:      date(2026, time.January, 26),
		Direction: billing.Debit,
		Category:  billing.CategoryInterest,
		Amount:    money("120"),
		Actor:     billing.System,
	})
	require.NoError(t, err)

	bills, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.February), nil, adminActor())
	require.NoError(t, err)

	bill := bills[0]
	assert.True(t, money("120").Equal(bill.Interest))
	assert.True(t, money("120").Equal(bill.PreviousBalance))
	assert.True(t, money("2620").Equal(bill.Total))

	balance, err := ledger.CurrentBalance(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, money("2620").Equal(balance))
}
