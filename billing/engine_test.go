package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/billing-engine/billing"
	memstore "github.com/strata/billing-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *memstore.Memory {
	t.Helper()
	return memstore.NewMemory()
}

func money(s string) billing.Money { return billing.MustMoney(s) }

// testConfig is the standard fixture: Rs 2/sqft maintenance plus
// Rs 0.5/sqft sinking fund, 12% simple interest, due on the 10th with
// 15 grace days, no tax.
func testConfig() billing.Config {
	return billing.Config{
		MaintenanceRate: money("2"),
		SinkingFundRate: money("0.5"),
		InterestRate:    money("12"),
		InterestMethod:  billing.InterestSimple,
		GraceDays:       15,
		BillDueDay:      10,
	}
}

func seedTenant(t *testing.T, st billing.Store, cfg billing.Config) billing.Tenant {
	t.Helper()
	tenant := billing.Tenant{ID: "soc-1", Name: "Sunrise Heights", Config: cfg}
	require.NoError(t, st.SaveTenant(context.Background(), tenant))
	return tenant
}

func seedAccount(t *testing.T, st billing.Store, id, unit string, area, opening billing.Money) billing.Account {
	t.Helper()
	account := billing.Account{
		ID:             billing.AccountID(id),
		TenantID:       "soc-1",
		Unit:           unit,
		Area:           area,
		OpeningBalance: opening,
	}
	require.NoError(t, st.SaveAccount(context.Background(), account))
	return account
}

func adminActor() billing.Actor { return billing.Actor{ID: "admin-1", Role: "admin"} }

func date(year int, month time.Month, day int) billing.Date {
	return billing.NewDate(year, month, day)
}

// =============================================================================
// END-TO-END: generate, pay, accrue, sweep
// =============================================================================

func TestEngine_FullBillingCycle(t *testing.T) {
	// GIVEN: A society with one 1000 sqft unit and standard rates
	// WHEN: A period is billed, partially paid, and left to go overdue
	// THEN: Balances, statuses, and interest all line up with the ledger

	st := newTestStore(t)
	ledger := billing.NewLedger(st)
	generator := billing.NewGenerator(st, ledger, nil)
	payments := billing.NewPayments(st, ledger, nil)
	interest := billing.NewInterestEngine(st, ledger, nil)
	ctx := context.Background()

	seedTenant(t, st, testConfig())
	account := seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)

	// Generate January: 1000 * (2 + 0.5) = 2500
	period := billing.NewPeriod(2026, time.January)
	bills, err := generator.Commit(ctx, "soc-1", period, nil, adminActor())
	require.NoError(t, err)
	require.Len(t, bills, 1)

	bill := bills[0]
	assert.True(t, money("2500").Equal(bill.Total), "total should be 2500, got %s", bill.Total)
	assert.Equal(t, billing.StatusUnpaid, bill.Status)
	assert.Equal(t, date(2026, time.January, 10), bill.DueDate)

	balance, err := ledger.CurrentBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, money("2500").Equal(balance))

	// Partial payment of 1500
	paid, _, err := payments.RecordPayment(ctx, bill.ID, money("1500"), date(2026, time.January, 20), adminActor(), "chq-001")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPartial, paid.Status)

	balance, err = ledger.CurrentBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, money("1000").Equal(balance))

	// Interest 30 days past grace end (Jan 25): 1000 * 12% * 30/30 = 120
	report, err := interest.Run(ctx, "soc-1", date(2026, time.February, 24))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Charged)
	assert.True(t, money("120").Equal(report.Total), "interest should be 120, got %s", report.Total)

	balance, err = ledger.CurrentBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, money("1120").Equal(balance))

	// Sweep does not touch the partially paid bill
	sweep, err := payments.SweepOverdue(ctx, "soc-1", date(2026, time.February, 24))
	require.NoError(t, err)
	assert.Equal(t, 0, sweep.Charged)

	fresh, err := st.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPartial, fresh.Status)

	// The ledger replays to the same closing balance
	entries, err := ledger.Entries(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, billing.ReplayBalance(account, entries).Equal(balance))

	// Every batch left an audit run
	runs, err := st.RunsByTenant(ctx, "soc-1", "")
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestEngine_FebruaryBillCarriesArrears(t *testing.T) {
	// GIVEN: January is billed and unpaid
	// WHEN: February is generated
	// THEN: The new bill's total includes the carried balance, but the
	//       ledger debit is only the new charges

	st := newTestStore(t)
	ledger := billing.NewLedger(st)
	generator := billing.NewGenerator(st, ledger, nil)
	ctx := context.Background()

	seedTenant(t, st, testConfig())
	account := seedAccount(t, st, "acct-1", "A-301", money("1000"), billing.Zero)

	_, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.January), nil, adminActor())
	require.NoError(t, err)

	bills, err := generator.Commit(ctx, "soc-1", billing.NewPeriod(2026, time.February), nil, adminActor())
	require.NoError(t, err)
	require.Len(t, bills, 1)

	feb := bills[0]
	assert.True(t, money("2500").Equal(feb.Subtotal))
	assert.True(t, money("2500").Equal(feb.PreviousBalance))
	assert.True(t, money("5000").Equal(feb.Total))

	balance, err := ledger.CurrentBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, money("5000").Equal(balance), "balance should equal the bill total")
}
