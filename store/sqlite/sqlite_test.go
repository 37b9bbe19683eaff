package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/billing-engine/billing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func money(s string) billing.Money { return billing.MustMoney(s) }

func day(y int, m time.Month, d int) billing.Date { return billing.NewDate(y, m, d) }

func testEntry(id string, seq int64, d billing.Date, amount, after string) billing.LedgerEntry {
	return billing.LedgerEntry{
		ID:           billing.EntryID(id),
		TenantID:     "soc-1",
		AccountID:    "acct-1",
		Date:         d,
		Direction:    billing.Debit,
		Category:     billing.CategoryMaintenance,
		Amount:       money(amount),
		BalanceAfter: money(after),
		Seq:          seq,
		CreatedBy:    "admin-1",
		CreatedAt:    time.Now().UTC(),
	}
}

func testBill(id, account, period string) billing.Bill {
	return billing.Bill{
		ID:        billing.BillID(id),
		TenantID:  "soc-1",
		AccountID: billing.AccountID(account),
		Period:    billing.NewPeriod(2026, time.January),
		Charges: []billing.ChargeLine{
			{Name: "Maintenance", Amount: money("2000")},
			{Name: "Sinking Fund", Amount: money("500")},
		},
		PreviousBalance: billing.Zero,
		Interest:        billing.Zero,
		Subtotal:        money("2500"),
		Tax:             billing.Zero,
		Total:           money("2500"),
		AmountPaid:      billing.Zero,
		DueDate:         day(2026, time.January, 10),
		Status:          billing.StatusUnpaid,
		Locked:          true,
		GeneratedAt:     time.Now().UTC(),
		GeneratedBy:     "admin-1",
	}
}

// =============================================================================
// TENANTS AND ACCOUNTS
// =============================================================================

func TestStore_TenantRoundtrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	tenant := billing.Tenant{
		ID:   "soc-1",
		Name: "Sunrise Heights",
		Config: billing.Config{
			MaintenanceRate:      money("2"),
			SinkingFundRate:      money("0.5"),
			WaterCharge:          money("300"),
			InterestRate:         money("12"),
			InterestMethod:       billing.InterestCompound,
			CompoundingFrequency: billing.CompoundDaily,
			GraceDays:            15,
			BillDueDay:           10,
			ServiceTaxRate:       money("18"),
		},
	}
	require.NoError(t, st.SaveTenant(ctx, tenant))

	got, err := st.GetTenant(ctx, "soc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sunrise Heights", got.Name)
	assert.True(t, money("2").Equal(got.Config.MaintenanceRate))
	assert.True(t, money("0.5").Equal(got.Config.SinkingFundRate))
	assert.True(t, money("12").Equal(got.Config.InterestRate))
	assert.Equal(t, billing.InterestCompound, got.Config.InterestMethod)
	assert.Equal(t, billing.CompoundDaily, got.Config.CompoundingFrequency)
	assert.Equal(t, 15, got.Config.GraceDays)
	assert.Equal(t, 10, got.Config.BillDueDay)

	// Saving again replaces the config.
	tenant.Config.GraceDays = 7
	require.NoError(t, st.SaveTenant(ctx, tenant))
	got, err = st.GetTenant(ctx, "soc-1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Config.GraceDays)

	tenants, err := st.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 1)
}

func TestStore_GetTenant_MissingIsNil(t *testing.T) {
	st := newStore(t)

	got, err := st.GetTenant(context.Background(), "soc-missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_AccountRoundtrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	account := billing.Account{
		ID:             "acct-1",
		TenantID:       "soc-1",
		Unit:           "A-301",
		Area:           money("1000"),
		OpeningBalance: money("250.50"),
		OwnerName:      "R. Mehta",
	}
	require.NoError(t, st.SaveAccount(ctx, account))
	require.NoError(t, st.SaveAccount(ctx, billing.Account{
		ID: "acct-2", TenantID: "soc-1", Unit: "A-102", Area: money("800"),
		OpeningBalance: billing.Zero,
	}))

	got, err := st.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A-301", got.Unit)
	assert.True(t, money("250.50").Equal(got.OpeningBalance))
	assert.Equal(t, "R. Mehta", got.OwnerName)

	accounts, err := st.ListAccounts(ctx, "soc-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "A-102", accounts[0].Unit)
	assert.Equal(t, "A-301", accounts[1].Unit)
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func TestStore_AppendAndQueryEntries(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	e1 := testEntry("le-1", 0, day(2026, time.January, 1), "100", "100")
	require.NoError(t, st.AppendEntry(ctx, e1, ""))

	e2 := testEntry("le-2", 1, day(2026, time.January, 15), "50", "150")
	require.NoError(t, st.AppendEntry(ctx, e2, "le-1"))

	latest, err := st.LatestEntry(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, billing.EntryID("le-2"), latest.ID)
	assert.True(t, money("150").Equal(latest.BalanceAfter))

	entries, err := st.Entries(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, billing.EntryID("le-1"), entries[0].ID)

	ranged, err := st.EntriesInRange(ctx, "acct-1", day(2026, time.January, 10), day(2026, time.January, 31))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, billing.EntryID("le-2"), ranged[0].ID)

	missing, err := st.GetEntry(ctx, "le-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_AppendEntry_StaleCAS(t *testing.T) {
	// GIVEN: le-1 is the latest entry
	// WHEN: A second writer appends expecting an empty chain
	// THEN: The append is rejected as a concurrent modification

	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendEntry(ctx, testEntry("le-1", 0, day(2026, time.January, 1), "100", "100"), ""))

	stale := testEntry("le-2", 0, day(2026, time.January, 2), "50", "50")
	err := st.AppendEntry(ctx, stale, "")
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
}

func TestStore_MarkReversed(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendEntry(ctx, testEntry("le-1", 0, day(2026, time.January, 1), "100", "100"), ""))
	require.NoError(t, st.MarkReversed(ctx, "le-1"))

	got, err := st.GetEntry(ctx, "le-1")
	require.NoError(t, err)
	assert.True(t, got.Reversed)

	assert.Error(t, st.MarkReversed(ctx, "le-missing"))
}

func TestStore_DailyInterestUniqueIndex(t *testing.T) {
	// The schema allows one non-reversal interest entry per account per
	// day. A reversal of that entry on the same day is fine.

	st := newStore(t)
	ctx := context.Background()

	first := testEntry("le-1", 0, day(2026, time.February, 27), "120", "120")
	first.Category = billing.CategoryInterest
	require.NoError(t, st.AppendEntry(ctx, first, ""))

	has, err := st.HasInterestOn(ctx, "acct-1", day(2026, time.February, 27))
	require.NoError(t, err)
	assert.True(t, has)
	has, err = st.HasInterestOn(ctx, "acct-1", day(2026, time.February, 28))
	require.NoError(t, err)
	assert.False(t, has)

	dup := testEntry("le-2", 1, day(2026, time.February, 27), "120", "240")
	dup.Category = billing.CategoryInterest
	assert.Error(t, st.AppendEntry(ctx, dup, "le-1"), "second interest entry same day must hit the unique index")

	reversal := testEntry("le-3", 1, day(2026, time.February, 27), "120", "0")
	reversal.Category = billing.CategoryInterest
	reversal.Direction = billing.Credit
	reversal.ReversalOf = "le-1"
	assert.NoError(t, st.AppendEntry(ctx, reversal, "le-1"))
}

func TestStore_OldestOpenMaintenanceEntry(t *testing.T) {
	// GIVEN: A January debit whose bill is paid and a February debit
	//        whose bill is unpaid
	// WHEN: The anchor is requested
	// THEN: The February debit is returned

	st := newStore(t)
	ctx := context.Background()

	paid := testBill("bill-jan", "acct-1", "2026-01")
	paid.Status = billing.StatusPaid
	paid.AmountPaid = paid.Total
	require.NoError(t, st.SaveBill(ctx, paid))

	open := testBill("bill-feb", "acct-1", "2026-02")
	open.Period = billing.NewPeriod(2026, time.February)
	require.NoError(t, st.SaveBill(ctx, open))

	janDebit := testEntry("le-1", 0, day(2026, time.January, 1), "2500", "2500")
	janDebit.BillID = "bill-jan"
	require.NoError(t, st.AppendEntry(ctx, janDebit, ""))

	febDebit := testEntry("le-2", 1, day(2026, time.February, 1), "2500", "5000")
	febDebit.BillID = "bill-feb"
	require.NoError(t, st.AppendEntry(ctx, febDebit, "le-1"))

	anchor, err := st.OldestOpenMaintenanceEntry(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, billing.EntryID("le-2"), anchor.ID)
}

func TestStore_OldestOpenMaintenanceEntry_NoBillLink(t *testing.T) {
	// A maintenance debit without a bill still anchors.

	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendEntry(ctx, testEntry("le-1", 0, day(2026, time.January, 1), "2500", "2500"), ""))

	anchor, err := st.OldestOpenMaintenanceEntry(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, billing.EntryID("le-1"), anchor.ID)
}

// =============================================================================
// BILLS
// =============================================================================

func TestStore_BillRoundtrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	bill := testBill("bill-1", "acct-1", "2026-01")
	require.NoError(t, st.SaveBill(ctx, bill))

	got, err := st.GetBill(ctx, "bill-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, money("2500").Equal(got.Total))
	assert.Equal(t, billing.StatusUnpaid, got.Status)
	assert.True(t, got.Locked)
	require.Len(t, got.Charges, 2)
	assert.Equal(t, "Maintenance", got.Charges[0].Name)
	assert.Equal(t, day(2026, time.January, 10), got.DueDate)

	byPeriod, err := st.BillForPeriod(ctx, "acct-1", billing.NewPeriod(2026, time.January))
	require.NoError(t, err)
	require.NotNil(t, byPeriod)
	assert.Equal(t, billing.BillID("bill-1"), byPeriod.ID)
}

func TestStore_SaveBill_DuplicatePeriodRejected(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveBill(ctx, testBill("bill-1", "acct-1", "2026-01")))

	err := st.SaveBill(ctx, testBill("bill-2", "acct-1", "2026-01"))
	assert.ErrorIs(t, err, billing.ErrDuplicatePeriod)
}

func TestStore_SaveBill_UpsertTouchesOnlyPaymentState(t *testing.T) {
	// Re-saving a bill moves amount_paid and status; the frozen charge
	// figures stay as generated.

	st := newStore(t)
	ctx := context.Background()

	bill := testBill("bill-1", "acct-1", "2026-01")
	require.NoError(t, st.SaveBill(ctx, bill))

	bill.AmountPaid = money("1000")
	bill.Status = billing.StatusPartial
	bill.Subtotal = money("9999")
	require.NoError(t, st.SaveBill(ctx, bill))

	got, err := st.GetBill(ctx, "bill-1")
	require.NoError(t, err)
	assert.True(t, money("1000").Equal(got.AmountPaid))
	assert.Equal(t, billing.StatusPartial, got.Status)
	assert.True(t, money("2500").Equal(got.Subtotal), "frozen figures must not change on upsert")
}

func TestStore_BillsByTenantAndAccount(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	jan := testBill("bill-1", "acct-1", "2026-01")
	require.NoError(t, st.SaveBill(ctx, jan))
	feb := testBill("bill-2", "acct-1", "2026-02")
	feb.Period = billing.NewPeriod(2026, time.February)
	require.NoError(t, st.SaveBill(ctx, feb))

	all, err := st.BillsByTenant(ctx, "soc-1", billing.Period{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, billing.BillID("bill-2"), all[0].ID, "newest period first")

	janOnly, err := st.BillsByTenant(ctx, "soc-1", billing.NewPeriod(2026, time.January))
	require.NoError(t, err)
	require.Len(t, janOnly, 1)
	assert.Equal(t, billing.BillID("bill-1"), janOnly[0].ID)

	byAccount, err := st.BillsByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a bill and an entry then fails
	// WHEN: It returns an error
	// THEN: Neither write survives

	st := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(s billing.Store) error {
		if err := s.SaveBill(ctx, testBill("bill-1", "acct-1", "2026-01")); err != nil {
			return err
		}
		if err := s.AppendEntry(ctx, testEntry("le-1", 0, day(2026, time.January, 1), "2500", "2500"), ""); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bill, err := st.GetBill(ctx, "bill-1")
	require.NoError(t, err)
	assert.Nil(t, bill)
	entries, err := st.Entries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s billing.Store) error {
		return s.SaveBill(ctx, testBill("bill-1", "acct-1", "2026-01"))
	})
	require.NoError(t, err)

	bill, err := st.GetBill(ctx, "bill-1")
	require.NoError(t, err)
	assert.NotNil(t, bill)
}

// =============================================================================
// RULES AND RUNS
// =============================================================================

func TestStore_RuleRoundtrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-2", TenantID: "soc-1", Name: "Festival Levy",
		Type: billing.CalcPercentage, Rate: money("10"), Active: true, Order: 2,
	}))
	require.NoError(t, st.SaveRule(ctx, billing.ChargeRule{
		ID: "rule-1", TenantID: "soc-1", Name: "Clubhouse",
		Type: billing.CalcFixed, Rate: money("100"), Active: true, Order: 1,
	}))

	got, err := st.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Clubhouse", got.Name)
	assert.True(t, money("100").Equal(got.Rate))

	rules, err := st.RulesByTenant(ctx, "soc-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, billing.RuleID("rule-1"), rules[0].ID, "ordered by display order")

	// Soft delete persists.
	archived := *got
	archived.Deleted = true
	archived.Active = false
	require.NoError(t, st.SaveRule(ctx, archived))
	got, err = st.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}

func TestStore_RunRoundtrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRun(ctx, billing.Run{
		ID: "run-1", TenantID: "soc-1", Kind: billing.RunBillGeneration,
		Period: billing.NewPeriod(2026, time.January), Status: "completed",
		Succeeded: 12, StartedAt: time.Now().UTC().Add(-time.Minute),
		CompletedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.SaveRun(ctx, billing.Run{
		ID: "run-2", TenantID: "soc-1", Kind: billing.RunInterestAccrual,
		Day: day(2026, time.February, 27), Status: "completed",
		Succeeded: 3, Skipped: 9, StartedAt: time.Now().UTC(),
	}))

	all, err := st.RunsByTenant(ctx, "soc-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	interest, err := st.RunsByTenant(ctx, "soc-1", billing.RunInterestAccrual)
	require.NoError(t, err)
	require.Len(t, interest, 1)
	assert.Equal(t, "run-2", interest[0].ID)
	assert.Equal(t, 3, interest[0].Succeeded)
	assert.Equal(t, day(2026, time.February, 27), interest[0].Day)
}

func TestStore_Reset(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveBill(ctx, testBill("bill-1", "acct-1", "2026-01")))
	require.NoError(t, st.AppendEntry(ctx, testEntry("le-1", 0, day(2026, time.January, 1), "100", "100"), ""))

	require.NoError(t, st.Reset(ctx))

	bill, err := st.GetBill(ctx, "bill-1")
	require.NoError(t, err)
	assert.Nil(t, bill)
	entries, err := st.Entries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
